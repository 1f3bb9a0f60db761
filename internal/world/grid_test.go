package world

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelight/internal/vec"
	"github.com/annel0/voxelight/internal/world/block"
)

func newTestGrid(t *testing.T, w, h, d int) *Grid {
	t.Helper()
	g, err := NewGrid(w, h, d, nil)
	require.NoError(t, err)
	g.DrainModified()
	return g
}

func TestNewGridInvalidSize(t *testing.T) {
	_, err := NewGrid(0, 1, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewGrid(1, -1, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestGridSetGetRoundTrip(t *testing.T) {
	g := newTestGrid(t, 2, 2, 2)

	points := []vec.Vec3{{X: 0, Y: 0, Z: 0}, {X: 17, Y: 3, Z: 31}, {X: 31, Y: 31, Z: 31}, {X: 15, Y: 16, Z: 0}}
	for i, p := range points {
		id := block.BlockID(i + 1)
		g.Set(p.X, p.Y, p.Z, id)

		v, ok := g.Voxel(p.X, p.Y, p.Z)
		require.True(t, ok, "Координата %v должна быть внутри мира", p)
		assert.Equal(t, id, v.ID, "Неверный блок в %v", p)
	}
}

func TestGridOutOfBounds(t *testing.T) {
	g := newTestGrid(t, 1, 1, 1)

	// Отрицательные координаты должны разрешаться через деление вниз, а не усечение
	for _, p := range []vec.Vec3{{X: -1, Y: 0, Z: 0}, {X: 0, Y: -1, Z: 0}, {X: 0, Y: 0, Z: -16}, {X: 16, Y: 0, Z: 0}} {
		_, ok := g.Voxel(p.X, p.Y, p.Z)
		assert.False(t, ok, "Координата %v должна быть вне мира", p)
		assert.Equal(t, uint8(0), g.Light(p.X, p.Y, p.Z, ChannelSun))
		assert.False(t, g.SetLight(p.X, p.Y, p.Z, ChannelSun, 5))
		assert.Nil(t, g.ChunkByVoxel(p.X, p.Y, p.Z))

		assert.NotPanics(t, func() { g.Set(p.X, p.Y, p.Z, block.StoneBlockID) })
	}

	assert.Equal(t, 0, g.ModifiedCount(), "Запись вне мира не должна помечать чанки")
}

func TestGridSetMarksFaceNeighbours(t *testing.T) {
	g := newTestGrid(t, 3, 3, 3)

	// Внутренний воксель центрального чанка: изменён только он сам
	g.Set(16+5, 16+5, 16+5, block.StoneBlockID)
	assert.Equal(t, []vec.Vec3{{X: 1, Y: 1, Z: 1}}, g.DrainModified())

	// Воксель на грани lx == 0: помечается и левый сосед
	g.Set(16, 16+5, 16+5, block.StoneBlockID)
	assert.ElementsMatch(t, []vec.Vec3{{X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1}}, g.DrainModified())

	// Угол чанка: три соседа по граням
	g.Set(31, 31, 31, block.StoneBlockID)
	assert.ElementsMatch(t, []vec.Vec3{
		{X: 1, Y: 1, Z: 1},
		{X: 2, Y: 1, Z: 1},
		{X: 1, Y: 2, Z: 1},
		{X: 1, Y: 1, Z: 2},
	}, g.DrainModified())

	// Граница мира: несуществующий сосед пропускается
	g.Set(0, 0, 0, block.StoneBlockID)
	assert.Equal(t, []vec.Vec3{{X: 0, Y: 0, Z: 0}}, g.DrainModified())
}

func TestGridLight(t *testing.T) {
	g := newTestGrid(t, 2, 1, 1)

	require.True(t, g.SetLight(20, 1, 2, ChannelGreen, 9))
	assert.Equal(t, uint8(9), g.Light(20, 1, 2, ChannelGreen))
	assert.Equal(t, uint8(0), g.Light(20, 1, 2, ChannelRed))
	assert.Equal(t, uint8(9), g.Chunk(1, 0, 0).Light.G(4, 1, 2))
	assert.Equal(t, 1, g.ModifiedCount())
}

func TestGridChunkOrder(t *testing.T) {
	g := newTestGrid(t, 3, 2, 4)

	chunks := g.Chunks()
	require.Len(t, chunks, g.Volume())
	for i, c := range chunks {
		assert.Equal(t, i, (c.Y*g.Depth()+c.Z)*g.Width()+c.X, "Нарушен порядок чанков")
	}
	assert.Equal(t, vec.Vec3{X: 48, Y: 32, Z: 64}, g.Size())
}

func TestGridNeighbourhood(t *testing.T) {
	g := newTestGrid(t, 2, 2, 2)

	around := g.Neighbourhood(0, 0, 0)
	assert.Same(t, g.Chunk(0, 0, 0), around[13], "Центр окружения - сам чанк")
	assert.Same(t, g.Chunk(1, 0, 0), around[14])
	assert.Same(t, g.Chunk(0, 1, 0), around[22])
	assert.Same(t, g.Chunk(0, 0, 1), around[16])
	assert.Nil(t, around[12], "Сосед за границей мира отсутствует")

	present := 0
	for _, c := range around {
		if c != nil {
			present++
		}
	}
	assert.Equal(t, 8, present)
}

func TestGridSerializationRoundTrip(t *testing.T) {
	source := func(x, y, z int) block.BlockID {
		return block.BlockID((x*7 + y*13 + z*3) % 6)
	}
	src, err := NewGrid(2, 1, 2, source)
	require.NoError(t, err)

	buf := make([]byte, src.BufferSize())
	require.NoError(t, src.Write(buf))

	// Первые байты - первый чанк в локальном порядке
	assert.Equal(t, byte(source(1, 0, 0)), buf[1])
	assert.Equal(t, byte(source(0, 0, 1)), buf[ChunkW])
	// Второй чанк по x начинается сразу после первого
	assert.Equal(t, byte(source(16, 0, 0)), buf[ChunkVol])

	dst := newTestGrid(t, 2, 1, 2)
	require.NoError(t, dst.Read(buf))
	assert.Equal(t, dst.Volume(), dst.ModifiedCount(), "Read должен помечать все чанки")

	size := dst.Size()
	for y := 0; y < size.Y; y++ {
		for z := 0; z < size.Z; z++ {
			for x := 0; x < size.X; x++ {
				v, _ := dst.Voxel(x, y, z)
				if v.ID != source(x, y, z) {
					t.Fatalf("Воксель (%d,%d,%d): ожидался %d, получен %d", x, y, z, source(x, y, z), v.ID)
				}
			}
		}
	}
	assert.Equal(t, buf, dst.Bytes())
}

func TestGridBufferSizeMismatch(t *testing.T) {
	g := newTestGrid(t, 1, 1, 1)

	assert.ErrorIs(t, g.Write(make([]byte, 10)), ErrBufferSize)
	assert.ErrorIs(t, g.Read(make([]byte, ChunkVol+1)), ErrBufferSize)
	assert.Equal(t, 0, g.ModifiedCount(), "Неудачное чтение не должно менять мир")
}

func TestRayCastMissInAir(t *testing.T) {
	g := newTestGrid(t, 2, 2, 2)

	for _, dir := range []mgl32.Vec3{{1, 0, 0}, {0, -1, 0}, {0.3, 0.5, -0.8}} {
		hit, ok := g.RayCast(mgl32.Vec3{16.5, 16.5, 16.5}, dir.Normalize(), 100)
		assert.False(t, ok, "В пустом мире луч %v не должен попадать", dir)
		assert.Equal(t, mgl32.Vec3{}, hit.Normal)
	}
}

func TestRayCastHit(t *testing.T) {
	g := newTestGrid(t, 1, 1, 1)
	g.Set(5, 2, 2, block.StoneBlockID)

	hit, ok := g.RayCast(mgl32.Vec3{0.5, 2.5, 2.5}, mgl32.Vec3{1, 0, 0}, 10)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 5, Y: 2, Z: 2}, hit.Pos)
	assert.Equal(t, block.StoneBlockID, hit.Voxel.ID)
	assert.Equal(t, mgl32.Vec3{-1, 0, 0}, hit.Normal, "Нормаль направлена против шага")
	assert.InDelta(t, 5.0, hit.End.X(), 1e-5)
	assert.InDelta(t, 2.5, hit.End.Y(), 1e-5)

	// Сверху вниз: нормаль +Y
	g.Set(3, 1, 3, block.GrassBlockID)
	hit, ok = g.RayCast(mgl32.Vec3{3.5, 12.2, 3.5}, mgl32.Vec3{0, -1, 0}, 20)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 3, Y: 1, Z: 3}, hit.Pos)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, hit.Normal)
	assert.InDelta(t, 2.0, hit.End.Y(), 1e-5)
}

func TestRayCastMaxDistance(t *testing.T) {
	g := newTestGrid(t, 1, 1, 1)
	g.Set(10, 0, 0, block.StoneBlockID)

	_, ok := g.RayCast(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, 5)
	assert.False(t, ok, "Блок дальше maxDist не должен находиться")

	_, ok = g.RayCast(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, 9.5)
	assert.True(t, ok)
}

func TestRayCastInsideSolid(t *testing.T) {
	g := newTestGrid(t, 1, 1, 1)
	g.Set(4, 4, 4, block.BrickBlockID)

	hit, ok := g.RayCast(mgl32.Vec3{4.2, 4.7, 4.1}, mgl32.Vec3{0, 0, 1}, 3)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 4, Y: 4, Z: 4}, hit.Pos)
	assert.Equal(t, mgl32.Vec3{}, hit.Normal, "В начальной ячейке нормаль нулевая")

	// Нулевое направление проверяет только начальную ячейку
	_, ok = g.RayCast(mgl32.Vec3{4.5, 4.5, 4.5}, mgl32.Vec3{}, 3)
	assert.True(t, ok)
	_, ok = g.RayCast(mgl32.Vec3{1.5, 1.5, 1.5}, mgl32.Vec3{}, 3)
	assert.False(t, ok)
}

func TestRayCastLargeReachTerminates(t *testing.T) {
	g := newTestGrid(t, 1, 1, 1)

	cases := []struct {
		origin, dir mgl32.Vec3
	}{
		{mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{-0.3, 0.2, 0.9}},
		{mgl32.Vec3{-40, 8, 8}, mgl32.Vec3{-1, 0, 0}},
		{mgl32.Vec3{3e7, 8, 8}, mgl32.Vec3{-1, 0, 0}},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, tc := range cases {
			_, ok := g.RayCast(tc.origin, tc.dir.Normalize(), 3e7)
			assert.False(t, ok, "Луч %v из %v", tc.dir, tc.origin)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RayCast с большой дальностью не завершился")
	}
}

func TestRayCastStopsAtGridBoundary(t *testing.T) {
	g := newTestGrid(t, 1, 1, 1)

	hit, ok := g.RayCast(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, 1000)
	require.False(t, ok)
	assert.Equal(t, vec.Vec3{X: ChunkW, Y: 0, Z: 0}, hit.Pos, "Обход останавливается на первой ячейке за сеткой")
	assert.InDelta(t, float64(ChunkW), hit.End.X(), 1e-4)

	// Луч снаружи, направленный к сетке, находит блок
	g.Set(0, 3, 3, block.StoneBlockID)
	hit, ok = g.RayCast(mgl32.Vec3{-20.5, 3.5, 3.5}, mgl32.Vec3{1, 0, 0}, 100)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 0, Y: 3, Z: 3}, hit.Pos)
}
