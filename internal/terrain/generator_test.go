package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelight/internal/world"
	"github.com/annel0/voxelight/internal/world/block"
)

func TestNewKinds(t *testing.T) {
	for _, kind := range []Kind{KindEmpty, KindFlat, KindWaves, KindPerlin, "PERLIN", ""} {
		src, err := New(Options{Kind: kind, Seed: 7, Ground: 8})
		require.NoError(t, err, "Тип %q должен поддерживаться", kind)
		require.NotNil(t, src)
	}

	_, err := New(Options{Kind: "caves"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFlat(t *testing.T) {
	src := Flat(4, block.StoneBlockID)
	assert.Equal(t, block.StoneBlockID, src(0, 3, 0))
	assert.Equal(t, block.StoneBlockID, src(-100, -5, 9))
	assert.Equal(t, block.AirBlockID, src(0, 4, 0))
}

func TestWaves(t *testing.T) {
	src := Waves()

	// Прослойка на высотах 3..5
	for y := 3; y <= 5; y++ {
		assert.Equal(t, block.BrickBlockID, src(1, y, 0))
	}
	// sin(0) даёт высоту 5, выше волн только воздух
	assert.Equal(t, block.StoneBlockID, src(0, 0, 0))
	assert.Equal(t, block.AirBlockID, src(0, 6, 0))
	assert.Equal(t, block.AirBlockID, src(0, 11, 0))
}

func TestPerlinDeterministic(t *testing.T) {
	a := NewPerlin(1234, 10, 6)
	b := NewPerlin(1234, 10, 6)

	for x := -20; x < 20; x += 3 {
		for z := -20; z < 20; z += 5 {
			h := a.Height(x, z)
			assert.Equal(t, h, b.Height(x, z), "Высота должна зависеть только от сида")
			assert.GreaterOrEqual(t, h, 10-6)
			assert.LessOrEqual(t, h, 10+6)

			assert.Equal(t, block.StoneBlockID, a.Block(x, h-1, z))
			assert.Equal(t, block.GrassBlockID, a.Block(x, h, z))
			assert.Equal(t, block.AirBlockID, a.Block(x, h+2, z))
		}
	}
}

func TestPerlinBuildsGrid(t *testing.T) {
	src, err := New(Options{Kind: KindPerlin, Seed: 99, Ground: 8, Amplitude: 4})
	require.NoError(t, err)

	g, err := world.NewGrid(2, 1, 2, src)
	require.NoError(t, err)

	// Нижний слой мира всегда твёрдый
	v, ok := g.Voxel(5, 0, 5)
	require.True(t, ok)
	assert.Equal(t, block.StoneBlockID, v.ID)

	// Верх чанка выше максимальной высоты - воздух
	v, _ = g.Voxel(5, 15, 5)
	assert.True(t, v.IsAir())
}
