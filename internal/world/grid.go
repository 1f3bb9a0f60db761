package world

import (
	"errors"
	"fmt"

	"github.com/annel0/voxelight/internal/vec"
	"github.com/annel0/voxelight/internal/world/block"
)

var (
	// ErrBufferSize возвращается, если размер буфера не совпадает с размером мира
	ErrBufferSize = errors.New("world buffer size mismatch")
	// ErrInvalidSize возвращается при неположительных размерах сетки
	ErrInvalidSize = errors.New("invalid grid size")
)

// Grid - плотная сетка чанков размером w×h×d.
// Не потокобезопасна: все изменения должны выполняться из одного потока.
type Grid struct {
	chunks []*Chunk
	w      int
	h      int
	d      int
}

// location - результат разрешения глобальной координаты
type location struct {
	chunk      int // индекс чанка в сетке
	voxel      int // индекс вокселя в чанке
	cx, cy, cz int
	lx, ly, lz int
}

// NewGrid создаёт сетку чанков и заполняет её из источника вокселей.
// Источник nil даёт мир из воздуха.
func NewGrid(w, h, d int, source VoxelSource) (*Grid, error) {
	if w <= 0 || h <= 0 || d <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidSize, w, h, d)
	}

	g := &Grid{
		chunks: make([]*Chunk, 0, w*h*d),
		w:      w,
		h:      h,
		d:      d,
	}

	for cy := 0; cy < h; cy++ {
		for cz := 0; cz < d; cz++ {
			for cx := 0; cx < w; cx++ {
				g.chunks = append(g.chunks, NewChunk(cx, cy, cz, source))
			}
		}
	}

	return g, nil
}

// Width возвращает ширину сетки в чанках
func (g *Grid) Width() int { return g.w }

// Height возвращает высоту сетки в чанках
func (g *Grid) Height() int { return g.h }

// Depth возвращает глубину сетки в чанках
func (g *Grid) Depth() int { return g.d }

// Volume возвращает количество чанков
func (g *Grid) Volume() int {
	return g.w * g.h * g.d
}

// Size возвращает размеры мира в вокселях
func (g *Grid) Size() vec.Vec3 {
	return vec.Vec3{X: g.w * ChunkW, Y: g.h * ChunkH, Z: g.d * ChunkD}
}

// BufferSize возвращает размер буфера сериализации в байтах
func (g *Grid) BufferSize() int {
	return g.Volume() * ChunkVol
}

// Chunks возвращает все чанки в порядке (cy*d+cz)*w+cx
func (g *Grid) Chunks() []*Chunk {
	return g.chunks
}

// locate разрешает глобальную координату в чанк и локальную позицию.
// Единственное место, где выполняется деление с округлением вниз.
func (g *Grid) locate(x, y, z int) (location, bool) {
	cx := vec.FloorDiv(x, ChunkW)
	cy := vec.FloorDiv(y, ChunkH)
	cz := vec.FloorDiv(z, ChunkD)

	if !g.chunkInBounds(cx, cy, cz) {
		return location{}, false
	}

	lx := x - cx*ChunkW
	ly := y - cy*ChunkH
	lz := z - cz*ChunkD

	return location{
		chunk: g.chunkIndex(cx, cy, cz),
		voxel: LocalIndex(lx, ly, lz),
		cx:    cx, cy: cy, cz: cz,
		lx: lx, ly: ly, lz: lz,
	}, true
}

func (g *Grid) chunkInBounds(cx, cy, cz int) bool {
	return cx >= 0 && cy >= 0 && cz >= 0 && cx < g.w && cy < g.h && cz < g.d
}

func (g *Grid) chunkIndex(cx, cy, cz int) int {
	return (cy*g.d+cz)*g.w + cx
}

// Chunk возвращает чанк по координатам сетки или nil
func (g *Grid) Chunk(cx, cy, cz int) *Chunk {
	if !g.chunkInBounds(cx, cy, cz) {
		return nil
	}
	return g.chunks[g.chunkIndex(cx, cy, cz)]
}

// ChunkByVoxel возвращает чанк, содержащий глобальную координату, или nil
func (g *Grid) ChunkByVoxel(x, y, z int) *Chunk {
	loc, ok := g.locate(x, y, z)
	if !ok {
		return nil
	}
	return g.chunks[loc.chunk]
}

// InBounds проверяет, лежит ли координата внутри мира
func (g *Grid) InBounds(x, y, z int) bool {
	_, ok := g.locate(x, y, z)
	return ok
}

// Voxel возвращает воксель по глобальной координате
func (g *Grid) Voxel(x, y, z int) (Voxel, bool) {
	loc, ok := g.locate(x, y, z)
	if !ok {
		return Voxel{}, false
	}
	return g.chunks[loc.chunk].Voxels[loc.voxel], true
}

// Set записывает воксель и помечает чанк изменённым.
// Воксель на грани чанка помечает изменённым и соседний чанк.
func (g *Grid) Set(x, y, z int, id block.BlockID) {
	loc, ok := g.locate(x, y, z)
	if !ok {
		return
	}

	chunk := g.chunks[loc.chunk]
	chunk.Voxels[loc.voxel].ID = id
	chunk.MarkModified()

	if loc.lx == 0 {
		g.markChunk(loc.cx-1, loc.cy, loc.cz)
	}
	if loc.ly == 0 {
		g.markChunk(loc.cx, loc.cy-1, loc.cz)
	}
	if loc.lz == 0 {
		g.markChunk(loc.cx, loc.cy, loc.cz-1)
	}
	if loc.lx == ChunkW-1 {
		g.markChunk(loc.cx+1, loc.cy, loc.cz)
	}
	if loc.ly == ChunkH-1 {
		g.markChunk(loc.cx, loc.cy+1, loc.cz)
	}
	if loc.lz == ChunkD-1 {
		g.markChunk(loc.cx, loc.cy, loc.cz+1)
	}
}

func (g *Grid) markChunk(cx, cy, cz int) {
	if c := g.Chunk(cx, cy, cz); c != nil {
		c.MarkModified()
	}
}

// Light возвращает значение канала света; 0 за пределами мира
func (g *Grid) Light(x, y, z, channel int) uint8 {
	loc, ok := g.locate(x, y, z)
	if !ok {
		return 0
	}
	return g.chunks[loc.chunk].Light.Get(loc.lx, loc.ly, loc.lz, channel)
}

// SetLight записывает значение канала и помечает чанк изменённым.
// Возвращает false, если координата вне мира.
func (g *Grid) SetLight(x, y, z, channel int, value uint8) bool {
	loc, ok := g.locate(x, y, z)
	if !ok {
		return false
	}
	chunk := g.chunks[loc.chunk]
	chunk.Light.Set(loc.lx, loc.ly, loc.lz, channel, value)
	chunk.MarkModified()
	return true
}

// Neighbourhood возвращает окружение чанка 3x3x3 для мешера.
// Индекс: ((oy+1)*3+(oz+1))*3+(ox+1); отсутствующие соседи - nil.
func (g *Grid) Neighbourhood(cx, cy, cz int) [27]*Chunk {
	var out [27]*Chunk
	for oy := -1; oy <= 1; oy++ {
		for oz := -1; oz <= 1; oz++ {
			for ox := -1; ox <= 1; ox++ {
				out[((oy+1)*3+(oz+1))*3+(ox+1)] = g.Chunk(cx+ox, cy+oy, cz+oz)
			}
		}
	}
	return out
}

// DrainModified возвращает координаты изменённых чанков и снимает с них флаг.
// Вызывается один раз за цикл обновления мешера.
func (g *Grid) DrainModified() []vec.Vec3 {
	var out []vec.Vec3
	for _, c := range g.chunks {
		if !c.Modified() {
			continue
		}
		out = append(out, c.Coords())
		c.ClearModified()
	}
	return out
}

// ModifiedCount возвращает количество изменённых чанков
func (g *Grid) ModifiedCount() int {
	n := 0
	for _, c := range g.chunks {
		if c.Modified() {
			n++
		}
	}
	return n
}

// Write сериализует идентификаторы всех вокселей в dest:
// сначала по чанкам, затем по вокселям внутри чанка.
func (g *Grid) Write(dest []byte) error {
	if len(dest) != g.BufferSize() {
		return fmt.Errorf("%w: ожидалось %d байт, получено %d", ErrBufferSize, g.BufferSize(), len(dest))
	}

	index := 0
	for _, c := range g.chunks {
		for _, v := range c.Voxels {
			dest[index] = byte(v.ID)
			index++
		}
	}
	return nil
}

// Read загружает идентификаторы вокселей из src и помечает все чанки изменёнными
func (g *Grid) Read(src []byte) error {
	if len(src) != g.BufferSize() {
		return fmt.Errorf("%w: ожидалось %d байт, получено %d", ErrBufferSize, g.BufferSize(), len(src))
	}

	index := 0
	for _, c := range g.chunks {
		for i := range c.Voxels {
			c.Voxels[i].ID = block.BlockID(src[index])
			index++
		}
		c.MarkModified()
	}
	return nil
}

// Bytes возвращает сериализованный мир в новом буфере
func (g *Grid) Bytes() []byte {
	buf := make([]byte, g.BufferSize())
	// Размер буфера совпадает по построению
	_ = g.Write(buf)
	return buf
}
