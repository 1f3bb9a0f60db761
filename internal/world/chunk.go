package world

import (
	"github.com/annel0/voxelight/internal/vec"
	"github.com/annel0/voxelight/internal/world/block"
)

// Размеры чанка в вокселях
const (
	ChunkW = 16
	ChunkH = 16
	ChunkD = 16

	// ChunkVol - количество вокселей в чанке
	ChunkVol = ChunkW * ChunkH * ChunkD
)

// Voxel - одна ячейка мира
type Voxel struct {
	ID block.BlockID
}

// IsAir возвращает true для пустой ячейки
func (v Voxel) IsAir() bool {
	return v.ID == block.AirBlockID
}

// VoxelSource задаёт блок для глобальной координаты при построении чанка.
// Генерация ландшафта подключается через эту функцию.
type VoxelSource func(x, y, z int) block.BlockID

// Chunk представляет участок мира размером 16x16x16 вокселей
type Chunk struct {
	X, Y, Z int // Координаты чанка в сетке чанков

	Voxels [ChunkVol]Voxel
	Light  LightMap

	modified bool
}

// NewChunk создаёт чанк и заполняет его из источника вокселей.
// Новый чанк считается изменённым, чтобы мешер построил его впервые.
func NewChunk(cx, cy, cz int, source VoxelSource) *Chunk {
	c := &Chunk{X: cx, Y: cy, Z: cz, modified: true}
	if source == nil {
		return c
	}

	baseX, baseY, baseZ := cx*ChunkW, cy*ChunkH, cz*ChunkD
	for ly := 0; ly < ChunkH; ly++ {
		for lz := 0; lz < ChunkD; lz++ {
			for lx := 0; lx < ChunkW; lx++ {
				c.Voxels[LocalIndex(lx, ly, lz)].ID = source(baseX+lx, baseY+ly, baseZ+lz)
			}
		}
	}
	return c
}

// LocalIndex переводит локальные координаты в индекс массива вокселей
func LocalIndex(lx, ly, lz int) int {
	return (ly*ChunkD+lz)*ChunkW + lx
}

// Coords возвращает координаты чанка в сетке
func (c *Chunk) Coords() vec.Vec3 {
	return vec.Vec3{X: c.X, Y: c.Y, Z: c.Z}
}

// Voxel возвращает воксель по локальным координатам
func (c *Chunk) Voxel(lx, ly, lz int) Voxel {
	return c.Voxels[LocalIndex(lx, ly, lz)]
}

// Modified возвращает true, если чанк нужно перестроить
func (c *Chunk) Modified() bool {
	return c.modified
}

// MarkModified помечает чанк изменённым
func (c *Chunk) MarkModified() {
	c.modified = true
}

// ClearModified снимает флаг изменения. Вызывается потребителем (мешером).
func (c *Chunk) ClearModified() {
	c.modified = false
}

// IsEmpty возвращает true, если в чанке только воздух
func (c *Chunk) IsEmpty() bool {
	for _, v := range c.Voxels {
		if !v.IsAir() {
			return false
		}
	}
	return true
}
