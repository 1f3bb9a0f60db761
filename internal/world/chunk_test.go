package world

import (
	"testing"

	"github.com/annel0/voxelight/internal/world/block"
)

func TestChunkCreateFromSource(t *testing.T) {
	// Источник: камень ниже глобального y=20
	source := func(x, y, z int) block.BlockID {
		if y < 20 {
			return block.StoneBlockID
		}
		return block.AirBlockID
	}

	chunk := NewChunk(1, 1, 0, source)

	if chunk.X != 1 || chunk.Y != 1 || chunk.Z != 0 {
		t.Errorf("Ожидались координаты {1,1,0}, получено {%d,%d,%d}", chunk.X, chunk.Y, chunk.Z)
	}

	// Глобальный y = 16 + ly
	if id := chunk.Voxel(0, 3, 0).ID; id != block.StoneBlockID {
		t.Errorf("Ожидался StoneBlockID на ly=3, получен %d", id)
	}
	if id := chunk.Voxel(0, 4, 0).ID; id != block.AirBlockID {
		t.Errorf("Ожидался AirBlockID на ly=4, получен %d", id)
	}

	if !chunk.Modified() {
		t.Error("Новый чанк должен быть помечен изменённым")
	}
}

func TestChunkNilSourceIsEmpty(t *testing.T) {
	chunk := NewChunk(0, 0, 0, nil)
	if !chunk.IsEmpty() {
		t.Error("Чанк без источника должен быть пустым")
	}

	chunk.Voxels[LocalIndex(3, 4, 5)].ID = block.BrickBlockID
	if chunk.IsEmpty() {
		t.Error("Чанк с кирпичом не должен быть пустым")
	}
}

func TestLocalIndexOrder(t *testing.T) {
	if LocalIndex(1, 0, 0) != 1 {
		t.Errorf("x должен быть младшей осью, получено %d", LocalIndex(1, 0, 0))
	}
	if LocalIndex(0, 0, 1) != ChunkW {
		t.Errorf("z должен идти после x, получено %d", LocalIndex(0, 0, 1))
	}
	if LocalIndex(0, 1, 0) != ChunkW*ChunkD {
		t.Errorf("y должен быть старшей осью, получено %d", LocalIndex(0, 1, 0))
	}
	if LocalIndex(ChunkW-1, ChunkH-1, ChunkD-1) != ChunkVol-1 {
		t.Errorf("Последний индекс должен быть %d", ChunkVol-1)
	}
}

func TestLightMapChannels(t *testing.T) {
	lm := NewLightMap()

	lm.SetR(1, 2, 3, 11)
	lm.SetG(1, 2, 3, 7)
	lm.SetB(1, 2, 3, 6)
	lm.SetS(1, 2, 3, 15)

	if lm.R(1, 2, 3) != 11 || lm.G(1, 2, 3) != 7 || lm.B(1, 2, 3) != 6 || lm.S(1, 2, 3) != 15 {
		t.Errorf("Неверные значения каналов: %d %d %d %d",
			lm.R(1, 2, 3), lm.G(1, 2, 3), lm.B(1, 2, 3), lm.S(1, 2, 3))
	}

	// Перезапись одного канала не затрагивает остальные
	lm.SetG(1, 2, 3, 0)
	if lm.R(1, 2, 3) != 11 || lm.G(1, 2, 3) != 0 || lm.S(1, 2, 3) != 15 {
		t.Error("Запись канала G повредила соседние каналы")
	}

	// Значение маскируется до 4 бит
	lm.Set(0, 0, 0, ChannelBlue, 0x1F)
	if got := lm.Get(0, 0, 0, ChannelBlue); got != 15 {
		t.Errorf("Ожидалось 15 после маскирования, получено %d", got)
	}
	if got := lm.Get(0, 0, 0, ChannelSun); got != 0 {
		t.Errorf("Маскирование не должно переполнять соседний канал, получено %d", got)
	}

	lm.Clear()
	if lm.R(1, 2, 3) != 0 || lm.S(1, 2, 3) != 0 {
		t.Error("Clear должен обнулить все каналы")
	}
}
