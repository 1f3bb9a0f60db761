package engine

import (
	"github.com/annel0/voxelight/internal/vec"
	"github.com/annel0/voxelight/internal/world/block"
)

// Change описывает результат записи блока
type Change struct {
	Pos     vec.Vec3      `json:"pos"`
	Prev    block.BlockID `json:"prev"`
	ID      block.BlockID `json:"id"`
	Changed bool          `json:"changed"`
}

// LightSample - освещённость ячейки по четырём каналам
type LightSample struct {
	R   uint8 `json:"r"`
	G   uint8 `json:"g"`
	B   uint8 `json:"b"`
	Sun uint8 `json:"sun"`
}

// Info - сводка о мире
type Info struct {
	Name           string   `json:"name"`
	Chunks         vec.Vec3 `json:"chunks"` // Размеры в чанках
	Size           vec.Vec3 `json:"size"`   // Размеры в вокселях
	Volume         int      `json:"volume"` // Число чанков
	ModifiedChunks int      `json:"modified_chunks"`
	PendingChunks  int      `json:"pending_chunks"` // Разосланы, но не забраны через DrainModified
	Blocks         int      `json:"blocks"`         // Зарегистрированные типы блоков
	Edits          uint64   `json:"edits"`
	Restores       uint64   `json:"restores"`
	Uptime         string   `json:"uptime"`
}

// Полезные нагрузки событий шины

// VoxelChangedPayload публикуется после изменения вокселя
type VoxelChangedPayload struct {
	World string   `json:"world"`
	Pos   vec.Vec3 `json:"pos"`
	Prev  uint8    `json:"prev"`
	ID    uint8    `json:"id"`
}

// ChunksModifiedPayload публикуется при выдаче изменённых чанков
type ChunksModifiedPayload struct {
	World  string     `json:"world"`
	Chunks []vec.Vec3 `json:"chunks"`
}

// WorldLoadedPayload публикуется после построения или восстановления мира
type WorldLoadedPayload struct {
	World    string   `json:"world"`
	Chunks   vec.Vec3 `json:"chunks"`
	Snapshot string   `json:"snapshot,omitempty"`
}

// SnapshotSavedPayload публикуется после сохранения снимка
type SnapshotSavedPayload struct {
	World    string `json:"world"`
	Snapshot string `json:"snapshot"`
	Size     int    `json:"size"`
}

// ChunkData - копия вокселей и освещения чанка для мешера
type ChunkData struct {
	Coords   vec.Vec3 `json:"coords"`
	Voxels   []byte   `json:"voxels"` // Порядок (ly*D+lz)*W+lx
	Light    []uint16 `json:"light"`  // Упакованные слова R|G|B|Sun
	Modified bool     `json:"modified"`
}
