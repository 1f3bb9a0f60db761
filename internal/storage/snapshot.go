// Package storage сохраняет сериализованные миры: в плоские файлы и в
// хранилища снимков (BadgerDB, Redis, MariaDB, память).
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/voxelight/internal/vec"
)

// ChunkVolume - количество байт на чанк в сериализованном мире
const ChunkVolume = 16 * 16 * 16

var (
	// ErrSnapshotNotFound возвращается, если снимок или мир не найдены
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrSizeMismatch возвращается, если размер данных не совпадает с размерами мира
	ErrSizeMismatch = errors.New("world data size mismatch")
	// ErrNotReady возвращается после закрытия хранилища
	ErrNotReady = errors.New("storage is not ready")
	// ErrInvalidWorldName возвращается для пустого имени или имени с недопустимыми символами
	ErrInvalidWorldName = errors.New("invalid world name")
)

// ValidWorldName допускает латиницу, цифры, '-' и '_' длиной до 64 символов
func ValidWorldName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// SnapshotMeta описывает сохранённый снимок мира
type SnapshotMeta struct {
	ID        string    `json:"id"`
	World     string    `json:"world"`
	Width     int       `json:"width"`  // В чанках
	Height    int       `json:"height"` // В чанках
	Depth     int       `json:"depth"`  // В чанках
	Size      int       `json:"size"`   // В байтах
	CreatedAt time.Time `json:"created_at"`
}

// Dims возвращает размеры мира в чанках
func (m SnapshotMeta) Dims() vec.Vec3 {
	return vec.Vec3{X: m.Width, Y: m.Height, Z: m.Depth}
}

// SnapshotRepo определяет интерфейс хранилища снимков мира.
// Снимок - плоский буфер идентификаторов блоков в порядке сериализации сетки.
type SnapshotRepo interface {
	// Save сохраняет снимок и делает его последним для мира
	Save(ctx context.Context, world string, dims vec.Vec3, data []byte) (SnapshotMeta, error)

	// Load возвращает метаданные и данные снимка.
	// Возвращает ErrSnapshotNotFound, если снимок отсутствует.
	Load(ctx context.Context, id string) (SnapshotMeta, []byte, error)

	// Latest возвращает метаданные последнего снимка мира
	Latest(ctx context.Context, world string) (SnapshotMeta, error)

	// List возвращает снимки мира от старых к новым
	List(ctx context.Context, world string) ([]SnapshotMeta, error)

	// Delete удаляет снимок
	Delete(ctx context.Context, id string) error

	// Close закрывает соединение с хранилищем
	Close() error
}

// ExpectedSize возвращает размер сериализованного мира для размеров в чанках
func ExpectedSize(dims vec.Vec3) int {
	return dims.X * dims.Y * dims.Z * ChunkVolume
}

// newSnapshotMeta проверяет данные и создаёт метаданные с новым UUID
func newSnapshotMeta(world string, dims vec.Vec3, data []byte) (SnapshotMeta, error) {
	if !ValidWorldName(world) {
		return SnapshotMeta{}, fmt.Errorf("%w: %q", ErrInvalidWorldName, world)
	}
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return SnapshotMeta{}, fmt.Errorf("недопустимые размеры мира %dx%dx%d", dims.X, dims.Y, dims.Z)
	}
	if want := ExpectedSize(dims); len(data) != want {
		return SnapshotMeta{}, fmt.Errorf("%w: ожидалось %d байт, получено %d", ErrSizeMismatch, want, len(data))
	}

	return SnapshotMeta{
		ID:        uuid.NewString(),
		World:     world,
		Width:     dims.X,
		Height:    dims.Y,
		Depth:     dims.Z,
		Size:      len(data),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func sortByCreated(metas []SnapshotMeta) {
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].CreatedAt.Before(metas[j].CreatedAt)
	})
}
