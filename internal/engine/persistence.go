package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxelight/internal/eventbus"
	"github.com/annel0/voxelight/internal/storage"
	"github.com/annel0/voxelight/internal/vec"
)

// Snapshot возвращает размеры мира в чанках и сериализованные воксели
func (e *Engine) Snapshot() (vec.Vec3, []byte) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.chunkDims(), e.grid.Bytes()
}

// Restore заменяет воксели мира и полностью пересчитывает освещение.
// Все чанки помечаются изменёнными.
func (e *Engine) Restore(ctx context.Context, dims vec.Vec3, data []byte) error {
	return e.restore(ctx, dims, data, "")
}

func (e *Engine) restore(ctx context.Context, dims vec.Vec3, data []byte, snapshotID string) error {
	_, span := e.tracer.Start(ctx, "engine.Restore", trace.WithAttributes(attribute.Int("bytes", len(data))))
	defer span.End()

	e.mu.Lock()
	if own := e.chunkDims(); dims != own {
		e.mu.Unlock()
		return fmt.Errorf("%w: снимок %dx%dx%d, мир %dx%dx%d", ErrDimsMismatch, dims.X, dims.Y, dims.Z, own.X, own.Y, own.Z)
	}
	if err := e.grid.Read(data); err != nil {
		e.mu.Unlock()
		span.RecordError(err)
		return err
	}
	e.relightLocked()
	e.mu.Unlock()

	e.restored.Add(1)
	e.publish(ctx, eventbus.EventWorldLoaded, 5, WorldLoadedPayload{World: e.name, Chunks: dims, Snapshot: snapshotID})
	return nil
}

// Save сохраняет снимок мира в хранилище
func (e *Engine) Save(ctx context.Context, repo storage.SnapshotRepo) (storage.SnapshotMeta, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Save")
	defer span.End()

	dims, data := e.Snapshot()
	meta, err := repo.Save(ctx, e.name, dims, data)
	if err != nil {
		span.RecordError(err)
		return storage.SnapshotMeta{}, fmt.Errorf("ошибка сохранения мира %s: %w", e.name, err)
	}

	e.logger.Info("💾 Снимок %s мира %s сохранён (%d байт)", meta.ID, e.name, meta.Size)
	e.publish(ctx, eventbus.EventSnapshotSaved, 5, SnapshotSavedPayload{World: e.name, Snapshot: meta.ID, Size: meta.Size})
	return meta, nil
}

// Load восстанавливает мир из снимка. Пустой id означает последний снимок мира.
func (e *Engine) Load(ctx context.Context, repo storage.SnapshotRepo, id string) (storage.SnapshotMeta, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Load", trace.WithAttributes(attribute.String("snapshot", id)))
	defer span.End()

	if id == "" {
		latest, err := repo.Latest(ctx, e.name)
		if err != nil {
			return storage.SnapshotMeta{}, err
		}
		id = latest.ID
	}

	meta, data, err := repo.Load(ctx, id)
	if err != nil {
		return storage.SnapshotMeta{}, err
	}
	if err := e.restore(ctx, meta.Dims(), data, meta.ID); err != nil {
		return storage.SnapshotMeta{}, err
	}

	e.logger.Info("📂 Мир %s восстановлен из снимка %s", e.name, meta.ID)
	return meta, nil
}

// SaveFile записывает мир в плоский файл
func (e *Engine) SaveFile(fs *storage.FileStore, name string) error {
	_, data := e.Snapshot()
	return fs.Save(name, data)
}

// LoadFile читает мир из плоского файла того же размера
func (e *Engine) LoadFile(ctx context.Context, fs *storage.FileStore, name string) error {
	dims := e.chunkDims()
	data, err := fs.Load(name, storage.ExpectedSize(dims))
	if err != nil {
		return err
	}
	return e.Restore(ctx, dims, data)
}
