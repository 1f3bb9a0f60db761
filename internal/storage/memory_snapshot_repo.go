package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/annel0/voxelight/internal/vec"
)

// MemorySnapshotRepo хранит снимки в памяти. Подходит для тестов и
// запуска без постоянного хранилища.
type MemorySnapshotRepo struct {
	mu        sync.RWMutex
	snapshots map[string]memorySnapshot
	latest    map[string]string
	closed    bool
}

type memorySnapshot struct {
	meta SnapshotMeta
	data []byte
}

// NewMemorySnapshotRepo создаёт пустое хранилище снимков в памяти
func NewMemorySnapshotRepo() *MemorySnapshotRepo {
	return &MemorySnapshotRepo{
		snapshots: make(map[string]memorySnapshot),
		latest:    make(map[string]string),
	}
}

// Save сохраняет копию данных
func (r *MemorySnapshotRepo) Save(ctx context.Context, world string, dims vec.Vec3, data []byte) (SnapshotMeta, error) {
	meta, err := newSnapshotMeta(world, dims, data)
	if err != nil {
		return SnapshotMeta{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return SnapshotMeta{}, ErrNotReady
	}

	r.snapshots[meta.ID] = memorySnapshot{meta: meta, data: append([]byte(nil), data...)}
	r.latest[world] = meta.ID
	return meta, nil
}

// Load возвращает копию данных снимка
func (r *MemorySnapshotRepo) Load(ctx context.Context, id string) (SnapshotMeta, []byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.snapshots[id]
	if !ok {
		return SnapshotMeta{}, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return snap.meta, append([]byte(nil), snap.data...), nil
}

// Latest возвращает последний снимок мира
func (r *MemorySnapshotRepo) Latest(ctx context.Context, world string) (SnapshotMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.latest[world]
	if !ok {
		return SnapshotMeta{}, fmt.Errorf("%w: мир %s", ErrSnapshotNotFound, world)
	}
	return r.snapshots[id].meta, nil
}

// List возвращает снимки мира
func (r *MemorySnapshotRepo) List(ctx context.Context, world string) ([]SnapshotMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []SnapshotMeta
	for _, snap := range r.snapshots {
		if snap.meta.World == world {
			out = append(out, snap.meta)
		}
	}
	sortByCreated(out)
	return out, nil
}

// Delete удаляет снимок; последний снимок мира переходит к предыдущему
func (r *MemorySnapshotRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.snapshots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	delete(r.snapshots, id)

	if r.latest[snap.meta.World] != id {
		return nil
	}
	delete(r.latest, snap.meta.World)

	var newest *SnapshotMeta
	for _, other := range r.snapshots {
		if other.meta.World != snap.meta.World {
			continue
		}
		m := other.meta
		if newest == nil || m.CreatedAt.After(newest.CreatedAt) {
			newest = &m
		}
	}
	if newest != nil {
		r.latest[snap.meta.World] = newest.ID
	}
	return nil
}

// Close помечает хранилище закрытым
func (r *MemorySnapshotRepo) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
