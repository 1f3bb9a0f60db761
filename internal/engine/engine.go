// Package engine владеет сеткой вокселей и освещением и сериализует доступ к
// ним. Все изменения мира проходят через Engine: он пересчитывает свет,
// публикует события и сохраняет снимки.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxelight/internal/eventbus"
	"github.com/annel0/voxelight/internal/lighting"
	"github.com/annel0/voxelight/internal/logging"
	"github.com/annel0/voxelight/internal/storage"
	"github.com/annel0/voxelight/internal/vec"
	"github.com/annel0/voxelight/internal/world"
	"github.com/annel0/voxelight/internal/world/block"
)

// eventSource - значение Envelope.Source для событий движка
const eventSource = "engine"

var (
	// ErrUnknownBlock возвращается для идентификатора, отсутствующего в каталоге
	ErrUnknownBlock = errors.New("unknown block")
	// ErrOutOfBounds возвращается для координат вне сетки
	ErrOutOfBounds = errors.New("position out of world bounds")
	// ErrOccupied возвращается при установке блока в занятую ячейку
	ErrOccupied = errors.New("position is occupied")
	// ErrNoTarget возвращается, если луч не попал в блок
	ErrNoTarget = errors.New("ray hit nothing")
	// ErrDimsMismatch возвращается при восстановлении снимка другого размера
	ErrDimsMismatch = errors.New("snapshot dimensions do not match the world")
)

// Options задаёт параметры мира
type Options struct {
	Name    string            // Имя мира для снимков и событий
	Width   int               // В чанках
	Height  int               // В чанках
	Depth   int               // В чанках
	Source  world.VoxelSource // nil - пустой мир
	Catalog *block.Catalog    // nil - встроенный набор блоков
	Metrics *lighting.Metrics // Может быть nil
	Bus     eventbus.EventBus // Может быть nil
}

// Engine - потокобезопасный фасад над сеткой и освещением
type Engine struct {
	mu      sync.RWMutex
	name    string
	catalog *block.Catalog
	grid    *world.Grid
	light   *lighting.Lighting
	bus     eventbus.EventBus
	tracer  trace.Tracer
	logger  *logging.Logger

	// Чанки, разосланные RunModifiedFeed, но ещё не забранные через DrainModified
	backlog     []vec.Vec3
	backlogSeen map[vec.Vec3]struct{}

	edits    atomic.Uint64
	restored atomic.Uint64
	started  time.Time
}

// New строит мир, заполняет его из источника и рассчитывает освещение
func New(opts Options) (*Engine, error) {
	if opts.Name == "" {
		opts.Name = "main"
	}
	if !storage.ValidWorldName(opts.Name) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidWorldName, opts.Name)
	}
	if opts.Catalog == nil {
		opts.Catalog = block.DefaultCatalog()
	}

	grid, err := world.NewGrid(opts.Width, opts.Height, opts.Depth, opts.Source)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		name:    opts.Name,
		catalog: opts.Catalog,
		grid:    grid,
		light:   lighting.NewLighting(opts.Metrics),
		bus:     opts.Bus,
		tracer:  otel.Tracer("github.com/annel0/voxelight/internal/engine"),
		logger:  logging.GetComponentLogger("engine"),
		started: time.Now(),
	}

	start := time.Now()
	e.light.OnWorldLoaded(e.catalog, e.grid)
	e.logger.Info("🌍 Мир %s %dx%dx%d чанков освещён за %s", e.name, opts.Width, opts.Height, opts.Depth, time.Since(start))

	e.publish(context.Background(), eventbus.EventWorldLoaded, 5, WorldLoadedPayload{World: e.name, Chunks: e.chunkDims()})
	return e, nil
}

// Name возвращает имя мира
func (e *Engine) Name() string { return e.name }

// Catalog возвращает каталог блоков
func (e *Engine) Catalog() *block.Catalog { return e.catalog }

// Set записывает блок в ячейку и пересчитывает освещение.
// Запись того же блока ничего не меняет.
func (e *Engine) Set(ctx context.Context, x, y, z int, id block.BlockID) (Change, error) {
	_, span := e.tracer.Start(ctx, "engine.Set", trace.WithAttributes(
		attribute.Int("x", x), attribute.Int("y", y), attribute.Int("z", z), attribute.Int("block", int(id)),
	))
	defer span.End()

	if id != block.AirBlockID && !e.catalog.IsRegistered(id) {
		return Change{}, fmt.Errorf("%w: %d", ErrUnknownBlock, id)
	}

	e.mu.Lock()
	change, err := e.setLocked(x, y, z, id, false)
	e.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		return Change{}, err
	}
	if change.Changed {
		e.publishChange(ctx, change)
	}
	return change, nil
}

// Place ставит блок только в пустую ячейку
func (e *Engine) Place(ctx context.Context, x, y, z int, id block.BlockID) (Change, error) {
	if id == block.AirBlockID {
		return Change{}, fmt.Errorf("%w: нельзя поставить воздух", ErrUnknownBlock)
	}
	if !e.catalog.IsRegistered(id) {
		return Change{}, fmt.Errorf("%w: %d", ErrUnknownBlock, id)
	}

	e.mu.Lock()
	change, err := e.setLocked(x, y, z, id, true)
	e.mu.Unlock()

	if err != nil {
		return Change{}, err
	}
	e.publishChange(ctx, change)
	return change, nil
}

// Break заменяет блок воздухом. Для пустой ячейки ничего не делает.
func (e *Engine) Break(ctx context.Context, x, y, z int) (Change, error) {
	return e.Set(ctx, x, y, z, block.AirBlockID)
}

// setLocked вызывается под e.mu
func (e *Engine) setLocked(x, y, z int, id block.BlockID, mustBeAir bool) (Change, error) {
	prev, ok := e.grid.Voxel(x, y, z)
	if !ok {
		return Change{}, fmt.Errorf("%w: (%d, %d, %d)", ErrOutOfBounds, x, y, z)
	}
	if mustBeAir && !prev.IsAir() {
		return Change{}, fmt.Errorf("%w: (%d, %d, %d)", ErrOccupied, x, y, z)
	}

	change := Change{Pos: vec.Vec3{X: x, Y: y, Z: z}, Prev: prev.ID, ID: id}
	if prev.ID == id {
		return change, nil
	}

	e.grid.Set(x, y, z, id)
	e.light.OnBlockSet(x, y, z, id, e.catalog, e.grid)
	e.edits.Add(1)

	change.Changed = true
	return change, nil
}

// Voxel возвращает блок в ячейке
func (e *Engine) Voxel(x, y, z int) (block.BlockID, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.grid.Voxel(x, y, z)
	return v.ID, ok
}

// Light возвращает освещённость ячейки по всем каналам
func (e *Engine) Light(x, y, z int) (LightSample, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.grid.InBounds(x, y, z) {
		return LightSample{}, false
	}
	return LightSample{
		R:   e.grid.Light(x, y, z, world.ChannelRed),
		G:   e.grid.Light(x, y, z, world.ChannelGreen),
		B:   e.grid.Light(x, y, z, world.ChannelBlue),
		Sun: e.grid.Light(x, y, z, world.ChannelSun),
	}, true
}

// Pick ищет первый непустой блок вдоль луча
func (e *Engine) Pick(origin, dir mgl32.Vec3, maxDist float32) (world.RayHit, bool) {
	if limit := e.MaxReach(); maxDist > limit {
		maxDist = limit
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.grid.RayCast(origin, dir, maxDist)
}

// MaxReach возвращает диагональ мира - предельную осмысленную дальность луча
func (e *Engine) MaxReach() float32 {
	size := e.grid.Size()
	return mgl32.Vec3{float32(size.X), float32(size.Y), float32(size.Z)}.Len()
}

// PlaceAgainst ставит блок к грани, в которую попал луч
func (e *Engine) PlaceAgainst(ctx context.Context, origin, dir mgl32.Vec3, maxDist float32, id block.BlockID) (Change, error) {
	hit, ok := e.Pick(origin, dir, maxDist)
	if !ok {
		return Change{}, ErrNoTarget
	}
	target := hit.Pos.Add(vec.Vec3{X: int(hit.Normal.X()), Y: int(hit.Normal.Y()), Z: int(hit.Normal.Z())})
	return e.Place(ctx, target.X, target.Y, target.Z, id)
}

// BreakTarget ломает блок, в который попал луч
func (e *Engine) BreakTarget(ctx context.Context, origin, dir mgl32.Vec3, maxDist float32) (Change, error) {
	hit, ok := e.Pick(origin, dir, maxDist)
	if !ok {
		return Change{}, ErrNoTarget
	}
	return e.Break(ctx, hit.Pos.X, hit.Pos.Y, hit.Pos.Z)
}

// DrainModified возвращает координаты изменённых чанков и снимает с них
// отметку. Чанки, уже разосланные RunModifiedFeed, тоже входят в результат
// один раз. ChunksModified публикуется только для новых чанков.
func (e *Engine) DrainModified(ctx context.Context) []vec.Vec3 {
	e.mu.Lock()
	fresh := e.grid.DrainModified()
	chunks := e.backlog
	for _, c := range fresh {
		if _, ok := e.backlogSeen[c]; !ok {
			chunks = append(chunks, c)
		}
	}
	e.backlog = nil
	e.backlogSeen = nil
	e.mu.Unlock()

	if len(fresh) > 0 {
		e.publish(ctx, eventbus.EventChunksModified, 5, ChunksModifiedPayload{World: e.name, Chunks: fresh})
	}
	return chunks
}

// feedModified снимает отметки для рассылки и запоминает чанки до DrainModified
func (e *Engine) feedModified(ctx context.Context) []vec.Vec3 {
	e.mu.Lock()
	fresh := e.grid.DrainModified()
	if len(fresh) > 0 && e.backlogSeen == nil {
		e.backlogSeen = make(map[vec.Vec3]struct{}, len(fresh))
	}
	for _, c := range fresh {
		if _, ok := e.backlogSeen[c]; ok {
			continue
		}
		e.backlogSeen[c] = struct{}{}
		e.backlog = append(e.backlog, c)
	}
	e.mu.Unlock()

	if len(fresh) > 0 {
		e.publish(ctx, eventbus.EventChunksModified, 5, ChunksModifiedPayload{World: e.name, Chunks: fresh})
	}
	return fresh
}

// Neighbourhood возвращает копии вокселей чанка и 26 соседей для мешера.
// Отсутствующие соседи - nil.
func (e *Engine) Neighbourhood(cx, cy, cz int) ([27]*world.Chunk, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out [27]*world.Chunk
	if e.grid.Chunk(cx, cy, cz) == nil {
		return out, false
	}
	for i, c := range e.grid.Neighbourhood(cx, cy, cz) {
		if c == nil {
			continue
		}
		cp := *c
		out[i] = &cp
	}
	return out, true
}

// ChunkData возвращает копию чанка по координатам сетки чанков
func (e *Engine) ChunkData(cx, cy, cz int) (ChunkData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c := e.grid.Chunk(cx, cy, cz)
	if c == nil {
		return ChunkData{}, false
	}

	data := ChunkData{
		Coords:   c.Coords(),
		Voxels:   make([]byte, len(c.Voxels)),
		Light:    make([]uint16, len(c.Light.Map)),
		Modified: c.Modified(),
	}
	for i, v := range c.Voxels {
		data.Voxels[i] = byte(v.ID)
	}
	copy(data.Light, c.Light.Map[:])
	return data, true
}

// Recalculate полностью пересчитывает освещение мира
func (e *Engine) Recalculate(ctx context.Context) {
	_, span := e.tracer.Start(ctx, "engine.Recalculate")
	defer span.End()

	e.mu.Lock()
	e.relightLocked()
	e.mu.Unlock()
}

func (e *Engine) relightLocked() {
	e.light.Clear(e.grid)
	e.light.OnWorldLoaded(e.catalog, e.grid)
}

// Info возвращает сводку о мире
func (e *Engine) Info() Info {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Info{
		Name:           e.name,
		Chunks:         e.chunkDims(),
		Size:           e.grid.Size(),
		Volume:         e.grid.Volume(),
		ModifiedChunks: e.grid.ModifiedCount(),
		PendingChunks:  len(e.backlog),
		Blocks:         e.catalog.Len(),
		Edits:          e.edits.Load(),
		Restores:       e.restored.Load(),
		Uptime:         time.Since(e.started).Round(time.Second).String(),
	}
}

// chunkDims не требует блокировки: размеры сетки неизменны
func (e *Engine) chunkDims() vec.Vec3 {
	return vec.Vec3{X: e.grid.Width(), Y: e.grid.Height(), Z: e.grid.Depth()}
}

func (e *Engine) publishChange(ctx context.Context, change Change) {
	e.publish(ctx, eventbus.EventVoxelChanged, 3, VoxelChangedPayload{
		World: e.name,
		Pos:   change.Pos,
		Prev:  uint8(change.Prev),
		ID:    uint8(change.ID),
	})
}

// publish отправляет событие в шину. Ошибки шины не прерывают изменение мира.
func (e *Engine) publish(ctx context.Context, eventType string, priority int, payload any) {
	if e.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventSource, eventType, priority, payload)
	if err != nil {
		e.logger.Error("❌ %v", err)
		return
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("⚠️ Не удалось опубликовать %s: %v", eventType, err)
	}
}
