package lighting

import (
	"time"

	"github.com/annel0/voxelight/internal/logging"
	"github.com/annel0/voxelight/internal/vec"
	"github.com/annel0/voxelight/internal/world"
	"github.com/annel0/voxelight/internal/world/block"
)

// Lighting управляет четырьмя решателями: R, G, B и Sun
type Lighting struct {
	solvers [world.Channels]*Solver
	metrics *Metrics
	logger  *logging.Logger
}

// NewLighting создаёт оркестратор освещения. metrics может быть nil.
func NewLighting(metrics *Metrics) *Lighting {
	l := &Lighting{
		metrics: metrics,
		logger:  logging.GetLightingLogger(),
	}
	for ch := range l.solvers {
		l.solvers[ch] = NewSolver(ch)
	}
	return l
}

// Solver возвращает решатель канала
func (l *Lighting) Solver(channel int) *Solver {
	return l.solvers[channel]
}

// Clear обнуляет освещение во всех чанках и сбрасывает очереди
func (l *Lighting) Clear(g *world.Grid) {
	for _, c := range g.Chunks() {
		c.Light.Clear()
		c.MarkModified()
	}
	for _, s := range l.solvers {
		s.Reset()
	}
}

// OnWorldLoaded полностью пересчитывает освещение мира
func (l *Lighting) OnWorldLoaded(catalog *block.Catalog, g *world.Grid) {
	start := time.Now()
	size := g.Size()

	// Источники цветного света
	emitters := 0
	for y := 0; y < size.Y; y++ {
		for z := 0; z < size.Z; z++ {
			for x := 0; x < size.X; x++ {
				v, _ := g.Voxel(x, y, z)
				if v.IsAir() {
					continue
				}
				emission := catalog.Emission(v.ID)
				if emission == [3]uint8{} {
					continue
				}
				for ch := world.ChannelRed; ch <= world.ChannelBlue; ch++ {
					l.solvers[ch].Add(g, x, y, z, emission[ch])
				}
				emitters++
			}
		}
	}

	// Солнце: сверху вниз до первого непрозрачного вокселя.
	// surface[x,z] - нижняя освещённая высота колонки.
	surface := make([]int, size.X*size.Z)
	for z := 0; z < size.Z; z++ {
		for x := 0; x < size.X; x++ {
			y := size.Y - 1
			for ; y >= 0; y-- {
				v, _ := g.Voxel(x, y, z)
				if !v.IsAir() {
					break
				}
				g.SetLight(x, y, z, world.ChannelSun, world.MaxLight)
			}
			surface[z*size.X+x] = y + 1
		}
	}

	// Затравка на границах тени: снизу вверх по тому же столбу воздуха
	sun := l.solvers[world.ChannelSun]
	for z := 0; z < size.Z; z++ {
		for x := 0; x < size.X; x++ {
			for y := surface[z*size.X+x]; y < size.Y; y++ {
				if l.hasDarkNeighbour(g, x, y, z) {
					sun.Reseed(g, x, y, z)
				}
			}
		}
	}

	l.solveAll(catalog, g)
	l.metrics.observeEvent("world_loaded")

	l.logger.Debug("освещение пересчитано: %d источников, %dx%dx%d вокселей за %v",
		emitters, size.X, size.Y, size.Z, time.Since(start))
}

func (l *Lighting) hasDarkNeighbour(g *world.Grid, x, y, z int) bool {
	for _, face := range vec.Faces {
		if g.Light(x+face.X, y+face.Y, z+face.Z, world.ChannelSun) == 0 {
			return true
		}
	}
	return false
}

// OnBlockSet обновляет освещение после записи блока id в (x, y, z).
// Вызывается после grid.Set. Удаление всегда завершается до добавления.
func (l *Lighting) OnBlockSet(x, y, z int, id block.BlockID, catalog *block.Catalog, g *world.Grid) {
	if id == block.AirBlockID {
		l.onBlockBroken(x, y, z, catalog, g)
		l.metrics.observeEvent("block_broken")
		return
	}
	l.onBlockPlaced(x, y, z, id, catalog, g)
	l.metrics.observeEvent("block_placed")
}

func (l *Lighting) onBlockBroken(x, y, z int, catalog *block.Catalog, g *world.Grid) {
	for ch := world.ChannelRed; ch <= world.ChannelBlue; ch++ {
		l.solvers[ch].Remove(g, x, y, z)
	}
	l.solveColors(catalog, g)

	// Открытый сверху столб снова получает солнце
	if l.openToSky(g, x, y+1, z) {
		sun := l.solvers[world.ChannelSun]
		for i := y; i >= 0; i-- {
			v, ok := g.Voxel(x, i, z)
			if !ok || !v.IsAir() {
				break
			}
			sun.Add(g, x, i, z, world.MaxLight)
		}
	}

	l.reseedNeighbours(x, y, z, g)
	l.solveAll(catalog, g)
}

// openToSky возвращает true, если ячейка получает полный солнечный свет.
// Пространство над верхней границей мира считается открытым небом.
func (l *Lighting) openToSky(g *world.Grid, x, y, z int) bool {
	if y >= g.Size().Y {
		return g.InBounds(x, g.Size().Y-1, z)
	}
	return g.Light(x, y, z, world.ChannelSun) == world.MaxLight
}

func (l *Lighting) onBlockPlaced(x, y, z int, id block.BlockID, catalog *block.Catalog, g *world.Grid) {
	for _, s := range l.solvers {
		s.Remove(g, x, y, z)
	}

	// Новый блок затеняет столб воздуха под собой
	sun := l.solvers[world.ChannelSun]
	for i := y - 1; i >= 0; i-- {
		v, ok := g.Voxel(x, i, z)
		if !ok || !v.IsAir() {
			break
		}
		sun.Remove(g, x, i, z)
	}

	l.solveAll(catalog, g)

	// Каждый цветной канал проверяется по своему значению излучения
	emission := catalog.Emission(id)
	if emission[0] != 0 || emission[1] != 0 || emission[2] != 0 {
		for ch := world.ChannelRed; ch <= world.ChannelBlue; ch++ {
			l.solvers[ch].Add(g, x, y, z, emission[ch])
		}
		l.solveColors(catalog, g)
	}

	// Прозрачный блок снова пропускает свет соседей
	if catalog.LightPassing(id) {
		l.reseedNeighbours(x, y, z, g)
		l.solveAll(catalog, g)
	}
}

func (l *Lighting) reseedNeighbours(x, y, z int, g *world.Grid) {
	for _, face := range vec.Faces {
		nx, ny, nz := x+face.X, y+face.Y, z+face.Z
		for _, s := range l.solvers {
			s.Reseed(g, nx, ny, nz)
		}
	}
}

func (l *Lighting) solveColors(catalog *block.Catalog, g *world.Grid) {
	for ch := world.ChannelRed; ch <= world.ChannelBlue; ch++ {
		l.solve(ch, catalog, g)
	}
}

func (l *Lighting) solveAll(catalog *block.Catalog, g *world.Grid) {
	for ch := range l.solvers {
		l.solve(ch, catalog, g)
	}
}

func (l *Lighting) solve(channel int, catalog *block.Catalog, g *world.Grid) {
	start := time.Now()
	stats := l.solvers[channel].Solve(g, catalog)
	l.metrics.observeSolve(channel, stats, time.Since(start))
}
