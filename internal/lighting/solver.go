// Package lighting распространяет свет по сетке вокселей.
//
// Каждый канал (R, G, B, Sun) обслуживает отдельный Solver с собственными
// очередями добавления и удаления. Lighting управляет четырьмя решателями
// при загрузке мира и при изменении отдельных блоков.
package lighting

import (
	"github.com/annel0/voxelight/internal/util"
	"github.com/annel0/voxelight/internal/vec"
	"github.com/annel0/voxelight/internal/world"
	"github.com/annel0/voxelight/internal/world/block"
)

// initialQueueSize - начальная ёмкость очередей решателя
const initialQueueSize = 1024

// lightEntry - элемент очереди решателя
type lightEntry struct {
	x, y, z int
	level   uint8
}

// SolveStats содержит счётчики одного вызова Solve
type SolveStats struct {
	Removed int // Обнулённые ячейки в фазе убывания
	Added   int // Записанные ячейки в фазе роста
}

// Solver распространяет свет одного канала поиском в ширину.
// Решатель не реентерабелен: Solve нельзя вызывать во время другого Solve.
type Solver struct {
	channel  int
	addQueue *util.Queue[lightEntry]
	remQueue *util.Queue[lightEntry]
}

// NewSolver создаёт решатель для канала 0..3
func NewSolver(channel int) *Solver {
	return &Solver{
		channel:  channel,
		addQueue: util.NewQueue[lightEntry](initialQueueSize),
		remQueue: util.NewQueue[lightEntry](initialQueueSize),
	}
}

// Channel возвращает канал решателя
func (s *Solver) Channel() int {
	return s.channel
}

// Pending возвращает количество необработанных элементов в обеих очередях
func (s *Solver) Pending() int {
	return s.addQueue.Len() + s.remQueue.Len()
}

// Add записывает уровень в ячейку и ставит её в очередь распространения.
// Уровни 0 и 1 не распространяются и игнорируются, как и ячейки вне мира.
// Уровень выше MaxLight обрезается.
func (s *Solver) Add(g *world.Grid, x, y, z int, level uint8) {
	if level <= 1 {
		return
	}
	level = min(level, world.MaxLight)
	if !g.SetLight(x, y, z, s.channel, level) {
		return
	}
	s.addQueue.Push(lightEntry{x: x, y: y, z: z, level: level})
}

// Reseed повторно запускает распространение из ячейки с её текущим значением
func (s *Solver) Reseed(g *world.Grid, x, y, z int) {
	s.Add(g, x, y, z, g.Light(x, y, z, s.channel))
}

// Remove немедленно обнуляет ячейку и ставит прежнее значение в очередь убывания
func (s *Solver) Remove(g *world.Grid, x, y, z int) {
	level := g.Light(x, y, z, s.channel)
	if level == 0 {
		return
	}
	s.remQueue.Push(lightEntry{x: x, y: y, z: z, level: level})
	g.SetLight(x, y, z, s.channel, 0)
}

// Solve опустошает обе очереди: сначала убывание, затем рост.
// Промах по каталогу считается непрозрачным блоком.
func (s *Solver) Solve(g *world.Grid, catalog *block.Catalog) SolveStats {
	var stats SolveStats

	for {
		entry, ok := s.remQueue.Pop()
		if !ok {
			break
		}
		for _, face := range vec.Faces {
			x, y, z := entry.x+face.X, entry.y+face.Y, entry.z+face.Z
			if !g.InBounds(x, y, z) {
				continue
			}

			light := g.Light(x, y, z, s.channel)
			switch {
			case light != 0 && light == entry.level-1:
				// Ячейка освещалась только убираемым источником
				s.remQueue.Push(lightEntry{x: x, y: y, z: z, level: light})
				g.SetLight(x, y, z, s.channel, 0)
				stats.Removed++
			case light >= entry.level:
				// Независимый источник заново заливает освободившееся место
				s.addQueue.Push(lightEntry{x: x, y: y, z: z, level: light})
			}
		}
	}

	for {
		entry, ok := s.addQueue.Pop()
		if !ok {
			break
		}
		if entry.level <= 1 {
			continue
		}
		next := entry.level - 1
		for _, face := range vec.Faces {
			x, y, z := entry.x+face.X, entry.y+face.Y, entry.z+face.Z

			voxel, ok := g.Voxel(x, y, z)
			if !ok || !catalog.LightPassing(voxel.ID) {
				continue
			}
			if g.Light(x, y, z, s.channel)+2 > entry.level {
				continue
			}
			g.SetLight(x, y, z, s.channel, next)
			s.addQueue.Push(lightEntry{x: x, y: y, z: z, level: next})
			stats.Added++
		}
	}

	return stats
}

// Reset очищает очереди без распространения
func (s *Solver) Reset() {
	s.addQueue.Clear()
	s.remQueue.Clear()
}
