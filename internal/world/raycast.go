package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelight/internal/vec"
)

// RayHit описывает результат трассировки луча
type RayHit struct {
	Voxel  Voxel      // Найденный воксель (пустой при промахе)
	End    mgl32.Vec3 // Точка пересечения или приблизительная конечная точка
	Pos    vec.Vec3   // Целочисленная координата последней посещённой ячейки
	Normal mgl32.Vec3 // Нормаль грани, через которую вошёл луч
}

// RayCast проходит по сетке вокселей методом Amanatides–Woo.
// Возвращает true при попадании в непустой воксель не дальше maxDist.
// При промахе RayHit содержит ячейку, на которой остановился обход, и конечную точку.
// Обход прекращается, как только луч покинул сетку и удаляется от неё.
func (g *Grid) RayCast(origin, dir mgl32.Vec3, maxDist float32) (RayHit, bool) {
	var hit RayHit

	if dir.Len() == 0 {
		// Луч без направления проверяет только начальную ячейку
		pos := floorVec(origin)
		hit.Pos = pos
		hit.End = origin
		if v, ok := g.Voxel(pos.X, pos.Y, pos.Z); ok && !v.IsAir() {
			hit.Voxel = v
			return hit, true
		}
		return hit, false
	}

	pos := floorVec(origin)
	cell := [3]int{pos.X, pos.Y, pos.Z}

	var step [3]int
	var tDelta, tMax [3]float32

	for axis := 0; axis < 3; axis++ {
		d := dir[axis]
		switch {
		case d > 0:
			step[axis] = 1
		case d < 0:
			step[axis] = -1
		}

		if d == 0 {
			// Ось параллельна лучу: по ней шаг никогда не выбирается
			tDelta[axis] = float32(math.Inf(1))
			tMax[axis] = float32(math.Inf(1))
			continue
		}

		tDelta[axis] = float32(math.Abs(float64(1 / d)))
		var dist float32
		if step[axis] > 0 {
			dist = float32(cell[axis]+1) - origin[axis]
		} else {
			dist = origin[axis] - float32(cell[axis])
		}
		tMax[axis] = tDelta[axis] * dist
	}

	size := g.Size()
	bounds := [3]int{size.X, size.Y, size.Z}

	t := float32(0)
	lastAxis := -1

	for t <= maxDist {
		if leaving(cell, step, bounds) {
			break
		}

		if v, ok := g.Voxel(cell[0], cell[1], cell[2]); ok && !v.IsAir() {
			hit.Voxel = v
			hit.End = origin.Add(dir.Mul(t))
			hit.Pos = vec.Vec3{X: cell[0], Y: cell[1], Z: cell[2]}
			if lastAxis >= 0 {
				hit.Normal[lastAxis] = float32(-step[lastAxis])
			}
			return hit, true
		}

		axis := minAxis(tMax)
		next := tMax[axis] + tDelta[axis]
		if !(next > tMax[axis]) {
			// Точности float32 не хватает: t перестал расти
			break
		}
		lastAxis = axis
		t = tMax[axis]
		cell[axis] += step[axis]
		tMax[axis] = next
	}

	// Промах: нормаль нулевая, конечная точка на границе последней ячейки
	hit.End = origin.Add(dir.Mul(t))
	hit.Pos = vec.Vec3{X: cell[0], Y: cell[1], Z: cell[2]}
	return hit, false
}

// leaving сообщает, что ячейка вне сетки и луч по одной из осей от неё удаляется
func leaving(cell, step, bounds [3]int) bool {
	for axis := 0; axis < 3; axis++ {
		if cell[axis] < 0 && step[axis] <= 0 {
			return true
		}
		if cell[axis] >= bounds[axis] && step[axis] >= 0 {
			return true
		}
	}
	return false
}

func minAxis(t [3]float32) int {
	if t[0] < t[1] {
		if t[0] < t[2] {
			return 0
		}
		return 2
	}
	if t[1] < t[2] {
		return 1
	}
	return 2
}

func floorVec(p mgl32.Vec3) vec.Vec3 {
	return vec.Vec3{
		X: int(math.Floor(float64(p[0]))),
		Y: int(math.Floor(float64(p[1]))),
		Z: int(math.Floor(float64(p[2]))),
	}
}
