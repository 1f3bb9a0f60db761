package vec

// Vec3 представляет трехмерный вектор с целочисленными координатами
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Faces содержит шесть единичных смещений к соседям по граням.
// Порядок совпадает с порядком обхода соседей при распространении света.
var Faces = [6]Vec3{
	{X: 0, Y: 0, Z: 1},
	{X: 0, Y: 0, Z: -1},
	{X: 0, Y: 1, Z: 0},
	{X: 0, Y: -1, Z: 0},
	{X: 1, Y: 0, Z: 0},
	{X: -1, Y: 0, Z: 0},
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Manhattan возвращает манхэттенское расстояние до другого вектора
func (v Vec3) Manhattan(other Vec3) int {
	return abs(v.X-other.X) + abs(v.Y-other.Y) + abs(v.Z-other.Z)
}

// Neighbours возвращает шесть соседей по граням в порядке Faces
func (v Vec3) Neighbours() [6]Vec3 {
	var out [6]Vec3
	for i, f := range Faces {
		out[i] = v.Add(f)
	}
	return out
}

// FloorDiv делит с округлением вниз, поэтому -1/16 даёт -1, а не 0.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod возвращает неотрицательный остаток, согласованный с FloorDiv.
func FloorMod(a, b int) int {
	return a - FloorDiv(a, b)*b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
