package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorDiv(t *testing.T) {
	cases := []struct {
		a, b, div, mod int
	}{
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{16, 16, 1, 0},
		{-1, 16, -1, 15},
		{-16, 16, -1, 0},
		{-17, 16, -2, 15},
		{33, 16, 2, 1},
	}

	for _, c := range cases {
		assert.Equal(t, c.div, FloorDiv(c.a, c.b), "FloorDiv(%d, %d)", c.a, c.b)
		assert.Equal(t, c.mod, FloorMod(c.a, c.b), "FloorMod(%d, %d)", c.a, c.b)
	}
}

func TestNeighbours(t *testing.T) {
	origin := Vec3{X: 1, Y: 2, Z: 3}
	n := origin.Neighbours()

	for i, p := range n {
		assert.Equal(t, 1, origin.Manhattan(p), "сосед %d должен быть на расстоянии 1", i)
		assert.True(t, p.Sub(origin).Equals(Faces[i]))
	}
}
