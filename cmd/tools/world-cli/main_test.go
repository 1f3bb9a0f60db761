package main

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelight/internal/config"
	"github.com/annel0/voxelight/internal/world"
)

func TestParseVec3(t *testing.T) {
	v, err := parseVec3("1.5, -2,3")
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{1.5, -2, 3}, v)

	_, err = parseVec3("1,2")
	assert.Error(t, err)
	_, err = parseVec3("1,x,3")
	assert.Error(t, err)
}

func TestCollectHistogramFlatWorld(t *testing.T) {
	cfg := config.Default()
	cfg.World.Width, cfg.World.Height, cfg.World.Depth = 1, 1, 1
	cfg.World.Terrain.Kind = "flat"
	cfg.World.Terrain.Ground = 4

	eng, err := buildWorld(cfg)
	require.NoError(t, err)

	h := collectHistogram(eng)
	airCells := world.ChunkW * world.ChunkD * (world.ChunkH - 4)
	assert.Equal(t, airCells, h.Air)
	assert.Equal(t, airCells, h.Sun[world.MaxLight], "Над плоским ландшафтом всё открыто небу")
	assert.Equal(t, airCells, h.Color[0])
}
