// Package terrain содержит источники вокселей для построения мира.
package terrain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/annel0/voxelight/internal/util"
	"github.com/annel0/voxelight/internal/world"
	"github.com/annel0/voxelight/internal/world/block"
)

// Kind - тип генератора ландшафта
type Kind string

const (
	KindEmpty  Kind = "empty"
	KindFlat   Kind = "flat"
	KindWaves  Kind = "waves"
	KindPerlin Kind = "perlin"
)

// ErrUnknownKind возвращается для неизвестного типа генератора
var ErrUnknownKind = errors.New("unknown terrain kind")

// Константы генерации
const (
	WavesFrequency   = 0.8  // Частота синусоиды по x
	WavesAmplitude   = 10.0 // Максимальная высота волны
	NoiseScale       = 0.05 // Масштаб шума высоты
	LampNoiseScale   = 0.3  // Масштаб шума расстановки фонарей
	LampThreshold    = 0.78 // Порог шума для фонаря
	DefaultAmplitude = 12   // Перепад высот Perlin по умолчанию
)

// Options задаёт параметры генератора
type Options struct {
	Kind      Kind
	Seed      int64
	Ground    int // Уровень земли в вокселях
	Amplitude int // Перепад высот для Perlin
}

// New возвращает источник вокселей по параметрам
func New(opts Options) (world.VoxelSource, error) {
	switch Kind(strings.ToLower(string(opts.Kind))) {
	case KindEmpty, "":
		return Empty(), nil
	case KindFlat:
		return Flat(opts.Ground, block.StoneBlockID), nil
	case KindWaves:
		return Waves(), nil
	case KindPerlin:
		amp := opts.Amplitude
		if amp <= 0 {
			amp = DefaultAmplitude
		}
		return NewPerlin(opts.Seed, opts.Ground, amp).Source(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
}

// Empty возвращает источник, заполняющий мир воздухом
func Empty() world.VoxelSource {
	return func(x, y, z int) block.BlockID {
		return block.AirBlockID
	}
}

// Flat заполняет всё ниже ground указанным блоком
func Flat(ground int, id block.BlockID) world.VoxelSource {
	return func(x, y, z int) block.BlockID {
		if y < ground {
			return id
		}
		return block.AirBlockID
	}
}

// Waves строит холмы по синусоиде вдоль x с кирпичной прослойкой на высотах 3..5
func Waves() world.VoxelSource {
	return func(x, y, z int) block.BlockID {
		if y >= 3 && y <= 5 {
			return block.BrickBlockID
		}
		height := (math.Sin(float64(x)*WavesFrequency)*0.5 + 0.5) * WavesAmplitude
		if float64(y) <= height {
			return block.StoneBlockID
		}
		return block.AirBlockID
	}
}

// Perlin генерирует ландшафт по карте высот из шума Перлина.
// Высоты колонок кешируются; генератор не потокобезопасен.
type Perlin struct {
	height    *util.Noise
	lamps     *util.Noise
	ground    int
	amplitude int
	columns   map[[2]int]int
}

// NewPerlin создаёт генератор высот с указанным сидом
func NewPerlin(seed int64, ground, amplitude int) *Perlin {
	return &Perlin{
		height:    util.NewPerlinNoise(seed),
		lamps:     util.NewPerlinNoise(seed + 42),
		ground:    ground,
		amplitude: amplitude,
		columns:   make(map[[2]int]int),
	}
}

// Height возвращает высоту поверхности колонки (x, z)
func (p *Perlin) Height(x, z int) int {
	key := [2]int{x, z}
	if h, ok := p.columns[key]; ok {
		return h
	}
	n := p.height.Noise2D(float64(x)*NoiseScale, float64(z)*NoiseScale)
	h := p.ground + int(math.Round((n-0.5)*2*float64(p.amplitude)))
	if h < 0 {
		h = 0
	}
	p.columns[key] = h
	return h
}

// Block возвращает блок для глобальной координаты
func (p *Perlin) Block(x, y, z int) block.BlockID {
	h := p.Height(x, z)
	switch {
	case y < h:
		return block.StoneBlockID
	case y == h:
		return block.GrassBlockID
	case y == h+1 && p.lamps.Noise2D(float64(x)*LampNoiseScale, float64(z)*LampNoiseScale) > LampThreshold:
		// Фонари стоят на траве редкими пятнами
		return block.LampBlockID
	default:
		return block.AirBlockID
	}
}

// Source возвращает генератор в виде источника вокселей
func (p *Perlin) Source() world.VoxelSource {
	return p.Block
}
