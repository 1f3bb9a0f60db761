package block

import (
	"errors"
	"fmt"
)

// MaxBlocks - размер таблицы блоков (идентификатор блока занимает один байт)
const MaxBlocks = 256

// MaxEmission - максимальная яркость излучения по одному каналу
const MaxEmission = 15

var (
	// ErrAlreadyRegistered возвращается при повторной регистрации идентификатора
	ErrAlreadyRegistered = errors.New("block already registered")
	// ErrInvalidEmission возвращается, если излучение выходит за пределы 0..15
	ErrInvalidEmission = errors.New("block emission out of range")
)

// BlockID представляет идентификатор блока
type BlockID uint8

// Константы ID встроенных блоков
const (
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	GrassBlockID                // 2
	LampBlockID                 // 3
	GlassBlockID                // 4
	BrickBlockID                // 5
)

// Definition описывает тип блока. После регистрации не изменяется.
type Definition struct {
	ID           BlockID  `json:"id"`
	Name         string   `json:"name"`
	Emission     [3]uint8 `json:"emission"`      // R, G, B в диапазоне 0..15
	LightPassing bool     `json:"light_passing"` // пропускает ли блок свет
	DrawGroup    uint8    `json:"draw_group"`    // метаданные рендера, ядром не используются
	TextureFaces [6]int   `json:"texture_faces"` // метаданные рендера, ядром не используются
}

// NewDefinition создаёт непрозрачный неизлучающий блок с одной текстурой на всех гранях
func NewDefinition(id BlockID, name string, texture int) Definition {
	return Definition{
		ID:           id,
		Name:         name,
		TextureFaces: [6]int{texture, texture, texture, texture, texture, texture},
	}
}

// Emits возвращает true, если блок светится хотя бы по одному цветному каналу.
// Каждый канал проверяется отдельно.
func (d Definition) Emits() bool {
	return d.Emission[0] != 0 || d.Emission[1] != 0 || d.Emission[2] != 0
}

// Catalog - таблица определений блоков, индексируемая идентификатором.
// Заполняется один раз до работы с миром и далее только читается.
type Catalog struct {
	defs  [MaxBlocks]*Definition
	count int
}

// NewCatalog создаёт пустой каталог
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Register добавляет определение блока в каталог
func (c *Catalog) Register(def Definition) error {
	for ch, e := range def.Emission {
		if e > MaxEmission {
			return fmt.Errorf("%w: block %d channel %d = %d", ErrInvalidEmission, def.ID, ch, e)
		}
	}
	if c.defs[def.ID] != nil {
		return fmt.Errorf("%w: %d (%s)", ErrAlreadyRegistered, def.ID, c.defs[def.ID].Name)
	}

	d := def
	c.defs[def.ID] = &d
	c.count++
	return nil
}

// Get возвращает копию определения для указанного ID
func (c *Catalog) Get(id BlockID) (Definition, bool) {
	d := c.defs[id]
	if d == nil {
		return Definition{}, false
	}
	return *d, true
}

// IsRegistered проверяет, зарегистрирован ли идентификатор
func (c *Catalog) IsRegistered(id BlockID) bool {
	return c.defs[id] != nil
}

// LightPassing сообщает, пропускает ли блок свет.
// Воздух (ID 0) пропускает свет всегда; незарегистрированный блок считается непрозрачным.
func (c *Catalog) LightPassing(id BlockID) bool {
	if id == AirBlockID {
		return true
	}
	d := c.defs[id]
	return d != nil && d.LightPassing
}

// Emission возвращает излучение блока по каналам R, G, B.
// Для воздуха и незарегистрированных блоков излучение нулевое.
func (c *Catalog) Emission(id BlockID) [3]uint8 {
	if id == AirBlockID {
		return [3]uint8{}
	}
	d := c.defs[id]
	if d == nil {
		return [3]uint8{}
	}
	return d.Emission
}

// Len возвращает количество зарегистрированных блоков
func (c *Catalog) Len() int {
	return c.count
}

// Definitions возвращает все определения в порядке возрастания ID
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, c.count)
	for _, d := range c.defs {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}
