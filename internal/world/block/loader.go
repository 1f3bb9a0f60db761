package block

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile - корневая структура YAML-файла каталога
type catalogFile struct {
	Blocks []blockEntry `yaml:"blocks"`
}

type blockEntry struct {
	ID           int    `yaml:"id"`
	Name         string `yaml:"name"`
	Emission     []int  `yaml:"emission"`
	LightPassing bool   `yaml:"light_passing"`
	DrawGroup    int    `yaml:"draw_group"`
	Texture      int    `yaml:"texture"`
	TextureFaces []int  `yaml:"texture_faces"`
}

// LoadCatalogYAML читает каталог блоков из YAML файла
func LoadCatalogYAML(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога блоков %s: %w", path, err)
	}
	return ParseCatalogYAML(data)
}

// ParseCatalogYAML разбирает каталог блоков из YAML.
// Если воздух (ID 0) не описан, он добавляется автоматически.
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора каталога блоков: %w", err)
	}

	c := NewCatalog()
	for i, entry := range file.Blocks {
		def, err := entry.definition()
		if err != nil {
			return nil, fmt.Errorf("блок #%d: %w", i, err)
		}
		if err := c.Register(def); err != nil {
			return nil, err
		}
	}

	if !c.IsRegistered(AirBlockID) {
		air := NewDefinition(AirBlockID, "air", 0)
		air.LightPassing = true
		air.DrawGroup = 1
		if err := c.Register(air); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (e blockEntry) definition() (Definition, error) {
	if e.ID < 0 || e.ID >= MaxBlocks {
		return Definition{}, fmt.Errorf("id %d вне диапазона 0..%d", e.ID, MaxBlocks-1)
	}
	if len(e.Emission) > 3 {
		return Definition{}, fmt.Errorf("%w: ожидалось не более 3 каналов, получено %d", ErrInvalidEmission, len(e.Emission))
	}
	if e.DrawGroup < 0 || e.DrawGroup > 255 {
		return Definition{}, fmt.Errorf("draw_group %d вне диапазона", e.DrawGroup)
	}

	def := NewDefinition(BlockID(e.ID), e.Name, e.Texture)
	def.LightPassing = e.LightPassing
	def.DrawGroup = uint8(e.DrawGroup)

	for ch, v := range e.Emission {
		if v < 0 || v > MaxEmission {
			return Definition{}, fmt.Errorf("%w: канал %d = %d", ErrInvalidEmission, ch, v)
		}
		def.Emission[ch] = uint8(v)
	}

	if len(e.TextureFaces) > 0 {
		if len(e.TextureFaces) != 6 {
			return Definition{}, fmt.Errorf("texture_faces: ожидалось 6 значений, получено %d", len(e.TextureFaces))
		}
		copy(def.TextureFaces[:], e.TextureFaces)
	}

	return def, nil
}
