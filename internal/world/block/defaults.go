package block

// DefaultCatalog возвращает каталог встроенных блоков
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, def := range defaultDefinitions() {
		// Встроенная таблица корректна, ошибка здесь невозможна
		if err := c.Register(def); err != nil {
			panic(err)
		}
	}
	return c
}

func defaultDefinitions() []Definition {
	air := NewDefinition(AirBlockID, "air", 0)
	air.DrawGroup = 1
	air.LightPassing = true

	stone := NewDefinition(StoneBlockID, "stone", 2)

	grass := NewDefinition(GrassBlockID, "grass", 4)
	grass.TextureFaces[2] = 2
	grass.TextureFaces[3] = 1

	lamp := NewDefinition(LampBlockID, "lamp", 3)
	lamp.Emission = [3]uint8{11, 11, 6}

	glass := NewDefinition(GlassBlockID, "glass", 5)
	glass.DrawGroup = 2
	glass.LightPassing = true

	brick := NewDefinition(BrickBlockID, "brick", 6)

	return []Definition{air, stone, grass, lamp, glass, brick}
}
