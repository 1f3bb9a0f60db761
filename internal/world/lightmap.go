package world

// Каналы света. Каждый канал хранится в своей 4-битной ячейке слова LightMap.
const (
	ChannelRed   = 0
	ChannelGreen = 1
	ChannelBlue  = 2
	ChannelSun   = 3

	// Channels - количество каналов света
	Channels = 4
	// MaxLight - максимальное значение света в канале
	MaxLight = 15
)

// LightMap хранит освещённость чанка: одно 16-битное слово на воксель,
// четыре 4-битных поля (R, G, B, Sun).
type LightMap struct {
	Map [ChunkVol]uint16
}

// NewLightMap создаёт пустую карту освещённости
func NewLightMap() *LightMap {
	return &LightMap{}
}

// Get возвращает значение канала в локальных координатах чанка
func (lm *LightMap) Get(x, y, z, channel int) uint8 {
	return uint8((lm.Map[LocalIndex(x, y, z)] >> (channel << 2)) & 0xF)
}

// Set записывает значение канала; значение обрезается до 4 бит
func (lm *LightMap) Set(x, y, z, channel int, value uint8) {
	index := LocalIndex(x, y, z)
	shift := channel << 2
	lm.Map[index] = (lm.Map[index] &^ (0xF << shift)) | (uint16(value&0xF) << shift)
}

// R возвращает красный канал
func (lm *LightMap) R(x, y, z int) uint8 { return lm.Get(x, y, z, ChannelRed) }

// G возвращает зелёный канал
func (lm *LightMap) G(x, y, z int) uint8 { return lm.Get(x, y, z, ChannelGreen) }

// B возвращает синий канал
func (lm *LightMap) B(x, y, z int) uint8 { return lm.Get(x, y, z, ChannelBlue) }

// S возвращает солнечный канал
func (lm *LightMap) S(x, y, z int) uint8 { return lm.Get(x, y, z, ChannelSun) }

// SetR записывает красный канал
func (lm *LightMap) SetR(x, y, z int, value uint8) { lm.Set(x, y, z, ChannelRed, value) }

// SetG записывает зелёный канал
func (lm *LightMap) SetG(x, y, z int, value uint8) { lm.Set(x, y, z, ChannelGreen, value) }

// SetB записывает синий канал
func (lm *LightMap) SetB(x, y, z int, value uint8) { lm.Set(x, y, z, ChannelBlue, value) }

// SetS записывает солнечный канал
func (lm *LightMap) SetS(x, y, z int, value uint8) { lm.Set(x, y, z, ChannelSun, value) }

// Clear обнуляет все каналы
func (lm *LightMap) Clear() {
	lm.Map = [ChunkVol]uint16{}
}
