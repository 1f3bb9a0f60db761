package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxelight/internal/logging"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	World      WorldConfig     `yaml:"world"`
	BlocksFile string          `yaml:"blocks_file"` // YAML каталога блоков; пусто - встроенный набор
	Storage    StorageConfig   `yaml:"storage"`
	Server     ServerConfig    `yaml:"server"`
	EventBus   EventBusConfig  `yaml:"eventbus"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// WorldConfig описывает размеры мира и генератор ландшафта
type WorldConfig struct {
	Name    string        `yaml:"name"`
	Width   int           `yaml:"width"`  // В чанках
	Height  int           `yaml:"height"` // В чанках
	Depth   int           `yaml:"depth"`  // В чанках
	Terrain TerrainConfig `yaml:"terrain"`
}

type TerrainConfig struct {
	Kind      string `yaml:"kind"` // empty, flat, waves, perlin
	Seed      int64  `yaml:"seed"`
	Ground    int    `yaml:"ground"`
	Amplitude int    `yaml:"amplitude"`
}

type StorageConfig struct {
	Backend     string      `yaml:"backend"` // badger, memory, redis, mysql
	DataDir     string      `yaml:"data_dir"`
	WorldFile   string      `yaml:"world_file"` // Плоский файл мира относительно data_dir
	Redis       RedisConfig `yaml:"redis"`
	MariaDSN    string      `yaml:"mysql_dsn"`
	LoadOnStart bool        `yaml:"load_on_start"` // Восстановить последний снимок при старте
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	TTLHours  int    `yaml:"ttl_hours"` // 0 - без истечения
}

// OperatorConfig - учётная запись оператора с bcrypt-хешем пароля
type OperatorConfig struct {
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
	Admin        bool   `yaml:"admin"`
}

type ServerConfig struct {
	RESTPort         int              `yaml:"rest_port"`
	JWTSecret        string           `yaml:"jwt_secret"` // base64, не менее 32 байт
	TokenTTLHours    int              `yaml:"token_ttl_hours"`
	StreamIntervalMs int              `yaml:"stream_interval_ms"` // Период рассылки изменённых чанков, 0 - отключена
	Operators        []OperatorConfig `yaml:"operators"`
}

// EventBusConfig: пустой URL - шина в памяти процесса
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"` // Ёмкость шины в памяти
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"` // Пусто - только консоль
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Name:   "main",
			Width:  4,
			Height: 1,
			Depth:  4,
			Terrain: TerrainConfig{
				Kind:   "perlin",
				Seed:   1,
				Ground: 6,
			},
		},
		Storage: StorageConfig{
			Backend:   "badger",
			DataDir:   "data",
			WorldFile: "world.bin",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "voxelight:",
			},
		},
		Server: ServerConfig{
			TokenTTLHours:    24,
			StreamIntervalMs: 100,
		},
		EventBus: EventBusConfig{
			Stream:    "VOXEL",
			Retention: 24,
			Buffer:    1024,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// TokenTTL возвращает срок жизни JWT
func (s *ServerConfig) TokenTTL() time.Duration {
	return time.Duration(s.TokenTTLHours) * time.Hour
}

// StreamInterval возвращает период рассылки изменённых чанков
func (s *ServerConfig) StreamInterval() time.Duration {
	return time.Duration(s.StreamIntervalMs) * time.Millisecond
}

// RetentionDuration возвращает срок хранения событий в JetStream
func (e *EventBusConfig) RetentionDuration() time.Duration {
	return time.Duration(e.Retention) * time.Hour
}

// TTL возвращает срок жизни снимков в Redis
func (r *RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLHours) * time.Hour
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", используется ENV VOXEL_CONFIG; без него возвращается Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse разбирает YAML поверх значений по умолчанию и проверяет результат
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	var errs []error

	if c.World.Width <= 0 || c.World.Height <= 0 || c.World.Depth <= 0 {
		errs = append(errs, fmt.Errorf("world: размеры должны быть положительными, получено %dx%dx%d",
			c.World.Width, c.World.Height, c.World.Depth))
	}
	if c.World.Terrain.Ground < 0 {
		errs = append(errs, errors.New("world.terrain.ground не может быть отрицательным"))
	}

	switch c.Storage.Backend {
	case "badger", "memory", "":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr обязателен для backend redis"))
		}
	case "mysql", "mariadb":
		if c.Storage.MariaDSN == "" {
			errs = append(errs, errors.New("storage.mysql_dsn обязателен для backend mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: неизвестный тип %q", c.Storage.Backend))
	}

	if c.Server.RESTPort < 0 || c.Server.RESTPort > 65535 {
		errs = append(errs, fmt.Errorf("server.rest_port вне диапазона: %d", c.Server.RESTPort))
	}
	if c.Server.StreamIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("server.stream_interval_ms не может быть отрицательным: %d", c.Server.StreamIntervalMs))
	}
	for i, op := range c.Server.Operators {
		if op.Name == "" || op.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("server.operators[%d]: name и password_hash обязательны", i))
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio должен быть в 0..1, получено %v", c.Telemetry.SampleRatio))
	}

	return errors.Join(errs...)
}
