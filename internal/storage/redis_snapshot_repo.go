package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxelight/internal/logging"
	"github.com/annel0/voxelight/internal/vec"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни снимков; 0 - без истечения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "voxelight:",
	}
}

// RedisSnapshotRepo хранит снимки в Redis. Индекс снимков мира - sorted set
// с временем создания в качестве score.
type RedisSnapshotRepo struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshotRepo подключается к Redis и проверяет соединение
func NewRedisSnapshotRepo(ctx context.Context, config *RedisConfig) (*RedisSnapshotRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	logging.GetStorageLogger().Info("🔴 Подключено к Redis %s", config.Addr)
	return &RedisSnapshotRepo{
		client: client,
		prefix: config.KeyPrefix,
		ttl:    config.TTL,
	}, nil
}

func (r *RedisSnapshotRepo) metaKey(id string) string  { return r.prefix + "snap:" + id + ":meta" }
func (r *RedisSnapshotRepo) dataKey(id string) string  { return r.prefix + "snap:" + id + ":data" }
func (r *RedisSnapshotRepo) latestKey(w string) string { return r.prefix + "latest:" + w }
func (r *RedisSnapshotRepo) indexKey(w string) string  { return r.prefix + "index:" + w }

// Save сохраняет снимок одной транзакцией MULTI/EXEC
func (r *RedisSnapshotRepo) Save(ctx context.Context, world string, dims vec.Vec3, data []byte) (SnapshotMeta, error) {
	meta, err := newSnapshotMeta(world, dims, data)
	if err != nil {
		return SnapshotMeta{}, err
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.metaKey(meta.ID), encoded, r.ttl)
		pipe.Set(ctx, r.dataKey(meta.ID), data, r.ttl)
		pipe.ZAdd(ctx, r.indexKey(world), &redis.Z{
			Score:  float64(meta.CreatedAt.UnixNano()),
			Member: meta.ID,
		})
		pipe.Set(ctx, r.latestKey(world), meta.ID, 0)
		return nil
	})
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сохранения снимка в Redis: %w", err)
	}
	return meta, nil
}

func (r *RedisSnapshotRepo) readMeta(ctx context.Context, id string) (SnapshotMeta, error) {
	var meta SnapshotMeta

	raw, err := r.client.Get(ctx, r.metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return meta, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return meta, fmt.Errorf("ошибка чтения метаданных из Redis: %w", err)
	}

	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("ошибка десериализации метаданных: %w", err)
	}
	return meta, nil
}

// Load загружает снимок по идентификатору
func (r *RedisSnapshotRepo) Load(ctx context.Context, id string) (SnapshotMeta, []byte, error) {
	meta, err := r.readMeta(ctx, id)
	if err != nil {
		return SnapshotMeta{}, nil, err
	}

	data, err := r.client.Get(ctx, r.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SnapshotMeta{}, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return SnapshotMeta{}, nil, fmt.Errorf("ошибка чтения снимка из Redis: %w", err)
	}
	return meta, data, nil
}

// Latest возвращает последний снимок мира
func (r *RedisSnapshotRepo) Latest(ctx context.Context, world string) (SnapshotMeta, error) {
	id, err := r.client.Get(ctx, r.latestKey(world)).Result()
	if errors.Is(err, redis.Nil) {
		return SnapshotMeta{}, fmt.Errorf("%w: мир %s", ErrSnapshotNotFound, world)
	}
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка чтения из Redis: %w", err)
	}
	return r.readMeta(ctx, id)
}

// List возвращает снимки мира; истёкшие по TTL снимки пропускаются
func (r *RedisSnapshotRepo) List(ctx context.Context, world string) ([]SnapshotMeta, error) {
	ids, err := r.client.ZRange(ctx, r.indexKey(world), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения индекса из Redis: %w", err)
	}

	out := make([]SnapshotMeta, 0, len(ids))
	for _, id := range ids {
		meta, err := r.readMeta(ctx, id)
		if errors.Is(err, ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

// Delete удаляет снимок и при необходимости переносит указатель latest
func (r *RedisSnapshotRepo) Delete(ctx context.Context, id string) error {
	meta, err := r.readMeta(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.metaKey(id), r.dataKey(id))
		pipe.ZRem(ctx, r.indexKey(meta.World), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления снимка из Redis: %w", err)
	}

	latest, err := r.client.Get(ctx, r.latestKey(meta.World)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ошибка чтения из Redis: %w", err)
	}
	if latest != id {
		return nil
	}

	newest, err := r.client.ZRevRange(ctx, r.indexKey(meta.World), 0, 0).Result()
	if err != nil {
		return fmt.Errorf("ошибка чтения индекса из Redis: %w", err)
	}
	if len(newest) == 0 {
		return r.client.Del(ctx, r.latestKey(meta.World)).Err()
	}
	return r.client.Set(ctx, r.latestKey(meta.World), newest[0], 0).Err()
}

// Close закрывает соединение с Redis
func (r *RedisSnapshotRepo) Close() error {
	return r.client.Close()
}
