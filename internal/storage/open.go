package storage

import (
	"context"
	"fmt"
	"strings"
)

// Backend - тип хранилища снимков
type Backend string

const (
	BackendBadger Backend = "badger"
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendMaria  Backend = "mysql"
)

// Options задаёт параметры открытия хранилища снимков
type Options struct {
	Backend  Backend
	DataDir  string       // Для badger
	Redis    *RedisConfig // Для redis
	MariaDSN string       // Для mysql
}

// Open открывает хранилище снимков указанного типа
func Open(ctx context.Context, opts Options) (SnapshotRepo, error) {
	var (
		repo SnapshotRepo
		err  error
	)

	switch Backend(strings.ToLower(string(opts.Backend))) {
	case BackendBadger, "":
		repo, err = NewWorldStorage(opts.DataDir)
	case BackendMemory:
		repo = NewMemorySnapshotRepo()
	case BackendRedis:
		repo, err = NewRedisSnapshotRepo(ctx, opts.Redis)
	case BackendMaria, "mariadb":
		repo, err = NewMariaSnapshotRepo(ctx, opts.MariaDSN)
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %q", opts.Backend)
	}

	if err != nil {
		return nil, err
	}
	return repo, nil
}
