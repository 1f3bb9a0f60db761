package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxelight/internal/vec"
)

// WorldStorage хранит снимки миров в BadgerDB.
//
// Ключи:
//
//	snapshot:<id>:meta     - JSON метаданных
//	snapshot:<id>:data     - байты мира
//	latest:<world>         - id последнего снимка
//	index:<world>:<ts>:<id> - индекс снимков мира по времени
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewWorldStorage открывает BadgerDB в поддиректории snapshots
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "snapshots")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	return openWorldStorage(opts, dbPath)
}

// NewInMemoryWorldStorage открывает BadgerDB без записи на диск
func NewInMemoryWorldStorage() (*WorldStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return openWorldStorage(opts, "")
}

func openWorldStorage(opts badger.Options, dbPath string) (*WorldStorage, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Path возвращает путь к базе; пустой для хранилища в памяти
func (ws *WorldStorage) Path() string {
	return ws.dbPath
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	return ws.db.Close()
}

func metaKey(id string) []byte    { return []byte("snapshot:" + id + ":meta") }
func dataKey(id string) []byte    { return []byte("snapshot:" + id + ":data") }
func latestKey(w string) []byte   { return []byte("latest:" + w) }
func indexPrefix(w string) []byte { return []byte("index:" + w + ":") }

func indexKey(meta SnapshotMeta) []byte {
	// Фиксированная ширина метки времени сохраняет лексикографический порядок
	return []byte(fmt.Sprintf("index:%s:%020d:%s", meta.World, meta.CreatedAt.UnixNano(), meta.ID))
}

// Save сохраняет снимок и обновляет указатель на последний снимок мира
func (ws *WorldStorage) Save(ctx context.Context, world string, dims vec.Vec3, data []byte) (SnapshotMeta, error) {
	meta, err := newSnapshotMeta(world, dims, data)
	if err != nil {
		return SnapshotMeta{}, err
	}

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return SnapshotMeta{}, ErrNotReady
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	err = ws.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(meta.ID), encoded); err != nil {
			return err
		}
		if err := txn.Set(dataKey(meta.ID), data); err != nil {
			return err
		}
		if err := txn.Set(indexKey(meta), nil); err != nil {
			return err
		}
		return txn.Set(latestKey(world), []byte(meta.ID))
	})
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сохранения снимка в BadgerDB: %w", err)
	}

	return meta, nil
}

// Load загружает снимок по идентификатору
func (ws *WorldStorage) Load(ctx context.Context, id string) (SnapshotMeta, []byte, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return SnapshotMeta{}, nil, ErrNotReady
	}

	var meta SnapshotMeta
	var data []byte

	err := ws.db.View(func(txn *badger.Txn) error {
		var err error
		if meta, err = readMeta(txn, id); err != nil {
			return err
		}

		item, err := txn.Get(dataKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return SnapshotMeta{}, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return SnapshotMeta{}, nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	return meta, data, nil
}

func readMeta(txn *badger.Txn, id string) (SnapshotMeta, error) {
	var meta SnapshotMeta

	item, err := txn.Get(metaKey(id))
	if err != nil {
		return meta, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	if err != nil {
		return meta, fmt.Errorf("ошибка десериализации метаданных: %w", err)
	}
	return meta, nil
}

// Latest возвращает метаданные последнего снимка мира
func (ws *WorldStorage) Latest(ctx context.Context, world string) (SnapshotMeta, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return SnapshotMeta{}, ErrNotReady
	}

	var meta SnapshotMeta
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(world))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		meta, err = readMeta(txn, string(id))
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return SnapshotMeta{}, fmt.Errorf("%w: мир %s", ErrSnapshotNotFound, world)
	}
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return meta, nil
}

// List возвращает снимки мира от старых к новым
func (ws *WorldStorage) List(ctx context.Context, world string) ([]SnapshotMeta, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, ErrNotReady
	}

	var out []SnapshotMeta
	err := ws.db.View(func(txn *badger.Txn) error {
		ids, err := listIDs(txn, world)
		if err != nil {
			return err
		}
		for _, id := range ids {
			meta, err := readMeta(txn, id)
			if err != nil {
				return err
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения индекса снимков: %w", err)
	}
	return out, nil
}

// listIDs читает идентификаторы снимков мира из индекса в порядке создания
func listIDs(txn *badger.Txn, world string) ([]string, error) {
	prefix := indexPrefix(world)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		key := string(it.Item().Key())
		// index:<world>:<ts>:<id>
		rest := key[len(prefix):]
		if len(rest) < 21 {
			continue
		}
		ids = append(ids, rest[21:])
	}
	return ids, nil
}

// Delete удаляет снимок. Если он был последним, указатель переходит к
// предыдущему снимку мира.
func (ws *WorldStorage) Delete(ctx context.Context, id string) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	err := ws.db.Update(func(txn *badger.Txn) error {
		meta, err := readMeta(txn, id)
		if err != nil {
			return err
		}

		for _, key := range [][]byte{metaKey(id), dataKey(id), indexKey(meta)} {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		item, err := txn.Get(latestKey(meta.World))
		if err != nil {
			return err
		}
		latest, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(latest) != id {
			return nil
		}

		ids, err := listIDs(txn, meta.World)
		if err != nil {
			return err
		}
		// Удаление индекса ещё не видно итератору внутри транзакции
		remaining := ids[:0]
		for _, other := range ids {
			if other != id {
				remaining = append(remaining, other)
			}
		}
		if len(remaining) == 0 {
			return txn.Delete(latestKey(meta.World))
		}
		return txn.Set(latestKey(meta.World), []byte(remaining[len(remaining)-1]))
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("ошибка удаления снимка: %w", err)
	}
	return nil
}
