package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/annel0/voxelight/internal/logging"
)

// FileStore сохраняет мир в плоский бинарный файл без заголовка
type FileStore struct {
	dir string
}

// NewFileStore создаёт файловое хранилище в директории dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path возвращает полный путь к файлу мира
func (fs *FileStore) Path(name string) string {
	if filepath.IsAbs(name) || fs.dir == "" {
		return name
	}
	return filepath.Join(fs.dir, name)
}

// Save записывает данные в файл, создавая недостающие директории
func (fs *FileStore) Save(name string, data []byte) error {
	if name == "" {
		return errors.New("пустое имя файла")
	}

	path := fs.Path(name)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("путь %s является директорией", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("ошибка создания директории для %s: %w", path, err)
	}

	if len(data) == 0 {
		logging.GetStorageLogger().Warn("запись пустого мира в %s", path)
	}

	// Запись через временный файл, чтобы не оставить обрезанный мир
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи файла %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка переименования %s: %w", tmp, err)
	}

	logging.GetStorageLogger().Debug("записано %d байт в %s", len(data), path)
	return nil
}

// Load читает файл и проверяет, что его размер равен expectedSize
func (fs *FileStore) Load(name string, expectedSize int) ([]byte, error) {
	path := fs.Path(name)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}

	if len(data) != expectedSize {
		return nil, fmt.Errorf("%w: %s содержит %d байт, ожидалось %d", ErrSizeMismatch, path, len(data), expectedSize)
	}
	return data, nil
}

// Exists проверяет наличие файла мира
func (fs *FileStore) Exists(name string) bool {
	info, err := os.Stat(fs.Path(name))
	return err == nil && !info.IsDir()
}
