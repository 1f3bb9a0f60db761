package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/annel0/voxelight/internal/vec"
)

// MariaSnapshotRepo хранит снимки в MariaDB/MySQL.
// Использует таблицы world_snapshots и world_latest.
type MariaSnapshotRepo struct {
	db *sql.DB
}

// NewMariaSnapshotRepo подключается к базе и создаёт таблицы, если их нет.
//
// Параметры:
//
//	dsn - строка подключения (user:pass@tcp(host:port)/dbname?parseTime=true)
func NewMariaSnapshotRepo(ctx context.Context, dsn string) (*MariaSnapshotRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaSnapshotRepo{db: db}
	if err := repo.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}

	return repo, nil
}

func (r *MariaSnapshotRepo) createTables(ctx context.Context) error {
	queries := []string{`
		CREATE TABLE IF NOT EXISTS world_snapshots (
			id         CHAR(36)     PRIMARY KEY,
			world      VARCHAR(64)  NOT NULL,
			width      INT          NOT NULL,
			height     INT          NOT NULL,
			depth      INT          NOT NULL,
			size       INT          NOT NULL,
			created_at DATETIME(6)  NOT NULL,
			data       LONGBLOB     NOT NULL,
			INDEX idx_world_created (world, created_at)
		) ENGINE=InnoDB`, `
		CREATE TABLE IF NOT EXISTS world_latest (
			world       VARCHAR(64) PRIMARY KEY,
			snapshot_id CHAR(36)    NOT NULL
		) ENGINE=InnoDB`,
	}

	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ошибка создания таблицы: %w", err)
		}
	}
	return nil
}

// Save сохраняет снимок и обновляет указатель на последний снимок в одной транзакции
func (r *MariaSnapshotRepo) Save(ctx context.Context, world string, dims vec.Vec3, data []byte) (SnapshotMeta, error) {
	meta, err := newSnapshotMeta(world, dims, data)
	if err != nil {
		return SnapshotMeta{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO world_snapshots (id, world, width, height, depth, size, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.World, meta.Width, meta.Height, meta.Depth, meta.Size, meta.CreatedAt, data)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сохранения снимка %s: %w", meta.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO world_latest (world, snapshot_id) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE snapshot_id = VALUES(snapshot_id)`,
		meta.World, meta.ID)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка обновления последнего снимка: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return meta, nil
}

const selectMeta = `SELECT id, world, width, height, depth, size, created_at FROM world_snapshots`

func scanMeta(row interface{ Scan(...any) error }) (SnapshotMeta, error) {
	var m SnapshotMeta
	err := row.Scan(&m.ID, &m.World, &m.Width, &m.Height, &m.Depth, &m.Size, &m.CreatedAt)
	return m, err
}

// Load загружает снимок по идентификатору
func (r *MariaSnapshotRepo) Load(ctx context.Context, id string) (SnapshotMeta, []byte, error) {
	var m SnapshotMeta
	var data []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, world, width, height, depth, size, created_at, data
		FROM world_snapshots WHERE id = ?`, id).
		Scan(&m.ID, &m.World, &m.Width, &m.Height, &m.Depth, &m.Size, &m.CreatedAt, &data)

	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotMeta{}, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return SnapshotMeta{}, nil, fmt.Errorf("ошибка загрузки снимка %s: %w", id, err)
	}
	return m, data, nil
}

// Latest возвращает последний снимок мира
func (r *MariaSnapshotRepo) Latest(ctx context.Context, world string) (SnapshotMeta, error) {
	row := r.db.QueryRowContext(ctx, selectMeta+`
		WHERE id = (SELECT snapshot_id FROM world_latest WHERE world = ?)`, world)

	m, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotMeta{}, fmt.Errorf("%w: мир %s", ErrSnapshotNotFound, world)
	}
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка чтения последнего снимка: %w", err)
	}
	return m, nil
}

// List возвращает снимки мира от старых к новым
func (r *MariaSnapshotRepo) List(ctx context.Context, world string) ([]SnapshotMeta, error) {
	rows, err := r.db.QueryContext(ctx, selectMeta+` WHERE world = ? ORDER BY created_at`, world)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка снимков: %w", err)
	}
	defer rows.Close()

	var out []SnapshotMeta
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete удаляет снимок и переносит указатель latest на предыдущий снимок мира
func (r *MariaSnapshotRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	var world string
	err = tx.QueryRowContext(ctx, `SELECT world FROM world_snapshots WHERE id = ?`, id).Scan(&world)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("ошибка поиска снимка %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM world_snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ошибка удаления снимка %s: %w", id, err)
	}

	var newest string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM world_snapshots WHERE world = ?
		ORDER BY created_at DESC LIMIT 1`, world).Scan(&newest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `DELETE FROM world_latest WHERE world = ?`, world)
	case err == nil:
		_, err = tx.ExecContext(ctx, `UPDATE world_latest SET snapshot_id = ? WHERE world = ?`, newest, world)
	}
	if err != nil {
		return fmt.Errorf("ошибка обновления последнего снимка: %w", err)
	}

	return tx.Commit()
}

// Close закрывает соединение с базой данных
func (r *MariaSnapshotRepo) Close() error {
	return r.db.Close()
}
