package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ignatzorin/bounty-backend/internal/logger"
)

// migrationLockID — ключ advisory-блокировки, чтобы миграции не выполнялись параллельно с нескольких экземпляров.
const migrationLockID = 727_001

// PoolConfig — параметры пула соединений.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig возвращает параметры пула по умолчанию.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    50,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// NewPostgres создаёт подключение к PostgreSQL с заданным DSN.
func NewPostgres(ctx context.Context, dsn string, pool PoolConfig) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось подключиться: %w", err)
	}

	conn.SetMaxOpenConns(pool.MaxOpenConns)
	conn.SetMaxIdleConns(pool.MaxIdleConns)
	conn.SetConnMaxLifetime(pool.ConnMaxLifetime)

	return conn, nil
}

// RunMigrations выполняет ещё не применённые SQL файлы из каталога по порядку имён
// и возвращает имена применённых миграций.
func RunMigrations(ctx context.Context, conn *sqlx.DB, migrationsDir string) ([]string, error) {
	log := logger.WithComponent("migrations")

	names, err := listMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}

	// Блокировка держится на одном соединении, поэтому работаем через sqlx.Conn.
	c, err := conn.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось получить соединение: %w", err)
	}
	defer c.Close()

	if _, err := c.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return nil, fmt.Errorf("postgres: не удалось взять блокировку миграций: %w", err)
	}
	defer func() {
		_, _ = c.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if _, err := c.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("postgres: не удалось инициализировать таблицу миграций: %w", err)
	}

	var done []string
	if err := c.SelectContext(ctx, &done, `SELECT name FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("postgres: не удалось прочитать список миграций: %w", err)
	}
	appliedBefore := make(map[string]struct{}, len(done))
	for _, name := range done {
		appliedBefore[name] = struct{}{}
	}

	var applied []string
	for _, name := range names {
		if _, ok := appliedBefore[name]; ok {
			continue
		}
		if err := applyMigration(ctx, c, filepath.Join(migrationsDir, name), name); err != nil {
			return applied, err
		}
		log.WithField("migration", name).Info("migration applied")
		applied = append(applied, name)
	}

	return applied, nil
}

func listMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось прочитать каталог миграций: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// applyMigration выполняет файл и отмечает его в одной транзакции.
func applyMigration(ctx context.Context, c *sqlx.Conn, path, name string) error {
	sqlBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("postgres: не удалось прочитать миграцию %s: %w", path, err)
	}

	tx, err := c.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: не удалось начать транзакцию для миграции %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("postgres: не удалось выполнить миграцию %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("postgres: не удалось отметить миграцию %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: не удалось зафиксировать миграцию %s: %w", name, err)
	}
	return nil
}
