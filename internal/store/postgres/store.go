package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eduardojeem/repairboard/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID serializes schema migrations across servers sharing one database.
const migrationLockID int64 = 0x72627264

var (
	// MaxConns bounds the pool.
	MaxConns int32 = 20
	// ConnectTimeout bounds the initial ping and migration.
	ConnectTimeout = 30 * time.Second
)

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	Pool       *pgxpool.Pool
	complexity int
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn, or DATABASE_URL when dsn is empty, and migrates the schema.
func Open(dsn string) (store.Store, error) {
	return OpenWithOptions(store.OpenOptions{Driver: "postgres", DSN: dsn})
}

// OpenWithOptions is Open with the DSN and default technical complexity taken from opts.
func OpenWithOptions(opts store.OpenOptions) (store.Store, error) {
	dsn := opts.DSN
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres: DSN or DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	cfg.MaxConns = MaxConns

	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := &Store{Pool: pool, complexity: store.ComplexityOrDefault(opts.DefaultTechnicalComplexity)}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	s.Pool.Close()
	return nil
}

// Migrate applies the embedded migrations that schema_migrations does not list yet, all in
// one transaction holding an advisory lock.
func (s *Store) Migrate(ctx context.Context) error {
	migs, err := store.LoadMigrations(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at BIGINT NOT NULL)`); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT version FROM schema_migrations`)
		if err != nil {
			return err
		}
		applied, err := pgx.CollectRows(rows, pgx.RowTo[int])
		if err != nil {
			return err
		}
		done := make(map[int]bool, len(applied))
		for _, v := range applied {
			done[v] = true
		}
		for _, m := range migs {
			if done[m.Version] {
				continue
			}
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %s failed: %w", m.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2)`, m.Version, time.Now().Unix()); err != nil {
				return err
			}
		}
		return nil
	})
}
