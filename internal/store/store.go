package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteStore is the SQLite implementation of Store (internal to this package).
type sqliteStore struct {
	DB *sql.DB
	// complexity is reported for rows with a NULL technical_complexity.
	complexity int
	// Prepared statements for hot paths (prepared at open, closed in Close).
	stmtGetOrder      *sql.Stmt
	stmtListOrders    *sql.Stmt
	stmtListByStage   *sql.Stmt
	stmtInsertOrder   *sql.Stmt
	stmtUpdateOrder   *sql.Stmt
	stmtSetStage      *sql.Stmt
	stmtDeleteOrder   *sql.Stmt
	stmtGetPreference *sql.Stmt
	stmtPutPreference *sql.Stmt
}

// DBPath is where the SQLite database of home lives.
func DBPath(home string) string { return filepath.Join(home, "data", "repairboard.db") }

// Open opens the SQLite store at DBPath(home).
func Open(home string) (Store, error) {
	return OpenWithOptions(OpenOptions{Driver: "sqlite", Home: home})
}

// OpenWithOptions opens the SQLite store at DBPath(Home), or at DSN when Home is empty.
// Driver "postgres" is served by the postgres subpackage.
func OpenWithOptions(opts OpenOptions) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
	case "postgres":
		return nil, errors.New("store: postgres is opened with internal/store/postgres")
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	dsn := opts.DSN
	if opts.Home != "" || dsn == "" {
		if opts.Home == "" {
			return nil, errors.New("sqlite home or DSN required")
		}
		dbPath := DBPath(opts.Home)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}
	return openSQLite(dsn, ComplexityOrDefault(opts.DefaultTechnicalComplexity))
}

func openSQLite(dsn string, complexity int) (*sqliteStore, error) {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn + "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &sqliteStore{DB: db, complexity: complexity}
	if err := s.initPragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepareStatements(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

const orderColumns = `order_id, stage, customer_name, device_type, device_brand, device_model, issue, urgency, technical_complexity, historical_value, technician_id, technician_name, promised_at, created_at, updated_at`

func (s *sqliteStore) prepareStatements(ctx context.Context) error {
	pairs := []struct {
		dest **sql.Stmt
		q    string
	}{
		{&s.stmtGetOrder, `SELECT ` + orderColumns + ` FROM repair_orders WHERE order_id = ?`},
		{&s.stmtListOrders, `SELECT ` + orderColumns + ` FROM repair_orders ORDER BY created_at ASC, order_id ASC LIMIT ?`},
		{&s.stmtListByStage, `SELECT ` + orderColumns + ` FROM repair_orders WHERE stage = ? ORDER BY created_at ASC, order_id ASC LIMIT ?`},
		{&s.stmtInsertOrder, `INSERT INTO repair_orders(` + orderColumns + `) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		{&s.stmtUpdateOrder, `UPDATE repair_orders SET customer_name=?, device_type=?, device_brand=?, device_model=?, issue=?, urgency=?, technical_complexity=?, historical_value=?, technician_id=?, technician_name=?, promised_at=?, updated_at=? WHERE order_id=?`},
		{&s.stmtSetStage, `UPDATE repair_orders SET stage=?, updated_at=? WHERE order_id=?`},
		{&s.stmtDeleteOrder, `DELETE FROM repair_orders WHERE order_id=?`},
		{&s.stmtGetPreference, `SELECT pref_value FROM preferences WHERE pref_key = ?`},
		{&s.stmtPutPreference, `INSERT INTO preferences(pref_key, pref_value, updated_at) VALUES(?, ?, ?) ON CONFLICT(pref_key) DO UPDATE SET pref_value=excluded.pref_value, updated_at=excluded.updated_at`},
	}
	for _, p := range pairs {
		st, err := s.DB.PrepareContext(ctx, p.q)
		if err != nil {
			return err
		}
		*p.dest = st
	}
	return nil
}

// EnsureSchema creates the store at home, runs migrations, and closes it; used to bootstrap the DB.
func EnsureSchema(home string) error {
	s, err := Open(home)
	if err != nil {
		return err
	}
	return s.Close()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	for _, st := range []*sql.Stmt{s.stmtGetOrder, s.stmtListOrders, s.stmtListByStage, s.stmtInsertOrder, s.stmtUpdateOrder, s.stmtSetStage, s.stmtDeleteOrder, s.stmtGetPreference, s.stmtPutPreference} {
		if st != nil {
			_ = st.Close()
		}
	}
	return s.DB.Close()
}

func (s *sqliteStore) initPragmas(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA cache_size=-20000;",
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store not initialized")
	}

	if _, err := s.DB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
);`); err != nil {
		return err
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	migs, err := LoadMigrations(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	for _, m := range migs {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
	}

	return nil
}

func (s *sqliteStore) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (s *sqliteStore) applyMigration(ctx context.Context, m Migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`, m.Version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
