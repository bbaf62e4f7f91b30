package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	_ "github.com/lib/pq"
)

//go:embed migration/*.sql
var migrationFS embed.FS

// DB represents the database connection.
type DB struct {
	sqlDB  *sql.DB
	ctx    context.Context
	cancel func()

	dsn string
}

// NewDB returns new database
func NewDB(dsn string) *DB {
	db := &DB{
		dsn: dsn,
	}

	db.ctx, db.cancel = context.WithCancel(context.Background())

	return db
}

// Open opens new database connection and applies pending migrations
func (db *DB) Open() (err error) {
	if db.dsn == "" {
		return errors.New("dsn required")
	}

	if db.sqlDB != nil {
		return nil
	}

	if db.sqlDB, err = sql.Open("postgres", db.dsn); err != nil {
		return err
	}

	if err := db.sqlDB.PingContext(db.ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	if err := db.migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

func (db *DB) migrate() error {
	if _, err := db.sqlDB.ExecContext(db.ctx, `CREATE TABLE IF NOT EXISTS migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("cannot create migrations table: %w", err)
	}

	names, err := fs.Glob(migrationFS, "migration/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		if err := db.migrateFile(name); err != nil {
			return fmt.Errorf("migration error: name=%q, err=%w", name, err)
		}
	}

	return nil
}

func (db *DB) migrateFile(name string) error {
	tx, err := db.sqlDB.BeginTx(db.ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var n int
	if err := tx.QueryRowContext(db.ctx, `SELECT COUNT(*) FROM migrations WHERE name = $1`, name).Scan(&n); err != nil {
		return err
	}
	if n != 0 {
		return nil
	}

	buf, err := fs.ReadFile(migrationFS, name)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(db.ctx, string(buf)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(db.ctx, `INSERT INTO migrations (name) VALUES ($1)`, name); err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes database connection
func (db *DB) Close() error {
	if db.sqlDB == nil {
		return nil
	}

	db.cancel()

	return db.sqlDB.Close()
}
