// Package sqlite is the default identity store, backed by a single SQLite file
// through the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/sirupsen/logrus"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var dialect = database.Dialect{
	CreateMigrationsTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
	RecordMigration: "INSERT INTO schema_migrations (version) VALUES (?)",
}

// Store implements database.Admin on SQLite.
type Store struct {
	db   *sql.DB
	path string
	dim  int
	log  *logrus.Entry
	now  func() time.Time
}

// Open opens (creating if needed) the database file at path. The schema is not
// touched; call Migrate for that.
func Open(path string, dim int, log *logrus.Entry) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dim <= 0 {
		dim = database.DefaultEncodingDim
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer and every :memory: connection
	// would otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return &Store{db: db, path: path, dim: dim, log: log, now: time.Now}, nil
}

// New is the database.Constructor for the sqlite backend.
func New(_ context.Context, cfg *config.DatabaseConfig, log *logrus.Entry) (database.Admin, error) {
	return Open(cfg.SQLitePath, cfg.EncodingDim, log)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Migrate creates the identities table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	return database.ApplyMigrations(ctx, s.db, files, dialect, s.log)
}

// DropSchema drops the identities table together with the migration history,
// so a later Migrate recreates it.
func (s *Store) DropSchema(ctx context.Context) error {
	for _, table := range []string{database.TableName, database.MigrationsTable} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}
	return nil
}

// Tables lists user tables.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Destroy closes the store and removes the database file.
func (s *Store) Destroy(_ context.Context) error {
	if err := s.Close(); err != nil {
		return err
	}
	if s.path == MemoryPath {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing database file: %w", err)
	}
	return nil
}

// Insert stores one record and reports whether it was committed.
func (s *Store) Insert(ctx context.Context, rec database.IdentityRecord) bool {
	rec, err := database.PrepareInsert(rec, s.dim, s.now())
	if err != nil {
		s.log.WithError(err).WithField("name", rec.Name).Error("refusing to store identity")
		return false
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO identities (name, type, encoding, created_at) VALUES (?, ?, ?, ?)",
		rec.Name, string(rec.Type), rec.Encoding.String(), rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %w", database.ErrDuplicateName, err)
		}
		s.log.WithError(err).WithField("name", rec.Name).Error("failed to store identity")
		return false
	}

	id, _ := res.LastInsertId()
	s.log.WithFields(logrus.Fields{"id": id, "name": rec.Name, "type": rec.Type}).Info("stored identity")
	return true
}

// Read returns all records in insertion order projected to columns.
func (s *Store) Read(ctx context.Context, columns ...database.Column) ([]database.IdentityRecord, error) {
	return database.QueryIdentities(ctx, s.db, columns, s.dim)
}

// DeleteAll removes every record.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM identities"); err != nil {
		return fmt.Errorf("delete identities: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
