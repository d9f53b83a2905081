// Package mariadb stores identities in MariaDB or MySQL.
package mariadb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// errDuplicateEntry is ER_DUP_ENTRY.
const errDuplicateEntry = 1062

var dialect = database.Dialect{
	CreateMigrationsTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	RecordMigration: "INSERT INTO schema_migrations (version) VALUES (?)",
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.MariaDBDSN == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", cfg.MariaDBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Store implements database.Admin on MariaDB.
type Store struct {
	pool *Pool
	dim  int
	log  *logrus.Entry
	now  func() time.Time
}

// New is the database.Constructor for the mariadb backend.
func New(_ context.Context, cfg *config.DatabaseConfig, log *logrus.Entry) (database.Admin, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}
	dim := cfg.EncodingDim
	if dim <= 0 {
		dim = database.DefaultEncodingDim
	}
	return &Store{pool: pool, dim: dim, log: log, now: time.Now}, nil
}

func (s *Store) Insert(ctx context.Context, rec database.IdentityRecord) bool {
	rec, err := database.PrepareInsert(rec, s.dim, s.now())
	if err != nil {
		s.log.WithError(err).WithField("name", rec.Name).Error("refusing to store identity")
		return false
	}

	res, err := s.pool.db.ExecContext(ctx,
		"INSERT INTO identities (name, type, encoding, created_at) VALUES (?, ?, ?, ?)",
		rec.Name, string(rec.Type), rec.Encoding.String(), rec.CreatedAt)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
			err = fmt.Errorf("%w: %w", database.ErrDuplicateName, err)
		}
		s.log.WithError(err).WithField("name", rec.Name).Error("failed to store identity")
		return false
	}

	id, _ := res.LastInsertId()
	s.log.WithFields(logrus.Fields{"id": id, "name": rec.Name, "type": rec.Type}).Info("stored identity")
	return true
}

func (s *Store) Read(ctx context.Context, columns ...database.Column) ([]database.IdentityRecord, error) {
	return database.QueryIdentities(ctx, s.pool.db, columns, s.dim)
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.db.ExecContext(ctx, "DELETE FROM identities"); err != nil {
		return fmt.Errorf("delete identities: %w", err)
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	return database.ApplyMigrations(ctx, s.pool.db, files, dialect, s.log)
}

func (s *Store) DropSchema(ctx context.Context) error {
	if _, err := s.pool.db.ExecContext(ctx, "DROP TABLE IF EXISTS identities, schema_migrations"); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name")
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

func (s *Store) Close() error {
	return s.pool.Close()
}
