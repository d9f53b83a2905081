package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// IdentityRepository provides PostgreSQL-backed identity storage. Encodings are
// kept both as text and as a pgvector column for nearest lookups.
type IdentityRepository struct {
	pool *Pool
	dim  int
	log  *logrus.Entry
	now  func() time.Time
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool, dim int, log *logrus.Entry) *IdentityRepository {
	if dim <= 0 {
		dim = database.DefaultEncodingDim
	}
	return &IdentityRepository{pool: pool, dim: dim, log: log, now: time.Now}
}

// Insert stores one record and reports whether it was committed.
func (r *IdentityRepository) Insert(ctx context.Context, rec database.IdentityRecord) bool {
	rec, err := database.PrepareInsert(rec, r.dim, r.now())
	if err != nil {
		r.log.WithError(err).WithField("name", rec.Name).Error("refusing to store identity")
		return false
	}

	var id int64
	err = r.pool.db.QueryRowContext(ctx, `
		INSERT INTO identities (name, type, encoding, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, rec.Name, string(rec.Type), rec.Encoding.String(), rec.CreatedAt, pgvector.NewVector(rec.Encoding.Float32())).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %w", database.ErrDuplicateName, err)
		}
		r.log.WithError(err).WithField("name", rec.Name).Error("failed to store identity")
		return false
	}

	r.log.WithFields(logrus.Fields{"id": id, "name": rec.Name, "type": rec.Type}).Info("stored identity")
	return true
}

// Read returns all records in insertion order projected to columns.
func (r *IdentityRepository) Read(ctx context.Context, columns ...database.Column) ([]database.IdentityRecord, error) {
	return database.QueryIdentities(ctx, r.pool.db, columns, r.dim)
}

// DeleteAll removes every record.
func (r *IdentityRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM identities"); err != nil {
		return fmt.Errorf("delete identities: %w", err)
	}
	return nil
}

// FindNearest returns the stored identities closest to query by Euclidean distance,
// computed by pgvector.
func (r *IdentityRepository) FindNearest(ctx context.Context, query database.Encoding, limit int) ([]database.Neighbor, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, type, encoding, created_at, embedding <-> $1 AS distance
		FROM identities
		ORDER BY embedding <-> $1
		LIMIT $2
	`, pgvector.NewVector(query.Float32()), limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest identities: %w", err)
	}
	defer rows.Close()

	var neighbors []database.Neighbor
	for rows.Next() {
		var n database.Neighbor
		rec, err := database.ScanIdentity(distanceScanner{rows: rows, dist: &n.Distance}, database.AllColumns, r.dim)
		if err != nil {
			return nil, err
		}
		n.Record = rec
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest identities: %w", err)
	}
	return neighbors, nil
}

// Migrate creates the identities table if it does not exist.
func (r *IdentityRepository) Migrate(ctx context.Context) error {
	return r.pool.Migrate(ctx, r.log)
}

// DropSchema drops the identities table and the migration history.
func (r *IdentityRepository) DropSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "DROP TABLE IF EXISTS identities, schema_migrations"); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

// Tables lists the tables of the current schema.
func (r *IdentityRepository) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT tablename FROM pg_tables WHERE schemaname = current_schema() ORDER BY tablename")
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

// Close closes the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}

// distanceScanner appends the trailing distance column to a record scan.
type distanceScanner struct {
	rows *sql.Rows
	dist *float64
}

func (d distanceScanner) Scan(dest ...any) error {
	return d.rows.Scan(append(dest, d.dist)...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
