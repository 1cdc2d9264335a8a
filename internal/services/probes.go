package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/storefront/internal/store"
)

// ProbeRecord is the last known existence check for one image path.
type ProbeRecord struct {
	Path      string    `json:"path"`
	Present   bool      `json:"present"`
	CheckedAt time.Time `json:"checked_at"`
}

// ProbeRepository persists image existence probe outcomes so repeated
// gallery resolutions can skip recent checks.
type ProbeRepository interface {
	// Get returns the record for path or ErrNotFound.
	Get(ctx context.Context, path string) (*ProbeRecord, error)

	// Put creates or replaces the record for rec.Path.
	Put(ctx context.Context, rec ProbeRecord) error

	// List returns a page of records.
	List(ctx context.Context, opts ListOptions) (*ListResult[ProbeRecord], error)

	// Purge deletes records checked before the cutoff and returns the number
	// removed.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Compile-time interface guard.
var _ ProbeRepository = (*SQLiteProbeRepository)(nil)

// SQLiteProbeRepository implements ProbeRepository using SQLite.
type SQLiteProbeRepository struct {
	db *sql.DB
}

// NewSQLiteProbeRepository creates a ProbeRepository and runs the
// image_probes migration.
func NewSQLiteProbeRepository(ctx context.Context, s store.Store) (*SQLiteProbeRepository, error) {
	if err := s.Migrate(ctx, "gallery", probeMigrations); err != nil {
		return nil, fmt.Errorf("gallery probe migrations: %w", err)
	}
	return &SQLiteProbeRepository{db: s.DB()}, nil
}

func (r *SQLiteProbeRepository) Get(ctx context.Context, path string) (*ProbeRecord, error) {
	var rec ProbeRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT path, present, checked_at FROM image_probes WHERE path = ?`, path,
	).Scan(&rec.Path, &rec.Present, &rec.CheckedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get probe %q: %w", path, err)
	}
	return &rec, nil
}

func (r *SQLiteProbeRepository) Put(ctx context.Context, rec ProbeRecord) error {
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO image_probes (path, present, checked_at)
		VALUES (?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET present = excluded.present, checked_at = excluded.checked_at`,
		rec.Path, rec.Present, rec.CheckedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put probe %q: %w", rec.Path, err)
	}
	return nil
}

// probeSortColumns maps accepted SortBy values to columns.
var probeSortColumns = map[string]string{
	"path":       "path",
	"checked_at": "checked_at",
}

func (r *SQLiteProbeRepository) List(ctx context.Context, opts ListOptions) (*ListResult[ProbeRecord], error) {
	opts = opts.clamped()
	col, ok := probeSortColumns[opts.SortBy]
	if !ok {
		col = "checked_at"
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_probes`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count probes: %w", err)
	}

	// col and SortOrder are whitelisted above, so formatting them is safe.
	query := fmt.Sprintf(
		`SELECT path, present, checked_at FROM image_probes ORDER BY %s %s, path ASC LIMIT ? OFFSET ?`,
		col, opts.SortOrder)
	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list probes: %w", err)
	}
	defer rows.Close()

	items := []ProbeRecord{}
	for rows.Next() {
		var rec ProbeRecord
		if err := rows.Scan(&rec.Path, &rec.Present, &rec.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan probe row: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &ListResult[ProbeRecord]{Items: items, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

func (r *SQLiteProbeRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM image_probes WHERE checked_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge probes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// probeMigrations defines the database schema for image_probes.
var probeMigrations = []store.Migration{
	{
		Version:     1,
		Description: "create image_probes table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE image_probes (
					path       TEXT PRIMARY KEY,
					present    INTEGER NOT NULL,
					checked_at DATETIME NOT NULL
				)`)
			return err
		},
	},
	{
		Version:     2,
		Description: "index image_probes by checked_at",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX idx_image_probes_checked_at ON image_probes (checked_at)`)
			return err
		},
	},
}
