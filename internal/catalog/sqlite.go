package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/gazou/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		path TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		width INTEGER,
		height INTEGER,
		format TEXT,
		mode TEXT,
		file_size INTEGER,
		captured TEXT,
		error TEXT,
		indexed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_images_filename ON images(filename);
	CREATE INDEX IF NOT EXISTS idx_images_indexed_at ON images(indexed_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Put inserts or replaces the record for its path.
func (c *SQLiteCatalog) Put(ctx context.Context, rec *models.ImageRecord) error {
	if rec.Path == "" {
		return fmt.Errorf("image record has no path")
	}
	capturedJSON, err := json.Marshal(rec.Captured)
	if err != nil {
		return fmt.Errorf("failed to marshal captured metadata: %w", err)
	}
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now()
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO images
		 (path, filename, width, height, format, mode, file_size, captured, error, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.Filename, rec.Width, rec.Height, rec.Format, rec.Mode,
		rec.FileSize, string(capturedJSON), rec.Error, rec.IndexedAt,
	)
	return err
}

// Get returns the record for path.
func (c *SQLiteCatalog) Get(ctx context.Context, path string) (*models.ImageRecord, error) {
	var rec models.ImageRecord
	var capturedJSON string

	err := c.db.QueryRowContext(ctx,
		`SELECT path, filename, width, height, format, mode, file_size, captured, error, indexed_at
		 FROM images WHERE path = ?`, path,
	).Scan(&rec.Path, &rec.Filename, &rec.Width, &rec.Height, &rec.Format, &rec.Mode,
		&rec.FileSize, &capturedJSON, &rec.Error, &rec.IndexedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("image not found: %s", path)
	}
	if err != nil {
		return nil, err
	}

	if capturedJSON != "" && capturedJSON != "null" {
		if err := json.Unmarshal([]byte(capturedJSON), &rec.Captured); err != nil {
			return nil, fmt.Errorf("failed to unmarshal captured metadata: %w", err)
		}
	}

	return &rec, nil
}

// Delete removes the record for path.
func (c *SQLiteCatalog) Delete(ctx context.Context, path string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM images WHERE path = ?`, path)
	return err
}

// Paths returns all cataloged paths in insertion-independent sorted order.
func (c *SQLiteCatalog) Paths(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT path FROM images ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Count returns the number of cataloged images.
func (c *SQLiteCatalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}
