package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/routerchat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/routerchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS routers (
		name TEXT NOT NULL,
		author TEXT NOT NULL,
		published INTEGER NOT NULL DEFAULT 0,
		services TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (name, author)
	);

	CREATE INDEX IF NOT EXISTS idx_routers_published ON routers(published);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListRouters returns routers ordered by name, then author.
func (s *SQLiteStore) ListRouters(ctx context.Context, publishedOnly bool) ([]models.Router, error) {
	defer observe(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, author, published, services
		FROM routers
		WHERE published = 1 OR ? = 0
		ORDER BY name, author
	`, publishedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routers := []models.Router{}
	for rows.Next() {
		r, err := scanRouter(rows)
		if err != nil {
			return nil, err
		}
		routers = append(routers, *r)
	}
	return routers, rows.Err()
}

// GetRouter retrieves a router by name and author.
func (s *SQLiteStore) GetRouter(ctx context.Context, name, author string) (*models.Router, error) {
	defer observe(time.Now())

	row := s.db.QueryRowContext(ctx, `
		SELECT name, author, published, services
		FROM routers WHERE name = ? AND author = ?
	`, name, author)
	r, err := scanRouter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// UpsertRouter inserts a router or replaces its published flag and services.
func (s *SQLiteStore) UpsertRouter(ctx context.Context, r *models.Router) error {
	defer observe(time.Now())

	services, err := json.Marshal(servicesOrEmpty(r.Services))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routers (name, author, published, services, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, author) DO UPDATE
		SET published = excluded.published, services = excluded.services, updated_at = excluded.updated_at
	`, r.Name, r.Author, r.Published, string(services), time.Now(), time.Now())
	return err
}

// CountRouters returns the number of published routers.
func (s *SQLiteStore) CountRouters(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routers WHERE published = 1`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRouter(row rowScanner) (*models.Router, error) {
	r := &models.Router{}
	var services string
	if err := row.Scan(&r.Name, &r.Author, &r.Published, &services); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(services), &r.Services); err != nil {
		return nil, err
	}
	return r, nil
}
