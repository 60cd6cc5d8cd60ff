package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OpenMined/network-ensemble-extras/internal/metrics"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS routers (
	name       TEXT NOT NULL,
	author     TEXT NOT NULL,
	published  BOOLEAN NOT NULL DEFAULT FALSE,
	services   JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (name, author)
);

CREATE INDEX IF NOT EXISTS idx_routers_published ON routers(published);
`

// RunMigrations creates the router directory schema if it does not exist.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, postgresSchema)
	return err
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListRouters returns routers ordered by name, then author.
func (s *PostgresStore) ListRouters(ctx context.Context, publishedOnly bool) ([]models.Router, error) {
	defer observe(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT name, author, published, services
		FROM routers
		WHERE published OR NOT $1
		ORDER BY name, author
	`, publishedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routers := []models.Router{}
	for rows.Next() {
		var r models.Router
		var services []byte
		if err := rows.Scan(&r.Name, &r.Author, &r.Published, &services); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(services, &r.Services); err != nil {
			return nil, err
		}
		routers = append(routers, r)
	}
	return routers, rows.Err()
}

// GetRouter retrieves a router by name and author.
func (s *PostgresStore) GetRouter(ctx context.Context, name, author string) (*models.Router, error) {
	defer observe(time.Now())

	r := &models.Router{}
	var services []byte
	err := s.pool.QueryRow(ctx, `
		SELECT name, author, published, services
		FROM routers WHERE name = $1 AND author = $2
	`, name, author).Scan(&r.Name, &r.Author, &r.Published, &services)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(services, &r.Services); err != nil {
		return nil, err
	}
	return r, nil
}

// UpsertRouter inserts a router or replaces its published flag and services.
func (s *PostgresStore) UpsertRouter(ctx context.Context, r *models.Router) error {
	defer observe(time.Now())

	services, err := json.Marshal(servicesOrEmpty(r.Services))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO routers (name, author, published, services)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, author) DO UPDATE
		SET published = EXCLUDED.published, services = EXCLUDED.services, updated_at = now()
	`, r.Name, r.Author, r.Published, services)
	return err
}

// CountRouters returns the number of published routers.
func (s *PostgresStore) CountRouters(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM routers WHERE published`).Scan(&count)
	return count, err
}

func observe(start time.Time) {
	metrics.DatabaseLatency.Observe(time.Since(start).Seconds())
}

func servicesOrEmpty(s []models.Service) []models.Service {
	if s == nil {
		return []models.Service{}
	}
	return s
}
