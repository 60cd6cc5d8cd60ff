package store

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// ErrSessionBusy is returned by Lock when a turn is already in flight.
var ErrSessionBusy = errors.New("session is busy")

// DataStore defines the interface for the router directory.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Router operations
	ListRouters(ctx context.Context, publishedOnly bool) ([]models.Router, error)
	GetRouter(ctx context.Context, name, author string) (*models.Router, error)
	UpsertRouter(ctx context.Context, r *models.Router) error
	CountRouters(ctx context.Context) (int64, error)
}

// SessionStore persists chat sessions between requests.
// Both RedisStore and MemoryStore implement this interface.
type SessionStore interface {
	CreateSession(ctx context.Context) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
	DeleteSession(ctx context.Context, id string) error
	// Lock marks a session as answering; it fails with ErrSessionBusy when
	// another turn holds it.
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// newSessionID returns a new time-ordered session ID.
func newSessionID() string {
	return ulid.Make().String()
}
