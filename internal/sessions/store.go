// Package sessions defines the admin session store and the registry of its
// backends (postgres, redis, memory).
//
// A session row is the server-side truth for whether a token may be used:
// tokens carry a session id, and deleting the session revokes the token even
// though its signature and expiry are still valid.
package sessions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/sports-federation/federation-portal/internal/config"
	"github.com/sports-federation/federation-portal/internal/db/models"
)

// Store persists admin sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Create records a new session and returns its id.
	Create(ctx context.Context, userID, ipAddress, userAgent string) (string, error)
	// Exists reports whether the session is present.
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Get returns the session, or (nil, nil) when absent.
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// ListByUser returns the user's sessions, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
	// DeleteByUser removes every session of the user and returns the count removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// Deps carries the connections a backend may need.
type Deps struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  redis.UniversalClient
}

// FactoryFunc creates a session store backend
type FactoryFunc func(Deps) (Store, error)

var factories = make(map[string]FactoryFunc)

// Register registers a session store backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStore creates the session store selected by sessions.backend.
func NewStore(deps Deps) (Store, error) {
	name := deps.Config.Sessions.Backend
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unsupported session backend: %s (must be one of %s)", name, strings.Join(Backends(), ", "))
	}
	return factory(deps)
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
