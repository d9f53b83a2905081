package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/sirupsen/logrus"
)

// Backend kinds understood by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
)

// Constructor opens a backend. Schema creation is left to Admin.Migrate.
type Constructor func(ctx context.Context, cfg *config.DatabaseConfig, log *logrus.Entry) (Admin, error)

var (
	backends   = map[string]Constructor{}
	backendsMu sync.RWMutex
)

// RegisterBackend registers a store constructor under a backend kind.
// This is called from cmd to avoid import cycles between the backend packages and this one.
func RegisterBackend(kind string, ctor Constructor) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(kind)] = ctor
}

// Backends returns the registered backend kinds, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	kinds := make([]string, 0, len(backends))
	for k := range backends {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open opens the backend selected by cfg.Backend (sqlite when empty).
func Open(ctx context.Context, cfg *config.DatabaseConfig, log *logrus.Entry) (Admin, error) {
	kind := strings.ToLower(cfg.Backend)
	if kind == "" {
		kind = BackendSQLite
	}

	backendsMu.RLock()
	ctor, ok := backends[kind]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown database backend %q (registered: %s)", kind, strings.Join(Backends(), ", "))
	}

	store, err := ctor(ctx, cfg, log.WithField("backend", kind))
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", kind, err)
	}
	return store, nil
}
