package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mariadb"
	"github.com/kozaktomas/face-registry/internal/database/postgres"
	"github.com/kozaktomas/face-registry/internal/database/sqlite"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/embedding/dlib"
	"github.com/kozaktomas/face-registry/internal/embedding/remote"
	"github.com/sirupsen/logrus"
)

// Embedder kinds selectable with EMBEDDER.
const (
	EmbedderDlib = "dlib"
	EmbedderHTTP = "http"
)

// errNoTable is returned by commands that need the identities table before
// "database create" has been run.
var errNoTable = errors.New(`the identities table does not exist, run "face-registry database create" first`)

func init() {
	database.RegisterBackend(database.BackendSQLite, sqlite.New)
	database.RegisterBackend(database.BackendPostgres, postgres.New)
	database.RegisterBackend(database.BackendMariaDB, mariadb.New)

	embedding.Register(EmbedderDlib, dlib.New)
	embedding.Register(EmbedderHTTP, remote.New)
}

// openStore opens the configured backend. With requireTable the store must
// already hold the identities table; the store is closed when it does not.
func openStore(ctx context.Context, cfg *config.Config, log *logrus.Entry, requireTable bool) (database.Admin, error) {
	store, err := database.Open(ctx, &cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if !requireTable {
		return store, nil
	}

	tables, err := store.Tables(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	if !database.HasIdentitiesTable(tables) {
		_ = store.Close()
		return nil, errNoTable
	}
	return store, nil
}

// openEmbedder creates the configured embedder, with the GPU flag forcing the accurate detector.
func openEmbedder(cfg *config.Config, gpu bool) (embedding.Embedder, error) {
	embCfg := cfg.Embedding
	embCfg.GPU = embCfg.GPU || gpu
	return embedding.New(&embCfg)
}
