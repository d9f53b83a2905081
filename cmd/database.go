package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/spf13/cobra"
)

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Manage the identity store",
	Long: `Create, inspect and delete the identity store.

The backend is chosen with FACE_DB_BACKEND (sqlite, postgres or mariadb).

Examples:
  face-registry database create
  face-registry database status
  face-registry database delete data --yes`,
}

var databaseCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the identities table",
	Args:  cobra.NoArgs,
	RunE:  runDatabaseCreate,
}

var databaseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backend, its tables and the number of identities",
	Args:  cobra.NoArgs,
	RunE:  runDatabaseStatus,
}

var databaseDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete identities, the table or the whole database",
}

var databaseDeleteDataCmd = &cobra.Command{
	Use:   "data",
	Short: "Delete every stored identity but keep the table",
	Args:  cobra.NoArgs,
	RunE:  runDatabaseDeleteData,
}

var databaseDeleteTableCmd = &cobra.Command{
	Use:   "table",
	Short: "Drop the identities table",
	Args:  cobra.NoArgs,
	RunE:  runDatabaseDeleteTable,
}

var databaseDeleteDBCmd = &cobra.Command{
	Use:   "db",
	Short: "Remove the database (sqlite only)",
	Args:  cobra.NoArgs,
	RunE:  runDatabaseDeleteDB,
}

func init() {
	rootCmd.AddCommand(databaseCmd)
	databaseCmd.AddCommand(databaseCreateCmd)
	databaseCmd.AddCommand(databaseStatusCmd)
	databaseCmd.AddCommand(databaseDeleteCmd)
	databaseDeleteCmd.AddCommand(databaseDeleteDataCmd)
	databaseDeleteCmd.AddCommand(databaseDeleteTableCmd)
	databaseDeleteCmd.AddCommand(databaseDeleteDBCmd)

	databaseDeleteCmd.PersistentFlags().Bool("yes", false, "Skip confirmation prompt")
}

// withStore runs fn against an open store and closes it afterwards.
func withStore(cmd *cobra.Command, name string, fn func(ctx context.Context, s *session, store database.Admin) error) error {
	sess, err := startSession(cmd, name)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	store, err := openStore(ctx, sess.cfg, sess.log, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := fn(ctx, sess, store); err != nil {
		sess.log.WithError(err).Error("command failed")
		return err
	}
	return nil
}

func runDatabaseCreate(cmd *cobra.Command, args []string) error {
	return withStore(cmd, "database", func(ctx context.Context, s *session, store database.Admin) error {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("creating identities table: %w", err)
		}
		s.log.Info("identities table ready")
		fmt.Println("Identities table is ready.")
		return nil
	})
}

func runDatabaseStatus(cmd *cobra.Command, args []string) error {
	return withStore(cmd, "database", func(ctx context.Context, s *session, store database.Admin) error {
		tables, err := store.Tables(ctx)
		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}

		backend := s.cfg.Database.Backend
		if backend == "" {
			backend = database.BackendSQLite
		}
		fmt.Printf("Backend: %s\n", backend)
		fmt.Printf("Tables:  %v\n", tables)

		if !database.HasIdentitiesTable(tables) {
			fmt.Println("Identities table is missing.")
			return nil
		}
		records, err := store.Read(ctx, database.ColumnID)
		if err != nil {
			return fmt.Errorf("counting identities: %w", err)
		}
		fmt.Printf("Identities: %d\n", len(records))
		return nil
	})
}

func runDatabaseDeleteData(cmd *cobra.Command, args []string) error {
	if !mustGetBool(cmd, "yes") && !confirmAction("Delete every stored identity? [y/N]: ") {
		fmt.Println("Aborted.")
		return nil
	}
	return withStore(cmd, "database", func(ctx context.Context, s *session, store database.Admin) error {
		if err := store.DeleteAll(ctx); err != nil {
			return err
		}
		s.log.Warn("deleted all identities")
		fmt.Println("All identities deleted.")
		return nil
	})
}

func runDatabaseDeleteTable(cmd *cobra.Command, args []string) error {
	if !mustGetBool(cmd, "yes") && !confirmAction("Drop the identities table? [y/N]: ") {
		fmt.Println("Aborted.")
		return nil
	}
	return withStore(cmd, "database", func(ctx context.Context, s *session, store database.Admin) error {
		if err := store.DropSchema(ctx); err != nil {
			return fmt.Errorf("dropping identities table: %w", err)
		}
		s.log.Warn("dropped identities table")
		fmt.Println("Identities table dropped.")
		return nil
	})
}

func runDatabaseDeleteDB(cmd *cobra.Command, args []string) error {
	if !mustGetBool(cmd, "yes") && !confirmAction("Remove the whole database? [y/N]: ") {
		fmt.Println("Aborted.")
		return nil
	}
	return withStore(cmd, "database", func(ctx context.Context, s *session, store database.Admin) error {
		destroyer, ok := store.(database.Destroyer)
		if !ok {
			return errors.New("the configured backend cannot remove its database, use \"database delete table\"")
		}
		if err := destroyer.Destroy(ctx); err != nil {
			return fmt.Errorf("removing database: %w", err)
		}
		s.log.Warn("removed database")
		fmt.Println("Database removed.")
		return nil
	})
}
