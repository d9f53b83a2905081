package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/imagestore"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect the stored identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored identities",
	Long: `List the stored identities in insertion order.

Examples:
  face-registry identities list
  face-registry identities list --columns name,type
  face-registry identities list --name "jiri"`,
	Args: cobra.NoArgs,
	RunE: runIdentitiesList,
}

var identitiesSimilarCmd = &cobra.Command{
	Use:   "similar <image>",
	Short: "Find the stored identities closest to the face in an image",
	Long: `Encode the first face in an image and list the nearest stored identities
by Euclidean distance. PostgreSQL searches server-side with pgvector; the other
backends use an in-memory HNSW index, optionally cached on disk with --index.

Examples:
  face-registry identities similar visitor.jpg
  face-registry identities similar visitor.jpg --limit 3 --json
  face-registry identities similar visitor.jpg --index identities.hnsw`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentitiesSimilar,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(identitiesSimilarCmd)

	identitiesListCmd.Flags().StringSlice("columns", []string{"id", "name", "type", "created_at"}, "Columns to show (id, name, type, encoding, created_at or *)")
	identitiesListCmd.Flags().String("name", "", "Only show names containing this text (case and diacritics are ignored)")
	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")

	identitiesSimilarCmd.Flags().Int("limit", 5, "Maximum number of results")
	identitiesSimilarCmd.Flags().String("index", "", "Cache the HNSW index at this path")
	identitiesSimilarCmd.Flags().Bool("gpu", false, "Use the accurate (CNN) face detector")
	identitiesSimilarCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	names := mustGetStringSlice(cmd, "columns")
	filter := mustGetString(cmd, "name")
	jsonOutput := mustGetBool(cmd, "json")

	columns, err := database.ParseColumns(strings.Join(names, ","))
	if err != nil {
		return err
	}
	// The filter needs the name even when it is not shown.
	query := columns
	if filter != "" {
		query = append([]database.Column{database.ColumnName}, columns...)
	}

	return withStore(cmd, "identities", func(ctx context.Context, s *session, store database.Admin) error {
		records, err := store.Read(ctx, query...)
		if err != nil {
			return fmt.Errorf("reading identities: %w", err)
		}

		rows := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			if !facematch.NameContains(rec.Name, filter) {
				continue
			}
			rows = append(rows, projectRecord(rec, columns))
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		header := make([]string, len(columns))
		for i, c := range columns {
			header[i] = strings.ToUpper(string(c))
		}
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for _, row := range rows {
			cells := make([]string, len(columns))
			for i, c := range columns {
				cells[i] = fmt.Sprint(row[string(c)])
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d identities\n", len(rows))
		return nil
	})
}

func projectRecord(rec database.IdentityRecord, columns []database.Column) map[string]any {
	row := make(map[string]any, len(columns))
	for _, c := range columns {
		switch c {
		case database.ColumnID:
			row[string(c)] = rec.ID
		case database.ColumnName:
			row[string(c)] = rec.Name
		case database.ColumnType:
			row[string(c)] = string(rec.Type)
		case database.ColumnEncoding:
			row[string(c)] = rec.Encoding.String()
		case database.ColumnCreatedAt:
			row[string(c)] = rec.CreatedAt
		}
	}
	return row
}

// SimilarIdentity is one result of identities similar.
type SimilarIdentity struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Distance float64 `json:"distance"`
	Match    bool    `json:"match"`
}

func runIdentitiesSimilar(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	indexPath := mustGetString(cmd, "index")
	jsonOutput := mustGetBool(cmd, "json")
	if limit <= 0 {
		return errors.New("--limit must be positive")
	}

	return withStore(cmd, "identities", func(ctx context.Context, s *session, store database.Admin) error {
		query, err := encodeImageFile(ctx, s, args[0], mustGetBool(cmd, "gpu"))
		if err != nil {
			return err
		}

		finder, err := nearestFinder(ctx, store, indexPath, s.log)
		if err != nil {
			return err
		}
		neighbors, err := finder.FindNearest(ctx, query, limit)
		if err != nil {
			return fmt.Errorf("searching identities: %w", err)
		}

		results := make([]SimilarIdentity, len(neighbors))
		for i, n := range neighbors {
			results[i] = SimilarIdentity{
				ID:       n.Record.ID,
				Name:     n.Record.Name,
				Type:     string(n.Record.Type),
				Distance: n.Distance,
				Match:    n.Distance <= s.cfg.Matching.Tolerance,
			}
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}

		if len(results) == 0 {
			fmt.Println("No identities stored.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tDISTANCE\tMATCH")
		for _, r := range results {
			match := ""
			if r.Match {
				match = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%s\n", r.ID, r.Name, r.Type, r.Distance, match)
		}
		return w.Flush()
	})
}

// encodeImageFile encodes the first face of an image on disk.
func encodeImageFile(ctx context.Context, s *session, path string, gpu bool) (database.Encoding, error) {
	img, err := imagestore.LoadFile(path)
	if err != nil {
		return nil, err
	}

	embedder, err := openEmbedder(s.cfg, gpu)
	if err != nil {
		return nil, err
	}
	defer embedder.Close()

	encodings, err := embedder.Encode(ctx, img, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", path, err)
	}
	if len(encodings) == 0 {
		return nil, fmt.Errorf("encoding %s: %w", path, embedding.ErrNoFace)
	}
	return encodings[0], nil
}

// nearestFinder prefers a backend's own vector search and falls back to an
// HNSW index over all stored encodings. With a path the index is loaded from
// disk when it still matches the store, and rebuilt and saved otherwise.
func nearestFinder(ctx context.Context, store database.Admin, path string, log *logrus.Entry) (database.NearestFinder, error) {
	if finder, ok := store.(database.NearestFinder); ok {
		return finder, nil
	}

	records, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading identities: %w", err)
	}

	if path != "" {
		index, meta, err := database.LoadIdentityIndex(path)
		switch {
		case err == nil && meta.Fresh(records):
			log.WithField("count", index.Count()).Debug("loaded identity index")
			return index, nil
		case err != nil && !errors.Is(err, database.ErrIndexNotFound):
			log.WithError(err).Warn("ignoring unreadable identity index")
		}
	}

	index := database.NewIdentityIndex()
	if err := index.Build(records); err != nil {
		return nil, fmt.Errorf("building identity index: %w", err)
	}
	if path != "" {
		if err := index.Save(path, database.MetadataFor(records)); err != nil {
			log.WithError(err).Warn("failed to save identity index")
		}
	}
	return index, nil
}
