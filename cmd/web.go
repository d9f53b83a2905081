package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-registry/internal/imagestore"
	"github.com/kozaktomas/face-registry/internal/web"
	"github.com/spf13/cobra"
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the image gallery",
	Long: `Start a web server with a paginated gallery of FACE_IMAGE_DIR and a
read-only JSON API over the stored identities.

Endpoints:
  GET /                    gallery (?page=N&ipp=N)
  GET /images/{name}       one image
  GET /api/v1/identities   stored identities without encodings (?name=)
  GET /api/v1/config       active configuration
  GET /api/v1/health       health check`,
	Args: cobra.NoArgs,
	RunE: runWeb,
}

func init() {
	rootCmd.AddCommand(webCmd)

	webCmd.Flags().Int("port", 5000, "Port to listen on (overrides WEB_PORT)")
	webCmd.Flags().String("host", "127.0.0.1", "Host to bind to (overrides WEB_HOST)")
}

func runWeb(cmd *cobra.Command, args []string) error {
	sess, err := startSession(cmd, "web")
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.cfg.Web.Port = intOverride(cmd, "port", sess.cfg.Web.Port)
	sess.cfg.Web.Host = stringOverride(cmd, "host", sess.cfg.Web.Host)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	store, err := openStore(ctx, sess.cfg, sess.log, true)
	if err != nil {
		sess.log.WithError(err).Error("store unavailable")
		return err
	}
	defer store.Close()

	images := imagestore.New(sess.cfg.Images.Dir)
	if err := images.Ensure(); err != nil {
		return err
	}

	server := web.NewServer(sess.cfg, images, store, sess.log)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			sess.log.WithError(err).Error("error during shutdown")
		}
	}()

	fmt.Printf("Serving the gallery on http://%s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
