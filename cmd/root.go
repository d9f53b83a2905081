package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-registry",
	Short: "Register faces from captured images and recognize them live",
	Long: `Face Registry keeps a store of known faces and their encodings.

Captured images are deduplicated into the store with "images execute-task verify",
renamed with the help of OCR and cropped to the face. "recognition live" labels
faces seen by the camera against the stored identities.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (overrides FACE_LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// session is the configuration and logger of one command invocation.
type session struct {
	cfg    *config.Config
	log    *logrus.Entry
	closer io.Closer
}

// startSession loads configuration and opens the dated log file for the
// named command. Close must be called before returning.
func startSession(cmd *cobra.Command, name string) (*session, error) {
	cfg := config.Load()
	cfg.Logging.Level = stringOverride(cmd, "log-level", cfg.Logging.Level)

	log, closer, err := logging.Setup(logging.Options{
		Dir:     cfg.Logging.Dir,
		Command: name,
		Level:   cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	log = log.WithField("command", name)
	log.Info("starting")
	return &session{cfg: cfg, log: log, closer: closer}, nil
}

func (s *session) Close() {
	s.log.Info("finished")
	_ = s.closer.Close()
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
