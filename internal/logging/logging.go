// Package logging configures the process-wide logrus logger.
//
// Every invocation logs to stderr and appends to a dated file in the log
// directory, named <dd-mm-yyyy>_<command>.log. Each entry carries a "run"
// field so the lines of one invocation can be grepped out of a shared file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FileDateLayout is the date part of log file names.
const FileDateLayout = "02-01-2006"

// Options control Setup.
type Options struct {
	Dir     string    // log directory, created when missing; empty disables the file sink
	Command string    // command name used in the file name
	Level   string    // logrus level name, info when empty
	Stderr  io.Writer // defaults to os.Stderr
	Now     func() time.Time
}

// Setup builds a logger writing to stderr and the dated log file. The returned
// closer releases the file and must be called before exit.
func Setup(opts Options) (*logrus.Entry, io.Closer, error) {
	logger := logrus.New()
	logger.SetReportCaller(true)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		},
	})

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing log level: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	out := stderr
	if opts.Dir != "" {
		f, err := openLogFile(opts)
		if err != nil {
			return nil, nil, err
		}
		closer = f
		out = io.MultiWriter(stderr, f)
	}
	logger.SetOutput(out)

	entry := logger.WithField("run", uuid.NewString())
	return entry, closer, nil
}

// FileName returns the log file name for a command on a given day.
func FileName(command string, day time.Time) string {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "face-registry"
	}
	command = strings.ReplaceAll(command, " ", "-")
	return fmt.Sprintf("%s_%s.log", day.Format(FileDateLayout), command)
}

// Discard returns an entry that drops everything. Used by tests and library callers
// that do not care about logs.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func openLogFile(opts Options) (*os.File, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	path := filepath.Join(opts.Dir, FileName(opts.Command, now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
