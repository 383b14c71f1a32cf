package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Level   slog.Level
	LogFile string
	Format  string // "json" or "text"
	// Stderr receives log lines in addition to LogFile. Nil disables it.
	Stderr io.Writer
}

// Setup creates a configured slog logger. The returned closer releases the
// log file, if one was opened.
func Setup(cfg Config) (*slog.Logger, func() error, error) {
	var writers []io.Writer
	closer := func() error { return nil }

	if cfg.LogFile != "" {
		dir := filepath.Dir(cfg.LogFile)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, err
		}

		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, file)
		closer = file.Close
	}

	if cfg.Stderr != nil {
		writers = append(writers, cfg.Stderr)
	}

	if len(writers) == 0 {
		return Discard(), closer, nil
	}

	var handler slog.Handler
	writer := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.Level <= slog.LevelDebug,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler), closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel converts a string to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func WithCommand(logger *slog.Logger, cmd string) *slog.Logger {
	return logger.With("command", cmd)
}

func WithProfile(logger *slog.Logger, profile string) *slog.Logger {
	return logger.With("profile", profile)
}

func WithRequest(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

func WithHTTPRequest(logger *slog.Logger, method, path string) *slog.Logger {
	return logger.With("http_method", method, "http_path", path)
}

func WithDuration(logger *slog.Logger, duration time.Duration) *slog.Logger {
	return logger.With("duration_ms", duration.Milliseconds())
}

// TokenHint returns a loggable fingerprint of a token: its last four
// characters. Full tokens never reach the log.
func TokenHint(token string) string {
	if token == "" {
		return "<none>"
	}
	if len(token) <= 8 {
		return "***"
	}
	return "***" + token[len(token)-4:]
}

// DefaultLogFile returns the default log file path below the dm home.
func DefaultLogFile() string {
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".deadline-mate", "dm.log")
}
