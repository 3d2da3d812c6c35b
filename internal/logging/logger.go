package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yourusername/mc-server-panel/internal/config"
)

// ConsoleLogName is the file receiving the game server's stdout and stderr
const ConsoleLogName = "console.log"

var (
	logger    *slog.Logger
	initOnce  sync.Once
	logCloser io.Closer
)

// Init configures the global logger singleton.
func Init(cfg config.LoggingConfig) (*slog.Logger, error) {
	var initErr error

	initOnce.Do(func() {
		level := parseLevel(cfg.Level)
		output, closer, err := buildOutput(cfg)
		if err != nil {
			initErr = err
			output = os.Stdout
		}
		if closer != nil {
			logCloser = closer
		}

		// source would always point at slogWriter for log.Printf callers
		options := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if strings.EqualFold(cfg.Format, "text") {
			handler = slog.NewTextHandler(output, options)
		} else {
			handler = slog.NewJSONHandler(output, options)
		}

		logger = slog.New(handler)
		slog.SetDefault(logger)
		log.SetFlags(0)
		log.SetOutput(slogWriter{logger: logger})
	})

	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return logger, initErr
}

// L returns the configured logger, or a no-op logger if not initialized.
func L() *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger
}

// Close flushes and closes any logger resources.
func Close() error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

// NewConsoleWriter returns a rotating writer for the game server's own
// output, stored next to the panel logs in dataDir.
func NewConsoleWriter(dataDir string, cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	dir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, ConsoleLogName),
		MaxSize:    maxInt(cfg.MaxSize, 50),
		MaxBackups: maxInt(cfg.MaxBackups, 3),
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}, nil
}

// slogWriter routes the standard logger into slog. A leading "[Component]"
// tag becomes the component attribute and a "Warning:" prefix raises the
// level.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	component, msg := splitComponent(msg)
	level := slog.LevelInfo
	if rest, ok := strings.CutPrefix(msg, "Warning:"); ok {
		level = slog.LevelWarn
		msg = strings.TrimSpace(rest)
	}

	if component != "" {
		w.logger.Log(context.Background(), level, msg, "component", component)
	} else {
		w.logger.Log(context.Background(), level, msg)
	}
	return len(p), nil
}

func splitComponent(msg string) (string, string) {
	if !strings.HasPrefix(msg, "[") {
		return "", msg
	}
	end := strings.IndexByte(msg, ']')
	if end <= 1 || strings.ContainsAny(msg[1:end], " \t") {
		return "", msg
	}
	return strings.ToLower(msg[1:end]), strings.TrimSpace(msg[end+1:])
}

func buildOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	if strings.TrimSpace(cfg.File) == "" {
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, err
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	return io.MultiWriter(os.Stdout, fileLogger), fileLogger, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func maxInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
