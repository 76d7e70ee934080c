// Package logger installs the process-wide slog handler.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"unicode/utf8"
)

const logFileName = "server.log"

type Config struct {
	DataDir string
	DevMode bool
}

// Init sets slog's default logger. Dev mode logs text at debug level to
// stderr; otherwise JSON at info level. When DataDir is set, output is also
// appended to DataDir/server.log. The returned closer releases that file.
func Init(cfg Config) io.Closer {
	var out io.Writer = os.Stderr
	var file *os.File

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err == nil {
			f, err := os.OpenFile(filepath.Join(cfg.DataDir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err == nil {
				file = f
				out = io.MultiWriter(os.Stderr, f)
			}
		}
	}

	slog.SetDefault(slog.New(newHandler(out, cfg.DevMode)))

	if file == nil {
		return nopCloser{}
	}
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newHandler(w io.Writer, devMode bool) slog.Handler {
	if devMode {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
}

// LogPanic logs a recovered panic value with its stack. Call it from a
// deferred recover.
func LogPanic(recovered any, msg string, args ...any) {
	args = append(args, "panic", fmt.Sprint(recovered), "stack", string(debug.Stack()))
	slog.Error(msg, args...)
}

// Truncate shortens s to at most maxLen bytes without splitting a rune.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
