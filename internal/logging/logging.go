package logging

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level string
	JSON  bool
}

var def atomic.Value

func init() {
	def.Store(slog.New(newHandler(slog.LevelInfo, false)))
}

func newHandler(lvl slog.Level, json bool) slog.Handler {
	cfg := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.NewJSONHandler(os.Stderr, cfg)
	}
	return slog.NewTextHandler(os.Stderr, cfg)
}

func Configure(opts Options) {
	def.Store(slog.New(newHandler(parseLevel(opts.Level), opts.JSON)))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// For returns the process logger tagged with a component name. The child
// follows later Configure calls only through new For/L calls, so drivers
// should fetch it per use rather than cache it.
func For(component string) *slog.Logger {
	return L().With("component", component)
}

func InitFromEnv() {
	lvl := os.Getenv("SLUICE_LOG_LEVEL")
	json := false
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("SLUICE_LOG_JSON"))); err == nil {
		json = b
	}
	Configure(Options{Level: lvl, JSON: json})
}
