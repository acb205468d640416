package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the service logger: JSON in deployed environments, text
// for local development. Every record carries the service name so praxis logs
// stay separable from the host app's in a shared pipeline.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "praxis"))
}
