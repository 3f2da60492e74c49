// Package loglevel defines the severity levels a logger can be set to and the
// registry of named loggers whose thresholds change at runtime.
//
// Each Logger embeds a *slog.Logger gated by its own slog.LevelVar. Registry
// GetLogger creates loggers on first use at the registry's default level
// (WARNING unless WithDefaultLevel says otherwise); Lookup never creates.
// ParseLevel accepts only the canonical names DEBUG, INFO, WARNING and ERROR,
// while NormalizeLevel also accepts lowercase forms and the aliases warn and
// err.
package loglevel
