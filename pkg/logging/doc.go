// Package logging provides structured logging configuration for the call engine.
//
// This package wraps log/slog so that every adapter, the engine and the CLI
// log the same way.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatJSON,
//	})
//
//	callLog := logging.ForCall(logger, state.ID, "http")
//	callLog.Debug("dialing", "addr", addr)
//
// # Integration
//
// Components accept a *slog.Logger in their constructor or via a setter.
// If no logger is provided, use logging.Nop().
//
// Logs are for operators. The per-call lifecycle events a user sees are
// published on the call's event bus instead (see package call).
package logging
