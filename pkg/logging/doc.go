// Package logging configures the log/slog loggers used across the server.
//
// Components accept a *slog.Logger through an option and fall back to Nop
// when none is given. Loggers handed to a component are tagged with a
// component attribute:
//
//	log := logging.New(logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON})
//	store := storage.New(storage.WithLogger(logging.Component(log, "store")))
//
// Extra handlers (the dashboard's log stream, for example) receive every
// record alongside the primary output through MultiHandler.
package logging
