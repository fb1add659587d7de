// Package engine serves mocked HTTP traffic and hosts the control plane.
//
// # Architecture
//
// One listener carries both planes:
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        engine.Server                          │
//	├──────────────────────────────────────────────────────────────┤
//	│                                                               │
//	│   /mockserver/*  ──►  api.Server  (control plane)             │
//	│                         │                                     │
//	│                         ▼                                     │
//	│   everything else ──►  Handler  ──►  ExpectationStore         │
//	│                         │              FindMatch              │
//	│                         ▼                                     │
//	│                   respond │ forward │ error │ callback        │
//	│                                                               │
//	│   background: sweeper, initializer watcher, persistence       │
//	└──────────────────────────────────────────────────────────────┘
//
// The Handler decodes every request into an expectation.HttpRequest, asks
// the store for the first active expectation that matches, and performs its
// action. Requests nothing matches are answered with 404. Every request is
// recorded in the request log by the store, whatever the outcome.
//
// # Lifecycle
//
//	srv, err := engine.NewServer(cfg, engine.WithLogger(log))
//	if err != nil { ... }
//	if err := srv.LoadInitializers(); err != nil { ... }
//	err = srv.Run(ctx) // blocks until ctx is cancelled
package engine
