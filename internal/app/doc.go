// Package app provides the orchestration layer for the klaxon console.
//
// # Overview
//
// This package wires together configuration, the server session, the alarm
// store and the UI. It is the composition root: every long-lived component
// is built here and connected through the small interfaces each package
// declares for its collaborators.
//
// # Components
//
//   - app.go: Core (shared wiring), Open, Sync and List for one-shot commands
//   - watch.go: Run, the interactive console
//
// # Data Flow
//
//	┌──────────────┐
//	│   Open()     │ Build shared components
//	└──────┬───────┘
//	       │
//	       ├─────> config.Load()        Read klaxon config
//	       ├─────> logging.Init()       zerolog sink (file by default)
//	       ├─────> session.NewClient()  HTTP client for the alarm server
//	       ├─────> ServerInfo()         Pre-flight check (5 second timeout)
//	       └─────> ObjectTree()         Source and zone names
//
//	┌──────────────┐
//	│   Run()      │ Console session
//	└──────┬───────┘
//	       │
//	       ├─────> listener.Run()   Resync, then follow the notification stream
//	       ├─────> sound.Run()      Reminder ticks
//	       ├─────> metrics.Serve()  Optional Prometheus endpoint
//	       └─────> ui.Run()         TUI (blocks; quitting ends the session)
//
//	Notification path:
//	┌─────────────────────────────────────────────┐
//	│ stream ─> listener.Handle ─> store.Apply    │
//	│   └─> refresh.Execute (if filter touched)   │
//	│         └─> projector.Run ─> ui.Renderer    │
//	│               └─> Program.Send ─> Update    │
//	└─────────────────────────────────────────────┘
//
// # Error Handling
//
// Fatal errors (returned from Open or Run):
//   - Configuration file invalid
//   - Log file cannot be opened
//   - Server unreachable at startup
//
// Recoverable errors (logged and shown in the console banner):
//   - Alarm list resync failures
//   - Stream disconnects (reconnected with backoff)
//   - Object tree unavailable (sources shown by id)
//   - Sound downloads and player failures
//   - Metrics endpoint failures
//
// # Usage Example
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := app.Run(ctx, app.Options{}); err != nil {
//		log.Fatalf("klaxon failed: %v", err)
//	}
package app
