// Package config loads the klaxon connection and storage settings.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/klaxon/config.toml (default)
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - Server: 127.0.0.1:8080
//   - Transport: websocket (GET /api/notifications on the server)
//   - NATS: nats://127.0.0.1:4222, subject klaxon.alarms
//   - State directory: ~/.local/share/klaxon
//   - Sound cache: <state_dir>/sounds
//   - Log file: <state_dir>/klaxon.log
//
// # TOML Format
//
//	server = "nms.example.com:8080"
//	transport = "nats"
//	nats_url = "nats://nms.example.com:4222"
//	nats_subject_prefix = "nms"
//	state_dir = "~/.local/share/klaxon"
//	log_level = "debug"
//	display_limit = 500
//	min_refresh_ms = 1000
//	metrics_addr = "127.0.0.1:9464"
//
// Every field is optional. display_limit and min_refresh_ms override the
// values the server advertises; zero keeps the server's. Tilde expansion is
// applied to state_dir and log_file.
//
// # Error Handling
//
// Load returns errors for path expansion failures, unreadable files, TOML
// parse errors and unknown transports. A missing file is not an error.
package config
