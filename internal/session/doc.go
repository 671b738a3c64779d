// Package session talks to the monitoring server: a REST client for alarms,
// commands, files and server policy, and push transports for alarm
// notifications.
//
// # Overview
//
// The package is split into three files:
//
//   - client.go: REST client built on resty
//   - stream.go: WebSocket and NATS notification streams
//   - types.go: wire types and the push frame codec
//
// # Client Usage
//
//	client, err := session.NewClient("nms.example.com:8080")
//	if err != nil {
//		return err
//	}
//	alarms, err := client.GetAlarms(ctx)
//
// # API Endpoints
//
//   - GET /api/alarms: full alarm list, used for resync
//   - POST /api/alarms/{id}/acknowledge: acknowledge one alarm
//   - POST /api/alarms/resolve, /api/alarms/terminate: bulk commands that
//     return a map of per-id failure codes
//   - GET /api/files/{name}: server-side files (sound assets)
//   - GET /api/server: server policy (display limit, refresh floor, strict flow)
//   - GET /api/objects: object tree and zones
//
// A 404 is reported as ErrNotFound so callers can use errors.Is. Other
// non-2xx responses carry the status and a truncated body.
//
// # Notification Frames
//
// Both transports carry the same JSON frame:
//
//	{"code": "new_alarm", "alarm": {...}}
//	{"code": "bulk_resolved", "bulk": {"ids": [1, 2], "userName": "ops", ...}}
//
// Malformed frames are logged and skipped; they never end a stream. A Stream
// returns nil when its context is cancelled and an error when the connection
// drops, leaving reconnection to the caller.
package session
