// Package state holds the client-side copy of server alarm state.
//
// # Overview
//
// Store maps alarm id to the latest alarm value received from the server. It
// is mutated only by a full resync (ApplyFullSync) or by push notifications
// (Apply), and it is read by the display projector (Project) and by the CLI
// and UI header (Snapshot).
//
// # Concurrency Model
//
// One mutex guards the alarm map and its two auxiliary collections:
//
//   - the updated-id set: ids mutated since the last projection run
//   - the new-alarm list: alarms received as NewAlarm since the last
//     sound-trigger pass
//
// Project runs its callback with that mutex held, so filter, limit and diff
// see a state that is a prefix of the delivered notifications, never a torn
// or reordered one. Keep the callback free of I/O.
//
// # Update Semantics
//
//	NewAlarm / AlarmChanged      upsert, mark updated (NewAlarm also queued as new)
//	AlarmTerminated / Deleted    remove
//	BulkResolved                 replace each known id with a resolved copy
//	BulkTerminated               remove each id
//
// Every mutation returns a Change listing old and new values per alarm so the
// caller can decide whether the current display filter is affected.
//
//	// Resync failure: keep old data, record error
//	store.RecordSyncError(err)
//	→ alarms unchanged
//	→ LastError = err, ConsecutiveFailures++
//
// # Subscriptions
//
// Subscribe registers an observer that receives every effective Change after
// the mutex is released. Deliveries are serialized in mutation order. An
// observer must not mutate the store from inside the callback. Close drops
// all observers and rejects further mutations with ErrClosed.
package state
