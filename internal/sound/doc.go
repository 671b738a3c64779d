// Package sound plays alarm sounds and outstanding-alarm reminders.
//
// # Sound Sources
//
// Sounds are queued from two places, depending on the local_sound preference:
//
//   - global (local_sound = false): the engine subscribes to the alarm store
//     and queues the severity sound of every new or changed outstanding alarm
//   - local (local_sound = true): the display projector queues sounds for new
//     alarms that pass the view filter while the view is active
//
// The queue holds QueueSize entries. Triggers that arrive while it is full
// are dropped rather than blocking the caller.
//
// # Asset Cache
//
// Each sound tag (NORMAL..CRITICAL, REMINDER) maps to a server file name in
// prefs. Files are cached under <state_dir>/sounds and downloaded on the first
// miss through a temp file and rename. A failed download disables that tag in
// prefs, is never retried in the same session, and raises a single OnError
// for the whole session.
//
// # Reminder
//
// Every PollInterval (10s) the engine checks whether reminders are enabled,
// alarms are outstanding and the reminder interval has passed since the last
// reminder. The interval restarts whenever the outstanding count rises from
// zero.
package sound
