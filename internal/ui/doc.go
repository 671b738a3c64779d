// Package ui provides the klaxon terminal console.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program. Background workers never touch the model
// directly: the display projector, the sound engine, the listener and the
// command dispatcher call the Renderer, which forwards each callback onto the
// event loop with Program.Send. After the program quits the Renderer drops
// every callback and the model ignores any message already in flight.
//
// # Package Structure
//
//   - app.go: Model, message handling and the Run entry point
//   - bridge.go: Renderer, the worker-to-event-loop bridge
//   - table.go: alarm table columns and row rendering
//   - header.go: header, command bar, banner and footer
//   - modal.go: action menu built from the selection's legal actions
//   - help.go: help overlay
//   - theme.go: color themes and severity styles
//   - keys.go: key bindings
//
// # Display Updates
//
// A structural update replaces the row list with the projector's handles; a
// patch update only re-renders cells, because patched handles are the same
// pointers already held by the model. The cursor follows its alarm across
// structural updates, and selections of alarms that left the display are
// dropped.
//
// # Actions
//
// Enter opens the action menu for the selected alarms (or the alarm under the
// cursor). Only actions legal for every selected state are listed, using the
// server's strict status flow setting at the time the menu opens. Commands
// run off the event loop; failures arrive as a consolidated report in the
// error banner.
//
// # Visibility
//
// Suspending with ctrl+z hides the view: the refresh scheduler defers runs
// and local sounds stop until the program resumes.
package ui
