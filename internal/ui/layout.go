package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which compact mode is used.
	LayoutCompactWidth = 100

	// LayoutZoneWidth is the minimum width to show the zone column.
	LayoutZoneWidth = 140
)

// Fixed rows outside the alarm table: header, command bar, banner, footer
// and the table header with its border.
const chromeRows = 6

// Timing constants.
const (
	// DefaultUIInterval is the header snapshot refresh interval.
	DefaultUIInterval = time.Second

	// CommandTimeout bounds one operator command round trip.
	CommandTimeout = 30 * time.Second
)
