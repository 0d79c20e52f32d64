// Package ui provides the terminal views of koa: a live monitor for a
// running TAP job and a renderer for result tables.
//
// # Monitor
//
// The monitor is a Bubble Tea program started by `koa query --watch`. The
// query runs in its own goroutine and reports through a state.Store (the
// client's observer); the model polls the store on a short tick and never
// talks to the archive itself. When the store is marked done the program
// prints its final frame and exits. Quitting early detaches the monitor
// without cancelling the job on the server.
//
// Key bindings:
//
//   - q/esc/ctrl+c: stop watching
//   - l: toggle a tail of the debug log
//   - T: cycle theme (persisted through prefs)
//   - h/?: help
//
// # Tables
//
// RenderTable draws a table.Table with lipgloss borders for `koa show` and
// the text output of queries that keep their result in memory.
//
// # Themes
//
// Themes carry a small palette plus one badge color per UWS phase.
// Nightfox is the default; Kanagawa and Slate are available.
package ui
