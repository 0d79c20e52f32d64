// Package state holds the latest observed job status for the watch view.
//
// # Overview
//
// The tap client reports every job status it applies while following a
// query to an Observer. Store is that observer. For a job followed with
// app.StartPoller the poller writes the statuses instead. The Bubble Tea
// view reads snapshots on its own tick.
//
//	Producer (poll loop):          Consumer (UI):
//	┌──────────────────┐          ┌──────────────────┐
//	│ job.Refresh()    │          │                  │
//	│      ↓           │          │                  │
//	│ store.Observe()  │─────────→│ store.Snapshot() │
//	│      ↓           │ (mutex)  │      ↓           │
//	│ store.Finish()   │          │  render view     │
//	└──────────────────┘          └──────────────────┘
//
// # Update Semantics
//
// Observe replaces the job status and appends to History only when the
// phase changes, so History is the list of phase transitions with the time
// each was first seen. Finish marks the run as over and records the final
// error, if any; the last job status is kept for display.
//
// Snapshot returns copies of slices and the error, so callers may hold or
// mutate a snapshot freely.
//
// The zero Store is ready to use.
package state
