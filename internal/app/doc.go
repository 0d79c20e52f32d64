// Package app is the composition root of koa.
//
// # Overview
//
// New takes a resolved config.Config and wires the pieces every command
// needs: the slog logger, the cookie jar, the shared HTTP transport and the
// TAP, archive and download clients built on top of it. The CLI builds one
// App per invocation and closes it on exit.
//
// # Wiring
//
//	┌──────────────┐
//	│   New()      │
//	└──────┬───────┘
//	       │
//	       ├─────> logging.New()      Text or JSON slog handler
//	       ├─────> cookies.Load()     Session cookies, if the file exists
//	       ├─────> transport.New()    One client, one jar
//	       ├─────> state.Store{}      Observer for the job monitor
//	       ├─────> tap.NewClient()    Async/sync TAP queries
//	       ├─────> archive.New()      Login, makeQuery, name lookup
//	       └─────> download.New()     Bulk file retrieval
//
// All clients share the transport, so a cookie captured by login is sent on
// every later query and download of the same run, and is saved to the
// cookie file for later runs.
//
// # Following an existing job
//
// StartPoller follows a job that was submitted earlier (koa job status
// --watch). It fills the same state.Store the TAP client feeds during a
// query, so the monitor works the same way for both.
//
//	StartPoller() goroutine
//	 ├─> tap.Client.Status()
//	 ├─> store.Observe()         every successful poll
//	 ├─> store.Report()          failed poll, retried with backoff
//	 └─> store.Finish()          terminal phase or cancellation
//
// Failed polls back off exponentially from the poll interval up to 30
// seconds.
//
// # Preferences
//
// The status URL of the last async job is remembered in the prefs file so
// `koa job status` and `koa job fetch` work without arguments.
package app
