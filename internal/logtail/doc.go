// Package logtail reads the tail of the koa debug log.
//
// # Reading Log Files
//
// Read uses a ring buffer of size maxLines, so it scans the file once and
// holds only the lines it returns:
//
//	lines, err := logtail.Read(cfg.DebugLogPath(), 200, logtail.MinLevel("warn"))
//
// Filters run before lines enter the buffer, so "the last 200 warnings" is
// exactly that, not the warnings among the last 200 lines.
//
// # Filters
//
//   - MinLevel: drop slog records below a level (text or JSON handler output)
//   - Contains: case-insensitive substring match, e.g. a job id
//   - All: combine filters
//
// Read returns nil, nil for a missing file; the log only exists once a run
// has written to it.
package logtail
