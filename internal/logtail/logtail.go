package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Filter selects log lines. A nil Filter keeps every line.
type Filter func(line string) bool

// Read returns at most maxLines matching lines from the end of the file at
// path. maxLines <= 0 returns every matching line. A missing file yields no
// lines and no error.
func Read(path string, maxLines int, keep Filter) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			if line := scanner.Text(); keep == nil || keep(line) {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		line := scanner.Text()
		if keep != nil && !keep(line) {
			continue
		}
		ring[idx] = line
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// MinLevel keeps slog records at or above level. It understands both the
// text (level=INFO) and JSON ("level":"INFO") handler output; lines
// without a recognizable level are kept.
func MinLevel(level string) Filter {
	min, ok := levelRank[strings.ToUpper(strings.TrimSpace(level))]
	if !ok {
		return nil
	}
	return func(line string) bool {
		lvl := lineLevel(line)
		if lvl == "" {
			return true
		}
		rank, known := levelRank[lvl]
		return !known || rank >= min
	}
}

// Contains keeps lines that contain substr, ignoring case.
func Contains(substr string) Filter {
	needle := strings.ToLower(strings.TrimSpace(substr))
	if needle == "" {
		return nil
	}
	return func(line string) bool {
		return strings.Contains(strings.ToLower(line), needle)
	}
}

// All combines filters; nil filters are ignored.
func All(filters ...Filter) Filter {
	var active []Filter
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(line string) bool {
		for _, f := range active {
			if !f(line) {
				return false
			}
		}
		return true
	}
}

func lineLevel(line string) string {
	for _, marker := range []string{"level=", `"level":"`} {
		i := strings.Index(line, marker)
		if i < 0 {
			continue
		}
		rest := line[i+len(marker):]
		end := strings.IndexAny(rest, ` "`)
		if end >= 0 {
			rest = rest[:end]
		}
		// slog renders offsets such as WARN+2; compare the base level.
		if plus := strings.IndexAny(rest, "+-"); plus > 0 {
			rest = rest[:plus]
		}
		return strings.ToUpper(rest)
	}
	return ""
}
