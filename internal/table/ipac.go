package table

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// readIPAC parses an IPAC ASCII table. Keyword and comment lines start with
// a backslash; the first header line (starting with '|') carries column
// names and its pipe positions fix the column boundaries for data rows.
// Further header lines (types, units, nulls) are skipped.
func readIPAC(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	t := &Table{}
	var pipes []int
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, `\`):
			continue
		case strings.HasPrefix(line, "|"):
			if pipes != nil {
				continue
			}
			pipes = pipePositions(line)
			if len(pipes) < 2 {
				return nil, fmt.Errorf("malformed ipac header %q", line)
			}
			for i := 0; i < len(pipes)-1; i++ {
				t.Columns = append(t.Columns, strings.TrimSpace(line[pipes[i]+1:pipes[i+1]]))
			}
		case strings.TrimSpace(line) == "":
			continue
		default:
			if pipes == nil {
				return nil, fmt.Errorf("ipac data row before header")
			}
			t.Rows = append(t.Rows, splitFixed(line, pipes))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pipes == nil {
		return nil, fmt.Errorf("ipac header not found")
	}
	return t, nil
}

func pipePositions(line string) []int {
	var out []int
	for i, c := range line {
		if c == '|' {
			out = append(out, i)
		}
	}
	return out
}

// splitFixed cuts a data row into cells; column i owns the characters in
// (pipes[i], pipes[i+1]]. The last column runs to the end of the line.
func splitFixed(line string, pipes []int) []string {
	cells := make([]string, len(pipes)-1)
	for i := range cells {
		start := pipes[i] + 1
		end := pipes[i+1] + 1
		if start >= len(line) {
			break
		}
		if end > len(line) || i == len(cells)-1 {
			end = len(line)
		}
		cells[i] = strings.TrimSpace(line[start:end])
	}
	return cells
}
