package tap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/koaarchive/koa/internal/table"
)

// Result describes where a query result ended up. Path is set when the
// caller named a destination; otherwise Table holds the parsed rows.
type Result struct {
	Path  string
	Table *table.Table
	Bytes int64
	Job   *JobStatus
}

// WriteFile streams r into path. Data lands in a sibling temp file that is
// renamed into place, so path never holds a partial download.
func WriteFile(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("rename %s: %w", path, err)
	}
	ok = true
	return n, nil
}

// sourceReader remembers read failures so a broken copy can be blamed on
// the network rather than the disk.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// WriteStream writes r to path like WriteFile. A failure reading r is
// reported with KindTransport, any other failure with KindLocalIO.
func WriteStream(op, path string, r io.Reader) (int64, error) {
	src := &sourceReader{r: r}
	n, err := WriteFile(path, src)
	if err != nil {
		return n, copyFailure(op, src, err)
	}
	return n, nil
}

func copyFailure(op string, src *sourceReader, err error) *Error {
	if src.err != nil {
		return transportError(op, src.err)
	}
	return localIOError(op, err)
}

// save writes the result body to outPath or, without one, through a temp
// file into an in-memory table.
func (c *Client) save(op string, body io.Reader, format table.Format, outPath string) (*Result, error) {
	if outPath != "" {
		n, err := WriteStream(op, outPath, body)
		if err != nil {
			return nil, err
		}
		return &Result{Path: outPath, Bytes: n}, nil
	}
	src := &sourceReader{r: body}
	tmp, err := os.CreateTemp(c.tempDir, "koa-result-*"+format.Ext())
	if err != nil {
		return nil, localIOError(op, fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	n, err := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err != nil {
		return nil, copyFailure(op, src, err)
	}
	if closeErr != nil {
		return nil, localIOError(op, closeErr)
	}

	tbl, err := table.ReadFile(tmpName, format)
	if err != nil {
		return nil, NewError(KindProtocol, op, "unreadable result table", err)
	}
	return &Result{Table: tbl, Bytes: n}, nil
}
