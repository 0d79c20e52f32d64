package tap

import (
	"errors"
	"strings"
)

// Kind classifies a failure surfaced by the client.
type Kind int

const (
	// KindTransport covers connection and timeout failures.
	KindTransport Kind = iota + 1
	// KindProtocol covers replies that do not follow the TAP/UWS protocol.
	KindProtocol
	// KindServer covers queries rejected by the server before a job existed.
	KindServer
	// KindJobFailed covers jobs that reached ERROR or ABORTED.
	KindJobFailed
	// KindLocalIO covers failures writing results to disk.
	KindLocalIO
	// KindCanceled covers polls stopped by the caller's context or by the
	// poll timeout. The cause is the wrapped error.
	KindCanceled
)

// Sentinels for errors.Is.
var (
	ErrTransport = errors.New("could not reach server")
	ErrProtocol  = errors.New("protocol error")
	ErrServer    = errors.New("server rejected query")
	ErrJobFailed = errors.New("job failed")
	ErrLocalIO   = errors.New("local i/o error")
	ErrCanceled  = errors.New("canceled")

	ErrEmptyQuery = errors.New("query text is empty")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindProtocol:
		return ErrProtocol
	case KindServer:
		return ErrServer
	case KindJobFailed:
		return ErrJobFailed
	case KindLocalIO:
		return ErrLocalIO
	case KindCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown error"
}

// Error is returned by every public operation of the package.
type Error struct {
	Kind    Kind
	Op      string // e.g. "submit", "poll", "fetch result"
	Message string // server-provided or descriptive text
	Err     error  // underlying cause, if any
}

// NewError builds an *Error. It is exported for packages layered on the
// client that report failures in the same taxonomy.
func NewError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	parts = append(parts, e.Kind.String())
	if msg := oneLine(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Err != nil {
		parts = append(parts, oneLine(e.Err.Error()))
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func transportError(op string, err error) *Error {
	return NewError(KindTransport, op, "", err)
}

func protocolError(op, message string) *Error {
	return NewError(KindProtocol, op, message, nil)
}

func serverError(op, message string) *Error {
	return NewError(KindServer, op, message, nil)
}

func jobFailed(op, message string) *Error {
	return NewError(KindJobFailed, op, message, nil)
}

func localIOError(op string, err error) *Error {
	return NewError(KindLocalIO, op, "", err)
}

// invalidInput reports a caller mistake caught before any request is sent.
func invalidInput(op string, err error) *Error {
	return NewError(KindProtocol, op, "", err)
}
