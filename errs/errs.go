// Package errs defines the library-wide error taxonomy (spec §7) as a
// small set of errors.Is-compatible sentinel kinds. Every component
// wraps one of these rather than returning ad hoc error values, so a
// consumer can classify a failure with errors.Is(err, errs.SourceOpen)
// regardless of which package raised it.
package errs

import (
	"errors"
	"fmt"
)

var (
	// SourceOpen: source unavailable, permission denied, bad path.
	SourceOpen = errors.New("source open")
	// SourceDecode: malformed frame. Fatal on file captures, counted
	// and skipped on live captures.
	SourceDecode = errors.New("source decode")
	// CaptureInterrupted: Close() unblocked a pending Next().
	CaptureInterrupted = errors.New("capture interrupted")
	// FilterCompile: filter expression failed to compile.
	FilterCompile = errors.New("filter compile")
	// ConfigLocked: configuration change attempted after Open*.
	ConfigLocked = errors.New("config locked")
	// LookupFailed: thread/FD not found and synthesis not requested.
	LookupFailed = errors.New("lookup failed")
	// DumpIO: dump write or rotation failure.
	DumpIO = errors.New("dump io")
	// Fatal: an invariant broke; the inspector must close.
	Fatal = errors.New("fatal")
)

// Wrap produces an error that is both a human-readable message and
// errors.Is-compatible with kind.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{kind}, args...)...)
}

// CompileError carries the byte offset of a filter compile failure,
// per spec §8.4 ("column pointing past =").
type CompileError struct {
	Expr    string
	Pos     int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("filter compile: %s (at byte %d in %q)", e.Message, e.Pos, e.Expr)
}

func (e *CompileError) Unwrap() error { return FilterCompile }
