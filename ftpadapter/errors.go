package ftpadapter

import (
	"errors"
	"net/textproto"

	"github.com/jlaffaye/ftp"
)

// Kind classifies an adapter failure independent of the concrete FTP status
// code, so the caller can map it to a POSIX errno exactly once.
type Kind int

// Error kinds.
const (
	Transport Kind = iota
	Protocol
	NotFound
	LocalIO
	Capacity
	BadHandle
)

// Error is the adapter's sum-typed result for hard failures.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return e.Op + " " + e.Path + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// textprotoErr unwraps err to a *textproto.Error if it wraps one.
func textprotoErr(err error) *textproto.Error {
	var tp *textproto.Error
	if errors.As(err, &tp) {
		return tp
	}
	return nil
}

// classify maps a raw error from the jlaffaye/ftp client into a Kind. A
// connect/timeout/accept-failure class error is Transport (the caller must
// drop the connection); a rejection the server issued in response to a
// well-formed command is Protocol (the connection stays usable). Protocol
// deliberately covers "file not found on RETR" and similar: NotFound is
// reserved for absence derived from a directory listing, never from a
// distinct FTP status code.
func classify(err error) Kind {
	if err == nil {
		return Protocol
	}
	if tp := textprotoErr(err); tp != nil {
		switch tp.Code {
		case ftp.StatusNotAvailable, ftp.StatusTransfertAborted:
			return Transport
		default:
			return Protocol
		}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transport
	}
	return Transport
}
