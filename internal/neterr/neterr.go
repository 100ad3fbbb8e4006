// Package neterr holds the failure taxonomy shared by the client, the server
// and the channel layer.
package neterr

import (
	"errors"
	"fmt"

	"github.com/xaitan80/iopnet/internal/netstatus"
)

// Kind says which side of an exchange misbehaved.
type Kind int

const (
	// IoError is a transport failure: socket or TLS read/write, connect,
	// or a stream that ended before a line completed.
	IoError Kind = iota
	// BrokenServer means the transport worked but the peer did not behave,
	// e.g. an unverifiable certificate or an unparseable status code.
	BrokenServer
	// BrokenClient means we could not produce a valid exchange ourselves,
	// e.g. a malformed URI or an unresolvable host.
	BrokenClient
)

func (k Kind) String() string {
	switch k {
	case IoError:
		return "io error"
	case BrokenServer:
		return "broken server"
	case BrokenClient:
		return "broken client"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Status converts the kind into its network status category.
func (k Kind) Status() netstatus.Status {
	switch k {
	case BrokenServer:
		return netstatus.BrokenServer
	case BrokenClient:
		return netstatus.BrokenClient
	default:
		return netstatus.IoError
	}
}

// Error is a classified failure of operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New classifies err as kind for operation op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// StatusOf maps any error to a network status. Unclassified errors are
// treated as transport failures.
func StatusOf(err error) netstatus.Status {
	if k, ok := KindOf(err); ok {
		return k.Status()
	}
	return netstatus.IoError
}
