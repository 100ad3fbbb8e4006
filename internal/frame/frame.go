// Package frame holds the immutable result of one completed HTTP exchange.
package frame

import (
	"github.com/xaitan80/iopnet/internal/headers"
	"github.com/xaitan80/iopnet/internal/netstatus"
)

// Frame is a parsed response: code, derived status, retained headers, body.
type Frame struct {
	code    int
	status  netstatus.Status
	known   bool
	headers headers.Headers
	body    []byte
}

// New builds a frame whose status is derived from code through table.
func New(code int, table netstatus.Table, h headers.Headers, body []byte) *Frame {
	s, ok := table.Lookup(code)
	if h == nil {
		h = headers.NewHeaders()
	}
	return &Frame{code: code, status: s, known: ok, headers: h, body: body}
}

// Raw builds a frame that only carries a code: no headers, no body.
func Raw(code int, table netstatus.Table) *Frame {
	return New(code, table, nil, nil)
}

// FromStatus synthesizes a frame for a failure that never produced a code
// on the wire.
func FromStatus(s netstatus.Status) *Frame {
	return &Frame{code: s.Code(), status: s, known: true, headers: headers.NewHeaders()}
}

// WithBody returns a frame with the same code and status carrying body.
func (f *Frame) WithBody(body []byte) *Frame {
	return &Frame{code: f.code, status: f.status, known: f.known, headers: headers.NewHeaders(), body: body}
}

func (f *Frame) Code() int { return f.code }

// Status returns the category of the code, or false when the deployment's
// table does not know it.
func (f *Frame) Status() (netstatus.Status, bool) {
	return f.status, f.known
}

// Is reports whether the frame carries status s.
func (f *Frame) Is(s netstatus.Status) bool {
	return f.known && f.status == s
}

// Header looks a retained header up, case-insensitively.
func (f *Frame) Header(name string) (string, bool) {
	return f.headers.Lookup(name)
}

// Body returns the payload. Callers must not modify it.
func (f *Frame) Body() []byte { return f.body }
