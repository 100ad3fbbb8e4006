// Package netstatus classifies raw HTTP status codes into the coarse
// categories the device firmware reacts to.
package netstatus

import "strconv"

// Status is a coarse classification of the outcome of one exchange.
type Status int

const (
	IoError Status = iota
	BrokenServer
	BrokenClient
	Ok
	Unauthorized
	Forbidden
)

func (s Status) String() string {
	switch s {
	case IoError:
		return "IO_ERROR"
	case BrokenServer:
		return "BROKEN_SERVER"
	case BrokenClient:
		return "BROKEN_CLIENT"
	case Ok:
		return "OK"
	case Unauthorized:
		return "UNAUTHORIZED"
	case Forbidden:
		return "FORBIDDEN"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Code is the representative HTTP code of a status, used when a frame is
// synthesized from a status alone. IoError has no wire code and maps to 0.
func (s Status) Code() int {
	switch s {
	case BrokenServer:
		return 500
	case BrokenClient:
		return 400
	case Ok:
		return 200
	case Unauthorized:
		return 401
	case Forbidden:
		return 403
	default:
		return 0
	}
}

// Table maps raw codes to statuses for one deployment. Codes missing from
// the table have no category.
type Table map[int]Status

// Default is the table used when a deployment does not provide its own.
var Default = Table{
	200: Ok,
	400: BrokenClient,
	401: Unauthorized,
	403: Forbidden,
	500: BrokenServer,
}

// Posix mirrors the desktop target, which knows no 401 and reports
// authorization failures as 403.
var Posix = Table{
	200: Ok,
	403: Forbidden,
	500: BrokenServer,
}

// Lookup returns the category of code, or false when the table does not know it.
// A nil table falls back to Default.
func (t Table) Lookup(code int) (Status, bool) {
	if t == nil {
		t = Default
	}
	s, ok := t[code]
	return s, ok
}
