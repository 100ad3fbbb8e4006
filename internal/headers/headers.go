package headers

import (
	"bytes"
	"errors"
	"strings"

	"github.com/scott-ainsworth/go-ascii"
)

var (
	ErrMissingColon = errors.New("invalid header: missing colon")
	ErrEmptyName    = errors.New("invalid header: empty name")
	ErrInvalidName  = errors.New("invalid header: invalid character in name")
	ErrInvalidValue = errors.New("invalid header: invalid character in value")
)

// Headers is a header set keyed by lower-cased name.
type Headers map[string]string

// NewHeaders creates an empty Headers map.
func NewHeaders() Headers {
	return make(Headers)
}

// Get returns the value stored for key, compared case-insensitively,
// or "" when absent.
func (h Headers) Get(key string) string {
	return h[strings.ToLower(key)]
}

// Lookup is Get with an explicit presence flag.
func (h Headers) Lookup(key string) (string, bool) {
	v, ok := h[strings.ToLower(key)]
	return v, ok
}

// Set replaces the value stored for key.
func (h Headers) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Add appends value to an existing entry, comma separated.
func (h Headers) Add(key, value string) {
	key = strings.ToLower(key)
	if prev, ok := h[key]; ok {
		h[key] = prev + "," + value
		return
	}
	h[key] = value
}

// Field is one header line in the order it will be written.
type Field struct {
	Name  string
	Value string
}

// AllowList is the set of header names a client retains from a response.
type AllowList map[string]struct{}

// NewAllowList lower-cases names into an AllowList.
func NewAllowList(names ...string) AllowList {
	a := make(AllowList, len(names))
	for _, n := range names {
		a[strings.ToLower(n)] = struct{}{}
	}
	return a
}

// Allows reports whether name, compared case-insensitively, is retained.
func (a AllowList) Allows(name string) bool {
	_, ok := a[strings.ToLower(name)]
	return ok
}

// ParseLine splits one header line (CRLF already stripped) on its first colon.
// Leading spaces are trimmed from the value; the name must be non-empty,
// printable and free of whitespace. The value is returned unchecked.
func ParseLine(line []byte) (name, value string, err error) {
	colon := bytes.IndexByte(line, ':')
	if colon == -1 {
		return "", "", ErrMissingColon
	}
	if colon == 0 {
		return "", "", ErrEmptyName
	}
	for _, c := range line[:colon] {
		if c == ' ' || c == '\t' || !ascii.IsPrint(c) {
			return "", "", ErrInvalidName
		}
	}
	return string(line[:colon]), string(bytes.TrimLeft(line[colon+1:], " ")), nil
}

// CheckValue rejects control bytes in a value. obs-text (>= 0x80) and tabs
// pass. Values of headers that are dropped are never checked.
func CheckValue(value string) error {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 0x80 && c != '\t' && !ascii.IsPrint(c) {
			return ErrInvalidValue
		}
	}
	return nil
}
