package client

import (
	"strconv"

	"github.com/xaitan80/iopnet/internal/headers"
)

// minStatusLine is len("HTTP/1.x ") plus one byte of code.
const minStatusLine = 10

// collector receives the response head and keeps only allow-listed headers.
type collector struct {
	allow   headers.AllowList
	headers headers.Headers
	code    int
}

func (c *collector) StartLine(line []byte) error {
	if len(line) < minStatusLine {
		return ErrShortStatusLine
	}
	rest := line[minStatusLine-1:]
	end := -1
	for i, b := range rest {
		if b == ' ' {
			end = i
			break
		}
	}
	if end == -1 {
		return ErrMissingStatusCode
	}
	code, err := strconv.Atoi(string(rest[:end]))
	if err != nil {
		return ErrInvalidStatusCode
	}
	c.code = code
	return nil
}

func (c *collector) Header(name, value string) error {
	if !c.allow.Allows(name) {
		return nil
	}
	if err := headers.CheckValue(value); err != nil {
		return err
	}
	c.headers.Set(name, value)
	return nil
}
