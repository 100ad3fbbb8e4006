package response

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xaitan80/iopnet/internal/headers"
)

// StatusCode is the limited set of HTTP status codes the server can answer with.
type StatusCode int

const (
	StatusOK       StatusCode = 200
	StatusFound    StatusCode = 302
	StatusNotFound StatusCode = 404
)

// Charset is appended to every Content-Type the server writes.
const Charset = "ISO-8859-5"

// Reason returns the reason phrase of code. Answering with a code outside
// the table is a programming error and panics.
func Reason(code StatusCode) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusFound:
		return "Found"
	case StatusNotFound:
		return "Not Found"
	default:
		panic("response: http code not known: " + strconv.Itoa(int(code)))
	}
}

// Known reports whether code has a reason phrase.
func Known(code StatusCode) bool {
	switch code {
	case StatusOK, StatusFound, StatusNotFound:
		return true
	}
	return false
}

// WriteStatusLine writes the HTTP/1.0 status line for the given status code.
func WriteStatusLine(w io.Writer, statusCode StatusCode) error {
	_, err := fmt.Fprintf(w, "HTTP/1.0 %d %s\r\n", int(statusCode), Reason(statusCode))
	return err
}

// WriteContentType writes the Content-Type line with the server charset.
func WriteContentType(w io.Writer, contentType string) error {
	_, err := fmt.Fprintf(w, "Content-Type: %s; charset=%s\r\n", contentType, Charset)
	return err
}

// WriteHeaders writes fields as "Name: Value\r\n" lines in order.
func WriteHeaders(w io.Writer, fields []headers.Field) error {
	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", f.Name, f.Value); err != nil {
			return err
		}
	}
	return nil
}

// WriteContentLength writes the Content-Length line.
func WriteContentLength(w io.Writer, n int) error {
	_, err := fmt.Fprintf(w, "Content-Length: %d\r\n", n)
	return err
}

// EndHead writes the blank line separating headers from the body.
func EndHead(w io.Writer) error {
	_, err := io.WriteString(w, "\r\n")
	return err
}
