// Package wire implements the incremental HTTP/1.0 framing shared by the
// client and the server: one start line, CRLF header lines, a blank line,
// then the body, all read through a single fixed-capacity buffer.
package wire

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xaitan80/iopnet/internal/headers"
)

var (
	// ErrLineTooLong means a start or header line did not fit in the buffer.
	// Header blocks are never truncated, so this ends the exchange.
	ErrLineTooLong = errors.New("wire: line exceeds buffer capacity")
	// ErrEmpty means the peer closed without sending a single byte.
	ErrEmpty = errors.New("wire: empty message")
	// ErrUnexpectedEOF means the stream ended before the headers completed.
	ErrUnexpectedEOF = errors.New("wire: stream ended inside message head")
	// ErrShortBody means the stream ended before Content-Length bytes arrived.
	ErrShortBody = errors.New("wire: body shorter than Content-Length")
	// ErrBodyTooLarge means the body exceeded the configured maximum.
	ErrBodyTooLarge = errors.New("wire: body exceeds limit")
	// ErrBadContentLength means Content-Length is not a decimal number.
	ErrBadContentLength = errors.New("wire: invalid Content-Length")
)

var crlf = []byte("\r\n")

// BodyMode says how the end of the body is found.
type BodyMode int

const (
	// UntilClose honours Content-Length and otherwise reads to end-of-stream.
	// This is how HTTP/1.0 responses are delimited.
	UntilClose BodyMode = iota
	// LengthOnly honours Content-Length and otherwise assumes no body.
	// Requests use it since their peer keeps the socket open for the answer.
	LengthOnly
	// NoBody ends the message at the blank line, e.g. a response to HEAD.
	NoBody
)

type State int

const (
	AwaitingStartLine State = iota
	AwaitingHeaders
	ReadingBody
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingStartLine:
		return "awaiting-start-line"
	case AwaitingHeaders:
		return "awaiting-headers"
	case ReadingBody:
		return "reading-body"
	case Done:
		return "done"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Handler receives the message head as it is recognized.
type Handler interface {
	// StartLine gets the first line without its terminator.
	StartLine(line []byte) error
	// Header gets every header line, split into name and value.
	Header(name, value string) error
}

// Parser drives one message through its states. The zero value is not usable;
// create parsers with NewParser.
type Parser struct {
	buf   []byte
	r, w  int // unconsumed bytes are buf[r:w]
	state State

	h             Handler
	mode          BodyMode
	body          []byte
	contentLength int
	maxBody       int
	received      int

	log zerolog.Logger
}

// NewParser returns a parser whose buffer holds capacity bytes. A line longer
// than capacity cannot be parsed.
func NewParser(capacity int, h Handler, log zerolog.Logger) *Parser {
	return &Parser{
		buf:           make([]byte, capacity),
		h:             h,
		contentLength: -1,
		log:           log,
	}
}

// SetMaxBody bounds the body size; zero means unbounded.
func (p *Parser) SetMaxBody(n int) {
	p.maxBody = n
}

// SetBodyMode selects how the body is delimited; the default is UntilClose.
func (p *Parser) SetBodyMode(m BodyMode) {
	p.mode = m
}

func (p *Parser) State() State { return p.state }

// Body returns the accumulated payload.
func (p *Parser) Body() []byte { return p.body }

// ContentLength returns the declared body size, or -1 when none was seen.
func (p *Parser) ContentLength() int { return p.contentLength }

// Run reads from r until the message is complete. Without a Content-Length
// the body extends to end-of-stream.
func (p *Parser) Run(r io.Reader) error {
	for p.state != Done {
		if p.w == len(p.buf) {
			p.compact()
			if p.w == len(p.buf) {
				p.log.Debug().Stringer("state", p.state).Int("capacity", len(p.buf)).Msg("buffer full without line terminator")
				return ErrLineTooLong
			}
		}

		n, err := r.Read(p.buf[p.w:])
		if n > 0 {
			p.w += n
			p.received += n
			p.log.Debug().Int("read", n).Int("buffered", p.w-p.r).Stringer("state", p.state).Msg("recv")
			if perr := p.advance(); perr != nil {
				return perr
			}
		}
		if errors.Is(err, io.EOF) {
			return p.finish()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// compact moves the unconsumed bytes to the front of the buffer.
func (p *Parser) compact() {
	if p.r == 0 {
		return
	}
	p.w = copy(p.buf, p.buf[p.r:p.w])
	p.r = 0
}

// advance consumes as much of the buffered bytes as the current state allows.
func (p *Parser) advance() error {
	for {
		pending := p.buf[p.r:p.w]
		switch p.state {
		case AwaitingStartLine:
			lf := bytes.IndexByte(pending, '\n')
			if lf == -1 {
				return nil
			}
			if err := p.h.StartLine(bytes.TrimSuffix(pending[:lf], []byte{'\r'})); err != nil {
				return err
			}
			p.log.Debug().Int("length", lf+1).Msg("found start line")
			p.r += lf + 1
			p.state = AwaitingHeaders

		case AwaitingHeaders:
			idx := bytes.Index(pending, crlf)
			if idx == -1 {
				return nil
			}
			p.r += idx + 2
			if idx == 0 {
				p.log.Debug().Int("content_length", p.contentLength).Msg("found payload")
				p.state = ReadingBody
				if p.mode == NoBody || p.contentLength == 0 || (p.contentLength < 0 && p.mode == LengthOnly) {
					p.body = p.body[:0]
					p.state = Done
					return nil
				}
				continue
			}
			name, value, err := headers.ParseLine(pending[:idx])
			if err != nil {
				return err
			}
			if strings.EqualFold(name, "Content-Length") {
				n, err := strconv.Atoi(strings.TrimSpace(value))
				if err != nil || n < 0 {
					return ErrBadContentLength
				}
				if p.maxBody > 0 && n > p.maxBody && p.mode != NoBody {
					return ErrBodyTooLarge
				}
				p.contentLength = n
			}
			if err := p.h.Header(name, value); err != nil {
				return err
			}

		case ReadingBody:
			if len(pending) == 0 {
				return nil
			}
			p.body = append(p.body, pending...)
			p.r, p.w = 0, 0
			if p.contentLength >= 0 && len(p.body) >= p.contentLength {
				p.body = p.body[:p.contentLength]
				p.state = Done
				return nil
			}
			if p.maxBody > 0 && len(p.body) > p.maxBody {
				return ErrBodyTooLarge
			}
			return nil

		default:
			return nil
		}
	}
}

// finish settles the state at end-of-stream.
func (p *Parser) finish() error {
	switch p.state {
	case AwaitingStartLine:
		if p.received == 0 {
			return ErrEmpty
		}
		return ErrUnexpectedEOF
	case AwaitingHeaders:
		return ErrUnexpectedEOF
	case ReadingBody:
		if p.contentLength >= 0 && len(p.body) < p.contentLength {
			return ErrShortBody
		}
		p.log.Debug().Int("body", len(p.body)).Msg("eof")
		p.state = Done
	}
	return nil
}
