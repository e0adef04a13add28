// Package wire implements MVRP message framing: parsing requests read from a
// secure channel and serializing requests and responses.
//
// Every read is a single bounded read. There are no continuation reads, so the
// configured maximum message size is a hard limit on what a peer can send in
// one exchange.
package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sufield/mvrp/internal/core/domain"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
)

const (
	// DefaultMaxMessageSize matches the single read buffer of the reference peer.
	DefaultMaxMessageSize = 1024

	lineTerminator  = "\r\n"
	headerSeparator = ": "
	headerEnd       = lineTerminator + lineTerminator
)

// BodyMode selects how a request body is located in the read buffer.
type BodyMode int

const (
	// BodyLastLine takes the final CRLF-separated line of the buffer as the
	// body and ignores Content-Length. Peers speaking MVRP/1.0 expect this.
	BodyLastLine BodyMode = iota
	// BodyContentLength takes the bytes after the blank line, cut to the
	// declared Content-Length.
	BodyContentLength
)

var bodyModeNames = map[BodyMode]string{
	BodyLastLine:      "last-line",
	BodyContentLength: "content-length",
}

func (m BodyMode) String() string {
	if s, ok := bodyModeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseBodyMode parses "last-line" or "content-length". The empty string
// selects BodyLastLine.
func ParseBodyMode(s string) (BodyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-line":
		return BodyLastLine, nil
	case "content-length":
		return BodyContentLength, nil
	default:
		return BodyLastLine, fmt.Errorf("invalid body mode %q (want last-line or content-length)", s)
	}
}

// Framer reads and writes MVRP messages. The zero value is usable and behaves
// like the reference peer: 1024 byte reads, last-line bodies.
type Framer struct {
	MaxMessageSize int
	BodyMode       BodyMode
}

func (f Framer) maxSize() int {
	if f.MaxMessageSize <= 0 {
		return DefaultMaxMessageSize
	}
	return f.MaxMessageSize
}

// ReadRequest performs one bounded read from r and parses the result.
func (f Framer) ReadRequest(r io.Reader) (*domain.Request, error) {
	buf, err := f.readOnce(r, mvrperrors.ErrMalformedRequest)
	if err != nil {
		return nil, err
	}
	return f.parse(buf, len(buf) == f.maxSize())
}

// ParseRequest parses a complete request buffer. A buffer as large as the
// maximum message size must contain the end of the header section.
func (f Framer) ParseRequest(buf []byte) (*domain.Request, error) {
	return f.parse(buf, len(buf) >= f.maxSize())
}

func (f Framer) parse(buf []byte, filled bool) (*domain.Request, error) {
	if len(buf) == 0 {
		return nil, mvrperrors.Newf(mvrperrors.ErrMalformedRequest, "empty request")
	}
	text := string(buf)
	if filled && !strings.Contains(text, headerEnd) {
		return nil, mvrperrors.Newf(mvrperrors.ErrMalformedRequest,
			"request line and headers do not fit in %d bytes", f.maxSize())
	}

	lines := strings.Split(text, lineTerminator)
	parts := strings.Fields(lines[0])
	if len(parts) < 2 {
		return nil, mvrperrors.Newf(mvrperrors.ErrMalformedRequestLine,
			"expected method and target, got %d token(s)", len(parts))
	}

	req := &domain.Request{
		Method:  domain.Method(parts[0]),
		Target:  parts[1],
		Headers: ParseHeaders(lines[1:]),
	}
	if len(parts) > 2 {
		req.Version = parts[2]
	}

	switch f.BodyMode {
	case BodyContentLength:
		body, err := contentLengthBody(text, req.Headers)
		if err != nil {
			return nil, err
		}
		req.Body = body
	default:
		req.Body = lines[len(lines)-1]
	}
	return req, nil
}

func contentLengthBody(text string, headers map[string]string) (string, error) {
	idx := strings.Index(text, headerEnd)
	if idx < 0 {
		return "", mvrperrors.Newf(mvrperrors.ErrMalformedRequest, "missing blank line after headers")
	}
	rest := text[idx+len(headerEnd):]

	raw, ok := headers[domain.HeaderContentLength]
	if !ok {
		return rest, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return "", mvrperrors.Newf(mvrperrors.ErrMalformedRequest, "invalid Content-Length %q", raw)
	}
	if n > len(rest) {
		return "", mvrperrors.Newf(mvrperrors.ErrMalformedRequest,
			"Content-Length %d exceeds the %d body bytes received", n, len(rest))
	}
	return rest[:n], nil
}

// ParseHeaders splits lines up to the first empty line into key/value pairs on
// the first ": ". Lines without the separator are skipped; a repeated key keeps
// its last value.
func ParseHeaders(lines []string) map[string]string {
	headers := make(map[string]string)
	for _, line := range lines {
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, headerSeparator)
		if !ok {
			continue
		}
		headers[key] = value
	}
	return headers
}

// EncodeRequest renders a request exactly as a client writes it.
func EncodeRequest(method domain.Method, target, body string) []byte {
	var b strings.Builder
	b.Grow(len(method) + len(target) + len(body) + 48)
	b.WriteString(string(method))
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteByte(' ')
	b.WriteString(domain.ProtocolVersion)
	b.WriteString(lineTerminator)
	b.WriteString(domain.HeaderContentLength)
	b.WriteString(headerSeparator)
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString(headerEnd)
	b.WriteString(body)
	return []byte(b.String())
}

// WriteRequest writes an encoded request with a single Write call.
func WriteRequest(w io.Writer, method domain.Method, target, body string) error {
	if _, err := w.Write(EncodeRequest(method, target, body)); err != nil {
		return mvrperrors.Wrapf(mvrperrors.ErrIO, err, "write request")
	}
	return nil
}

// EncodeResponse renders the status line, the fixed content type header, a
// blank line and the body. Nothing follows the body.
func EncodeResponse(resp *domain.Response) []byte {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = domain.ContentTypeText
	}
	return []byte(resp.StatusLine() + lineTerminator +
		domain.HeaderContentType + headerSeparator + contentType + headerEnd +
		resp.Body)
}

// WriteResponse writes an encoded response with a single Write call.
func WriteResponse(w io.Writer, resp *domain.Response) error {
	if _, err := w.Write(EncodeResponse(resp)); err != nil {
		return mvrperrors.Wrapf(mvrperrors.ErrIO, err, "write response")
	}
	return nil
}

// ReadResponse performs one bounded read and returns the raw response text.
func (f Framer) ReadResponse(r io.Reader) (string, error) {
	buf, err := f.readOnce(r, mvrperrors.ErrMalformedResponse)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ParseResponse decodes a raw response into status and body.
func ParseResponse(raw string) (*domain.Response, error) {
	head, body, ok := strings.Cut(raw, headerEnd)
	if !ok {
		return nil, mvrperrors.Newf(mvrperrors.ErrMalformedResponse, "missing blank line after headers")
	}
	lines := strings.Split(head, lineTerminator)

	fields := strings.SplitN(lines[0], " ", 3)
	if len(fields) < 2 {
		return nil, mvrperrors.Newf(mvrperrors.ErrMalformedResponse, "invalid status line %q", lines[0])
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrMalformedResponse, err, "invalid status code %q", fields[1])
	}
	resp := &domain.Response{
		Version:     fields[0],
		Status:      domain.Status{Code: code},
		ContentType: ParseHeaders(lines[1:])[domain.HeaderContentType],
		Body:        body,
	}
	if len(fields) == 3 {
		resp.Status.Reason = fields[2]
	}
	return resp, nil
}

func (f Framer) readOnce(r io.Reader, empty *mvrperrors.DomainError) ([]byte, error) {
	buf := make([]byte, f.maxSize())
	n, err := r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrIO, err, "read")
	}
	return nil, mvrperrors.Newf(empty, "peer sent no data")
}
