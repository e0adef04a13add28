package domain

import "fmt"

// ProtocolVersion is the fixed version tag carried on every request and status line.
const ProtocolVersion = "MVRP/1.0"

// ContentTypeText is the only content type a response ever declares.
const ContentTypeText = "text/plain"

// Header names understood by the framer.
const (
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
)

// Method is a request method token. Matching is exact and case-sensitive.
type Method string

// Recognized methods.
const (
	MethodOptions Method = "OPTIONS"
	MethodCreate  Method = "CREATE"
	MethodRead    Method = "READ"
	MethodEmit    Method = "EMIT"
	MethodBurn    Method = "BURN"
)

// Request is one parsed MVRP request. It is consumed once and not retained
// after its connection closes.
type Request struct {
	Method Method
	Target string
	// Version is the optional third token of the request line. It is kept for
	// logging only and never validated.
	Version string
	Headers map[string]string
	Body    string
}

// Header returns the value stored for key, or "" when absent.
func (r *Request) Header(key string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[key]
}

// Status is a numeric status code with its reason phrase.
type Status struct {
	Code   int
	Reason string
}

// Status values produced by the dispatcher.
var (
	StatusOK               = Status{Code: 200, Reason: "OK"}
	StatusCreated          = Status{Code: 201, Reason: "Created"}
	StatusNoContent        = Status{Code: 204, Reason: "No Content"}
	StatusMethodNotAllowed = Status{Code: 405, Reason: "Method Not Allowed"}
)

func (s Status) String() string {
	return fmt.Sprintf("%d %s", s.Code, s.Reason)
}

// Response is produced by a handler and written to the channel exactly once.
type Response struct {
	Version     string
	Status      Status
	ContentType string
	Body        string
}

// NewResponse builds a text/plain response with the fixed protocol version.
func NewResponse(status Status, body string) *Response {
	return &Response{
		Version:     ProtocolVersion,
		Status:      status,
		ContentType: ContentTypeText,
		Body:        body,
	}
}

// StatusLine renders "<version> <code> <reason>".
func (r *Response) StatusLine() string {
	version := r.Version
	if version == "" {
		version = ProtocolVersion
	}
	return version + " " + r.Status.String()
}
