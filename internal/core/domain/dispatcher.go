package domain

import "context"

type outcome struct {
	status Status
	body   string
}

var outcomes = map[Method]outcome{
	MethodOptions: {StatusNoContent, ""},
	MethodCreate:  {StatusCreated, "Resource created\n"},
	MethodRead:    {StatusOK, "Resource read\n"},
	MethodEmit:    {StatusOK, "Event emitted\n"},
	MethodBurn:    {StatusOK, "Resource burned\n"},
}

var methodNotAllowed = outcome{StatusMethodNotAllowed, "Method not allowed\n"}

// Dispatch maps a method token to its fixed response. It ignores target and
// headers and is total: any unknown token yields 405.
func Dispatch(method Method) *Response {
	o, ok := outcomes[method]
	if !ok {
		o = methodNotAllowed
	}
	return NewResponse(o.status, o.body)
}

// IsKnownMethod reports whether method has a dedicated outcome.
func IsKnownMethod(method Method) bool {
	_, ok := outcomes[method]
	return ok
}

// DispatchHandler serves requests with Dispatch.
type DispatchHandler struct{}

// Handle implements ports.Handler.
func (DispatchHandler) Handle(_ context.Context, req *Request) *Response {
	return Dispatch(req.Method)
}
