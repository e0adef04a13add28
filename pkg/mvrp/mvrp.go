// Package mvrp serves and sends MVRP requests over mutually authenticated TLS.
//
// MVRP is a single-exchange text protocol: the client opens a TLS
// connection, writes one request such as
//
//	READ /widgets/7 MVRP/1.0\r\nContent-Length: 0\r\n\r\n
//
// and the server answers with one response before closing:
//
//	MVRP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\nResource read\n
//
// Both ends load their identity from PEM files. A server presents its
// certificate and may require client certificates; a client trusts exactly
// one CA certificate and verifies the server name.
//
// Typical server:
//
//	srv, err := mvrp.NewServer(&mvrp.ServerConfig{
//		Address:  "127.0.0.1:8443",
//		KeyFile:  "server.key",
//		CertFile: "server.crt",
//	}, mvrp.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	return srv.ListenAndServe(ctx)
//
// Typical client:
//
//	c, err := mvrp.NewClient(&mvrp.ClientConfig{
//		Address:  "127.0.0.1:8443",
//		KeyFile:  "client.key",
//		CertFile: "client.crt",
//		CAFile:   "ca.crt",
//	})
//	if err != nil {
//		return err
//	}
//	resp, err := c.Do(ctx, mvrp.MethodRead, "/widgets/7", "")
package mvrp

import (
	"github.com/sufield/mvrp/internal/config"
	"github.com/sufield/mvrp/internal/core/domain"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
	"github.com/sufield/mvrp/internal/core/ports"
	"github.com/sufield/mvrp/internal/transport"
	"github.com/sufield/mvrp/internal/wire"
)

// Protocol types.
type (
	Method   = domain.Method
	Request  = domain.Request
	Response = domain.Response
	Status   = domain.Status
	BodyMode = wire.BodyMode
)

// Configuration and extension points.
type (
	ServerConfig  = config.ServerConfig
	ClientConfig  = config.ClientConfig
	Handler       = ports.Handler
	HandlerFunc   = ports.HandlerFunc
	ServerMetrics = ports.ServerMetrics
	Stats         = transport.Stats
)

// Methods the built-in dispatcher knows.
const (
	MethodOptions = domain.MethodOptions
	MethodCreate  = domain.MethodCreate
	MethodRead    = domain.MethodRead
	MethodEmit    = domain.MethodEmit
	MethodBurn    = domain.MethodBurn
)

// Body location modes.
const (
	BodyLastLine      = wire.BodyLastLine
	BodyContentLength = wire.BodyContentLength
)

// Error kinds. Match them with errors.Is.
var (
	ErrLoad                 = mvrperrors.ErrLoad
	ErrConfig               = mvrperrors.ErrConfig
	ErrHandshake            = mvrperrors.ErrHandshake
	ErrMalformedRequestLine = mvrperrors.ErrMalformedRequestLine
	ErrMalformedRequest     = mvrperrors.ErrMalformedRequest
	ErrMalformedResponse    = mvrperrors.ErrMalformedResponse
	ErrIO                   = mvrperrors.ErrIO
)

// Dispatch returns the fixed response for method. Unknown methods get
// 405 Method Not Allowed.
func Dispatch(method Method) *Response {
	return domain.Dispatch(method)
}

// ParseResponse decodes raw response text as returned by Client.Send.
func ParseResponse(raw string) (*Response, error) {
	return wire.ParseResponse(raw)
}
