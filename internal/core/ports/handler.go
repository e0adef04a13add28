// Package ports defines the seams between the MVRP core and its adapters.
package ports

import (
	"context"

	"github.com/sufield/mvrp/internal/core/domain"
)

// Handler turns one parsed request into one response. Implementations must be
// safe for concurrent use; the server calls Handle from every connection task.
type Handler interface {
	Handle(ctx context.Context, req *domain.Request) *domain.Response
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req *domain.Request) *domain.Response

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *domain.Request) *domain.Response {
	return f(ctx, req)
}
