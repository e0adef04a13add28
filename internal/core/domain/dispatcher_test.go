package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sufield/mvrp/internal/core/domain"
)

func TestDispatch_RecognizedMethods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method     domain.Method
		wantCode   int
		wantReason string
		wantBody   string
	}{
		{domain.MethodOptions, 204, "No Content", ""},
		{domain.MethodCreate, 201, "Created", "Resource created\n"},
		{domain.MethodRead, 200, "OK", "Resource read\n"},
		{domain.MethodEmit, 200, "OK", "Event emitted\n"},
		{domain.MethodBurn, 200, "OK", "Resource burned\n"},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			t.Parallel()
			resp := domain.Dispatch(tt.method)

			assert.Equal(t, tt.wantCode, resp.Status.Code)
			assert.Equal(t, tt.wantReason, resp.Status.Reason)
			assert.Equal(t, tt.wantBody, resp.Body)
			assert.Equal(t, domain.ContentTypeText, resp.ContentType)
			assert.True(t, domain.IsKnownMethod(tt.method))
		})
	}
}

func TestDispatch_UnknownMethodsAreNotAllowed(t *testing.T) {
	t.Parallel()

	for _, method := range []domain.Method{
		"",
		"DELETE",
		"GET",
		"read",
		"Read",
		"options",
		"READ ",
		" READ",
		"RE\x00AD",
		"BURN!",
		"ÉMIT",
	} {
		resp := domain.Dispatch(method)

		assert.Equal(t, domain.StatusMethodNotAllowed, resp.Status, "method %q", method)
		assert.Equal(t, "Method not allowed\n", resp.Body, "method %q", method)
		assert.False(t, domain.IsKnownMethod(method), "method %q", method)
	}
}

func TestDispatchHandler_IgnoresTargetAndHeaders(t *testing.T) {
	t.Parallel()

	h := domain.DispatchHandler{}
	a := h.Handle(context.Background(), &domain.Request{Method: domain.MethodEmit, Target: "/a"})
	b := h.Handle(context.Background(), &domain.Request{
		Method:  domain.MethodEmit,
		Target:  "/somewhere/else",
		Headers: map[string]string{"X-Foo": "bar"},
		Body:    "payload",
	})

	assert.Equal(t, a, b)
}

func TestResponse_StatusLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "MVRP/1.0 200 OK", domain.Dispatch(domain.MethodRead).StatusLine())
	assert.Equal(t, "MVRP/1.0 405 Method Not Allowed", domain.Dispatch("DELETE").StatusLine())

	// a zero version falls back to the protocol tag
	resp := &domain.Response{Status: domain.StatusCreated}
	assert.Equal(t, "MVRP/1.0 201 Created", resp.StatusLine())
}

func TestRequest_Header(t *testing.T) {
	t.Parallel()

	var nilReq *domain.Request
	assert.Equal(t, "", nilReq.Header("X"))

	req := &domain.Request{Headers: map[string]string{"Content-Length": "4"}}
	assert.Equal(t, "4", req.Header(domain.HeaderContentLength))
	assert.Equal(t, "", req.Header("Missing"))
}
