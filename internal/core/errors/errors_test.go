package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name        string
		domainError *DomainError
		want        string
	}{
		{
			name: "simple error",
			domainError: &DomainError{
				Code:    CodeMalformedRequest,
				Message: "empty request",
			},
			want: "MALFORMED_REQUEST: empty request",
		},
		{
			name: "error with wrapped error",
			domainError: &DomainError{
				Code:    CodeIO,
				Message: "read request",
				Err:     errors.New("connection reset by peer"),
			},
			want: "IO_ERROR: read request: connection reset by peer",
		},
		{
			name: "empty message",
			domainError: &DomainError{
				Code: "UNKNOWN",
			},
			want: "UNKNOWN: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.domainError.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	domainErr := &DomainError{Code: CodeIO, Message: "write", Err: originalErr}

	assert.Same(t, originalErr, domainErr.Unwrap())
	assert.Nil(t, (&DomainError{Code: CodeIO}).Unwrap())
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := Wrapf(ErrHandshake, io.EOF, "peer %s closed", "127.0.0.1:4000")
	wrapped := fmt.Errorf("connection 1: %w", err)

	assert.ErrorIs(t, wrapped, ErrHandshake)
	assert.ErrorIs(t, wrapped, io.EOF)
	assert.NotErrorIs(t, wrapped, ErrLoad)
	assert.NotErrorIs(t, wrapped, ErrIO)
}

func TestNewDomainError(t *testing.T) {
	cause := errors.New("wrapped error")

	resultErr := NewDomainError(ErrLoad, cause)

	var domainErr *DomainError
	require.ErrorAs(t, resultErr, &domainErr)
	assert.Equal(t, CodeLoad, domainErr.Code)
	assert.Equal(t, ErrLoad.Message, domainErr.Message)
	assert.Same(t, cause, domainErr.Err)

	// the base must stay untouched
	assert.Nil(t, ErrLoad.Err)
}

func TestNewf(t *testing.T) {
	err := Newf(ErrMalformedRequestLine, "expected method and target, got %d tokens", 1)

	assert.ErrorIs(t, err, ErrMalformedRequestLine)
	assert.EqualError(t, err, "MALFORMED_REQUEST_LINE: expected method and target, got 1 tokens")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConfig, CodeOf(fmt.Errorf("startup: %w", Newf(ErrConfig, "bad key"))))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "address", Value: "nope", Message: "must be host:port"}

	assert.Equal(t, "validation failed for field 'address' with value 'nope': must be host:port", err.Error())
}

func TestConfigValidationError(t *testing.T) {
	assert.NoError(t, NewConfigValidationError())

	first := &ValidationError{Field: "key_file", Message: "required"}
	second := &ValidationError{Field: "cert_file", Message: "required"}

	single := NewConfigValidationError(first)
	assert.Contains(t, single.Error(), "key_file")

	multi := NewConfigValidationError(first, second)
	assert.Contains(t, multi.Error(), "2 errors")

	var ve *ValidationError
	require.ErrorAs(t, multi, &ve)
	assert.Equal(t, "key_file", ve.Field)
}
