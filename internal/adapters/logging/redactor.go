// Package logging builds the slog loggers used across MVRP. Every logger it
// returns masks sensitive attributes before they reach the output.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder for redacted sensitive data.
const RedactedValue = "[REDACTED]"

var defaultSensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"private_key":   true,
	"privatekey":    true,
	"private-key":   true,
	"credentials":   true,
	"bearer":        true,
	"authorization": true,
	"pem":           true,
}

// RedactorHandler wraps an slog.Handler to automatically redact sensitive fields.
type RedactorHandler struct {
	handler         slog.Handler
	sensitiveFields map[string]bool
}

// NewRedactorHandler creates a new handler that redacts sensitive fields.
func NewRedactorHandler(handler slog.Handler) *RedactorHandler {
	return &RedactorHandler{
		handler:         handler,
		sensitiveFields: defaultSensitiveFields,
	}
}

// Enabled implements slog.Handler.
func (h *RedactorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler with sensitive data redaction.
//
//nolint:gocritic // Required by slog.Handler interface
func (h *RedactorHandler) Handle(ctx context.Context, record slog.Record) error {
	newRecord := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		newRecord.AddAttrs(h.redactAttr(attr))
		return true
	})

	if err := h.handler.Handle(ctx, newRecord); err != nil {
		return fmt.Errorf("redactor handle failed: %w", err)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *RedactorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redactedAttrs := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		redactedAttrs[i] = h.redactAttr(attr)
	}
	return &RedactorHandler{handler: h.handler.WithAttrs(redactedAttrs), sensitiveFields: h.sensitiveFields}
}

// WithGroup implements slog.Handler.
func (h *RedactorHandler) WithGroup(name string) slog.Handler {
	return &RedactorHandler{handler: h.handler.WithGroup(name), sensitiveFields: h.sensitiveFields}
}

func (h *RedactorHandler) redactAttr(attr slog.Attr) slog.Attr {
	if h.isSensitiveField(attr.Key) {
		return slog.String(attr.Key, RedactedValue)
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		redactedAttrs := make([]slog.Attr, len(group))
		for i, groupAttr := range group {
			redactedAttrs[i] = h.redactAttr(groupAttr)
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(redactedAttrs...)}
	case slog.KindString:
		return slog.String(attr.Key, redactSensitiveStrings(attr.Value.String()))
	default:
		return attr
	}
}

func (h *RedactorHandler) isSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	if h.sensitiveFields[lower] {
		return true
	}
	for sensitive := range h.sensitiveFields {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// redactSensitiveStrings masks PEM material and JWT-shaped tokens wherever
// they appear, including inside error messages.
func redactSensitiveStrings(value string) string {
	if strings.Contains(value, "-----BEGIN ") {
		return RedactedValue
	}
	if looksLikeJWT(value) {
		return RedactedValue
	}
	return value
}

func looksLikeJWT(value string) bool {
	if len(value) <= 50 || strings.ContainsAny(value, " \t\r\n/:") {
		return false
	}
	segments := strings.Split(value, ".")
	if len(segments) != 3 {
		return false
	}
	for _, s := range segments {
		if s == "" || strings.Trim(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_=") != "" {
			return false
		}
	}
	return true
}
