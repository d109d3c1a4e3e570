package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "***"

// defaultSensitiveKeys are matched as substrings of lowercased attribute
// keys.
var defaultSensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token",
	"private_key", "privatekey",
	"authorization",
}

// inlinePassword matches "password=..." style fragments inside messages and
// string values, such as a URL or a command line that ended up in an error.
var inlinePassword = regexp.MustCompile(`(?i)(password|passwd|pwd)([:=]\s*)[^\s&]+`)

// Redactor decides which attribute values to mask.
type Redactor struct {
	keys []string
}

// NewRedactor creates a Redactor for the built-in sensitive keys plus extra.
func NewRedactor(extra []string) *Redactor {
	keys := append([]string(nil), defaultSensitiveKeys...)
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keys = append(keys, k)
		}
	}
	return &Redactor{keys: keys}
}

// IsSensitiveKey reports whether values logged under key are masked.
func (r *Redactor) IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range r.keys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// RedactString masks inline password assignments in s.
func (r *Redactor) RedactString(s string) string {
	if s == "" {
		return s
	}
	return inlinePassword.ReplaceAllString(s, "${1}${2}"+Redacted)
}

// RedactAttr returns a masked copy of a. Groups are redacted recursively and
// LogValuers are resolved first.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if r.IsSensitiveKey(a.Key) {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, Redacted)
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

// redactingHandler masks sensitive attributes before passing records on.
type redactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewRedactingHandler wraps next so every attribute, including those added
// with WithAttrs, goes through r.
func NewRedactingHandler(next slog.Handler, r *Redactor) slog.Handler {
	return &redactingHandler{next: next, redactor: r}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.RedactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactor.RedactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}
