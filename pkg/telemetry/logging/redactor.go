package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// DefaultSecretPrefix is the prefix of generated API key secrets.
const DefaultSecretPrefix = "tg_"

// Redacted replaces sensitive values.
const Redacted = "***"

// Redactor masks credentials in log values.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Pattern names.
const (
	PatternSecret      = "secret"
	PatternBearerToken = "bearer_token"
	PatternAPIKeyAuth  = "apikey_auth"
	PatternPassword    = "password"
)

// sensitiveKeys are attribute names whose values are always masked.
var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey", "x-api-key",
	"authorization", "encryption_key", "private_key",
}

// NewRedactor creates a Redactor masking secrets with the given prefixes,
// bearer and ApiKey authorization values and password fields.
func NewRedactor(secretPrefixes ...string) *Redactor {
	if len(secretPrefixes) == 0 {
		secretPrefixes = []string{DefaultSecretPrefix}
	}

	r := &Redactor{}
	for _, prefix := range secretPrefixes {
		if prefix == "" {
			continue
		}
		r.add(PatternSecret,
			regexp.QuoteMeta(prefix)+`[A-Za-z0-9_\-]{8,}`,
			prefix+Redacted)
	}
	r.add(PatternBearerToken, `(?i)Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer "+Redacted)
	r.add(PatternAPIKeyAuth, `(?i)ApiKey\s+[a-zA-Z0-9\-._~+/]+=*`, "ApiKey "+Redacted)
	r.add(PatternPassword, `(?i)(password|passwd|pwd)[:=]\s*[^\s&]+`, "$1="+Redacted)
	return r
}

func (r *Redactor) add(name, expr, replacement string) {
	r.patterns = append(r.patterns, &redactPattern{
		name:        name,
		regex:       regexp.MustCompile(expr),
		replacement: replacement,
	})
}

// RedactString masks credentials embedded in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr masks a single attribute, descending into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	switch v.Kind() {
	case slog.KindGroup:
		attrs := v.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	case slog.KindString:
		if isSensitiveKey(a.Key) {
			if v.String() == "" {
				return a
			}
			return slog.String(a.Key, Redacted)
		}
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindAny:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, Redacted)
		}
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
		return a
	default:
		return a
	}
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// RedactingHandler masks credentials in every attribute before passing
// records on.
type RedactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{next: next, redactor: redactor}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.RedactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactor.RedactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}
