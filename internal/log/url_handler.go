package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// sensitiveParams are query parameter names whose values are masked in
// logged URLs. Matching is case-insensitive and substring-based so that
// vendor-prefixed variants (X-Amz-Signature, __gda__token) are caught.
var sensitiveParams = []string{
	"token",
	"signature",
	"session",
	"password",
	"secret",
	"auth",
	"credential",
	"apikey",
	"api_key",
	"api-key",
	"access_key",
}

// MaskValue is the string substituted for scrubbed URL components.
const MaskValue = "***"

// URLScrubHandler wraps an slog.Handler and scrubs credentials embedded
// in URL-shaped attribute values before passing records on.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because:
//  1. It integrates seamlessly with standard slog APIs
//  2. It works with any underlying handler (text, JSON, etc.)
//  3. Call sites keep logging URLs naturally without pre-cleaning them
type URLScrubHandler struct {
	// handler is the underlying slog handler that receives scrubbed records.
	handler slog.Handler
}

// NewURLScrubHandler creates a URLScrubHandler wrapping the given handler.
// If handler is nil, slog.Default()'s handler is used.
func NewURLScrubHandler(handler slog.Handler) *URLScrubHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &URLScrubHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *URLScrubHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle scrubs the record's attributes and passes it on.
func (h *URLScrubHandler) Handle(ctx context.Context, r slog.Record) error {
	scrubbed := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	r.Attrs(func(a slog.Attr) bool {
		scrubbed.AddAttrs(h.scrubAttr(a))
		return true
	})

	return h.handler.Handle(ctx, scrubbed)
}

// WithAttrs returns a new handler with the given attributes added,
// scrubbed first.
func (h *URLScrubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.scrubAttr(a)
	}
	return &URLScrubHandler{handler: h.handler.WithAttrs(scrubbed)}
}

// WithGroup returns a new handler with the given group name.
func (h *URLScrubHandler) WithGroup(name string) slog.Handler {
	return &URLScrubHandler{handler: h.handler.WithGroup(name)}
}

// scrubAttr scrubs a single attribute, recursively handling groups.
func (h *URLScrubHandler) scrubAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		scrubbed := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			scrubbed[i] = h.scrubAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(scrubbed...)}
	}

	if a.Value.Kind() == slog.KindString {
		val := a.Value.String()
		if cleaned, changed := ScrubURL(val); changed {
			return slog.String(a.Key, cleaned)
		}
	}

	return a
}

// ScrubURL masks userinfo and sensitive query parameter values in a
// URL-shaped string. It returns the input unchanged (changed=false)
// for values that do not parse as absolute http(s) URLs.
func ScrubURL(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return raw, false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw, false
	}

	changed := false

	if u.User != nil {
		u.User = url.User(MaskValue)
		changed = true
	}

	if u.RawQuery != "" {
		values := u.Query()
		for key := range values {
			if isSensitiveParam(key) {
				values.Set(key, MaskValue)
				changed = true
			}
		}
		if changed {
			u.RawQuery = values.Encode()
		}
	}

	if !changed {
		return raw, false
	}
	return u.String(), true
}

// isSensitiveParam reports whether a query parameter name looks like it
// carries a credential.
func isSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range sensitiveParams {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// NewLogger creates a *slog.Logger with URL scrubbing over a text handler.
//
// Parameters:
//   - w: the io.Writer to write log output to (typically os.Stderr)
//   - verbose: if true, sets log level to Debug; otherwise Warn
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	textHandler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewURLScrubHandler(textHandler))
}
