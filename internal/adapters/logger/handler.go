package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"go.trai.ch/kiln/internal/ui/output"
	"go.trai.ch/kiln/internal/ui/style"
)

// PrettyHandler is a slog.Handler producing one colored line per record:
// a level glyph, the message, then key=value attributes.
type PrettyHandler struct {
	out    *termenv.Output
	mu     *sync.Mutex
	level  slog.Leveler
	attrs  []string
	prefix string
}

// NewPrettyHandler creates a new PrettyHandler writing to w.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &PrettyHandler{
		out:   output.New(w),
		mu:    &sync.Mutex{},
		level: level,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes the record.
//
//nolint:gocritic // slog.Handler interface requires slog.Record by value
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	msg, color := r.Message, style.Ash
	switch {
	case r.Level >= slog.LevelError:
		msg, color = style.Cross+" "+msg, style.Red
	case r.Level >= slog.LevelWarn:
		msg, color = style.Warning+" "+msg, style.Amber
	}

	parts := make([]string, 0, len(h.attrs)+r.NumAttrs()+1)
	parts = append(parts, msg)
	parts = append(parts, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, h.formatAttr(a))
		return true
	})

	line := output.Paint(h.out, strings.Join(parts, " "), string(color)) + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.WriteString(line)
	return err
}

// WithAttrs returns a new Handler with the given attributes appended.
// Attributes are rendered with the group prefix active at this point.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]string, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.formatAttr(a))
	}
	return &next
}

// WithGroup returns a new Handler that prefixes attribute keys with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *PrettyHandler) formatAttr(a slog.Attr) string {
	return h.prefix + a.Key + "=" + a.Value.String()
}
