// Package logger implements a logging adapter using log/slog.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/ports"
)

// messager describes an error that can report its own message without the chain.
// zerr.Error provides it.
type messager interface {
	Message() string
}

// metadataer describes an error carrying structured metadata, as zerr.Error does.
type metadataer interface {
	Metadata() map[string]any
}

// errorEntry is one layer of an error chain.
type errorEntry struct {
	message  string
	metadata map[string]any
}

// Logger implements ports.Logger using log/slog.
type Logger struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	jsonMode bool
	output   io.Writer
}

// New creates a new Logger instance writing to stderr.
func New() ports.Logger {
	l := &Logger{}
	l.SetOutput(os.Stderr)
	return l
}

// SetOutput updates the logger's output destination.
// It preserves the current JSON mode setting. A nil writer means os.Stderr.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w == nil {
		w = os.Stderr
	}
	l.output = w
	l.rebuildLocked()
}

// SetJSON switches between JSON and pretty logging.
func (l *Logger) SetJSON(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.jsonMode = enable
	l.rebuildLocked()
}

func (l *Logger) rebuildLocked() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if l.jsonMode {
		l.logger = slog.New(slog.NewJSONHandler(l.output, opts))
		return
	}
	l.logger = slog.New(NewPrettyHandler(l.output, opts))
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Warn(msg)
}

// Error logs an error. In pretty mode the cause chain is printed as
// "Error:" followed by "Caused by:" lines, each with its metadata.
func (l *Logger) Error(err error) {
	if err == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.jsonMode {
		l.logger.Error("operation failed", "error", err.Error())
		return
	}

	l.logger.Error(formatErrorEntries(collectErrorEntries(err)))
}

// collectErrorEntries walks the error chain. Layers with an empty message only
// carry metadata; it is merged into the next layer that has a message.
// A joined error ends the walk and is printed whole.
func collectErrorEntries(err error) []errorEntry {
	var entries []errorEntry
	var pending map[string]any

	for current := err; current != nil; {
		m, ok := current.(messager)
		if !ok {
			entries = append(entries, errorEntry{message: current.Error(), metadata: pending})
			break
		}

		var meta map[string]any
		if md, ok := current.(metadataer); ok {
			meta = md.Metadata()
		}

		if m.Message() == "" {
			if pending == nil {
				pending = make(map[string]any)
			}
			maps.Copy(pending, meta)
			current = errors.Unwrap(current)
			continue
		}

		if pending != nil {
			if meta == nil {
				meta = make(map[string]any)
			}
			maps.Copy(meta, pending)
			pending = nil
		}
		entries = append(entries, errorEntry{message: m.Message(), metadata: meta})
		current = errors.Unwrap(current)
	}

	return entries
}

// formatErrorEntries renders the entries hierarchically.
func formatErrorEntries(entries []errorEntry) string {
	lines := make([]string, 0, len(entries)+2)

	for i, entry := range entries {
		msgLines := strings.Split(entry.message, "\n")
		first := msgLines[0] + formatMetadata(entry.metadata)

		if i == 0 {
			lines = append(lines, "Error: "+first)
			for _, line := range msgLines[1:] {
				lines = append(lines, "       "+line)
			}
			continue
		}

		if i == 1 {
			lines = append(lines, "", "  Caused by:")
		}
		lines = append(lines, "    → "+first)
		for _, line := range msgLines[1:] {
			lines = append(lines, "      "+line)
		}
	}

	return strings.Join(lines, "\n")
}

func formatMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := slices.Sorted(maps.Keys(meta))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, meta[k])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
