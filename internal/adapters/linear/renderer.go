// Package linear provides a synchronous, line-oriented build progress reporter.
package linear

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/ui/output"
	"go.trai.ch/kiln/internal/ui/style"
)

var _ ports.Reporter = (*Renderer)(nil)

// Renderer implements ports.Reporter. It prints one line per finished unit,
// prefixed with the unit path, followed by diagnostics of failed units.
type Renderer struct {
	w      io.Writer
	output *termenv.Output

	mu       sync.Mutex
	started  map[string]time.Time
	compiled int
	cached   int
	failed   int
}

// NewRenderer creates a Renderer writing to w, or os.Stderr when w is nil.
func NewRenderer(w io.Writer) *Renderer {
	if w == nil {
		w = os.Stderr
	}
	return &Renderer{
		w:       w,
		output:  output.New(w),
		started: make(map[string]time.Time),
	}
}

// OnPlan prints the number of planned units.
func (r *Renderer) OnPlan(units, targets []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.compiled, r.cached, r.failed = 0, 0, 0
	scope := "all units"
	if len(targets) > 0 {
		scope = strings.Join(targets, ", ")
	}
	_, _ = fmt.Fprintf(r.w, "%s building %d unit(s) for %s\n",
		r.paint(style.Arrow, style.Ember), len(units), scope)
}

// OnUnitStart records when a unit started.
func (r *Renderer) OnUnitStart(unit string, startTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[unit] = startTime
}

// OnUnitComplete prints the outcome of a unit.
func (r *Renderer) OnUnitComplete(unit string, endTime time.Time, cached bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var elapsed time.Duration
	if start, ok := r.started[unit]; ok {
		elapsed = endTime.Sub(start).Round(time.Millisecond)
		delete(r.started, unit)
	}
	prefix := r.paint(fmt.Sprintf("[%s]", unit), style.Ash)

	switch {
	case err != nil:
		r.failed++
		_, _ = fmt.Fprintf(r.w, "%s %s failed\n", prefix, r.paint(style.Cross, style.Red))
		r.printFailureLocked(err)
	case cached:
		r.cached++
		_, _ = fmt.Fprintf(r.w, "%s %s cached\n", prefix, r.paint(style.Cached, style.Ash))
	default:
		r.compiled++
		_, _ = fmt.Fprintf(r.w, "%s %s compiled in %v\n", prefix, r.paint(style.Check, style.Green), elapsed)
	}
}

// Summary prints the totals of the last build.
func (r *Renderer) Summary(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	glyph := r.paint(style.Check, style.Green)
	if r.failed > 0 {
		glyph = r.paint(style.Cross, style.Red)
	}
	_, _ = fmt.Fprintf(r.w, "%s %d compiled, %d cached, %d failed in %v\n",
		glyph, r.compiled, r.cached, r.failed, d.Round(time.Millisecond))
}

func (r *Renderer) printFailureLocked(err error) {
	var ce *domain.CompileError
	if !errors.As(err, &ce) {
		_, _ = fmt.Fprintf(r.w, "    %s\n", err.Error())
		return
	}
	for _, d := range ce.Diagnostics {
		_, _ = fmt.Fprintf(r.w, "    %s\n", d.String())
	}
}

func (r *Renderer) paint(s string, color lipgloss.Color) string {
	return output.Paint(r.output, s, string(color))
}
