package watcher

import (
	"slices"
	"sync"
	"time"
	"unique"
)

// DefaultDebounceWindow is the quiet period after the last event before a batch is delivered.
const DefaultDebounceWindow = 50 * time.Millisecond

// Debouncer collects paths from bursts of file events and delivers each
// burst once, as a sorted, de-duplicated batch, after the window stays quiet.
type Debouncer struct {
	mu      sync.Mutex
	pending map[unique.Handle[string]]struct{}
	timer   *time.Timer
	window  time.Duration
	deliver func(paths []string)
}

// NewDebouncer creates a Debouncer delivering batches to deliver.
func NewDebouncer(window time.Duration, deliver func(paths []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[unique.Handle[string]]struct{}),
		window:  window,
		deliver: deliver,
	}
}

// Add records a changed path and restarts the quiet window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[unique.Make(path)] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// Pending returns the number of paths waiting for delivery.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	paths := d.takeLocked()
	d.mu.Unlock()

	if len(paths) > 0 && d.deliver != nil {
		go d.deliver(paths)
	}
}

// Flush delivers the pending batch now and waits for delivery to return.
// It does nothing if the timer already fired.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		if !d.timer.Stop() {
			d.mu.Unlock()
			return
		}
		d.timer = nil
	}
	paths := d.takeLocked()
	d.mu.Unlock()

	if len(paths) > 0 && d.deliver != nil {
		d.deliver(paths)
	}
}

func (d *Debouncer) takeLocked() []string {
	if len(d.pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(d.pending))
	for h := range d.pending {
		paths = append(paths, h.Value())
	}
	clear(d.pending)
	slices.Sort(paths)
	return paths
}
