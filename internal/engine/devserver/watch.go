package devserver

import (
	"context"
	"time"

	"go.trai.ch/kiln/internal/adapters/watcher" //nolint:depguard // Debouncer is shared with the watcher
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	minWatchBackoff = 100 * time.Millisecond
	maxWatchBackoff = 10 * time.Second
)

// watch feeds debounced file events to the coordinator. A watcher that
// fails to start or dies is replaced after an exponentially growing delay,
// which resets once a watcher has stayed healthy for maxWatchBackoff.
func (s *Server) watch(ctx context.Context, changes chan<- change) {
	send := func(c change) {
		select {
		case changes <- c:
		case <-ctx.Done():
		}
	}
	debouncer := watcher.NewDebouncer(s.cfg.DebounceWindow, func(paths []string) {
		send(change{paths: paths})
	})

	delay := minWatchBackoff
	restarted := false

	for {
		w, err := s.startWatcher(ctx)
		if err == nil {
			if restarted {
				s.logger.Info("file watcher restarted")
				send(change{resync: true})
			}

			started := time.Now()
			for ev := range w.Events() {
				debouncer.Add(ev.Path)
			}
			err = w.Err()
			_ = w.Stop()

			if time.Since(started) >= maxWatchBackoff {
				delay = minWatchBackoff
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = domain.WithMeta(domain.ErrWatchIO, "reason", "event stream closed")
		}

		s.logger.Error(err)
		s.logger.Warn("restarting file watcher in " + delay.String())
		restarted = true

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxWatchBackoff)
	}
}

func (s *Server) startWatcher(ctx context.Context) (ports.Watcher, error) {
	w, err := s.watchers()
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx, s.cfg.Project.Root); err != nil {
		_ = w.Stop()
		return nil, err
	}
	return w, nil
}
