package devserver

import "context"

// Publish makes snap the served snapshot.
func (s *Server) Publish(snap *Snapshot) {
	s.publish(snap)
}

// Rebuild runs one rebuild against prev under the next generation.
// Nothing is written to the output directory.
func (s *Server) Rebuild(ctx context.Context, prev *Snapshot, changed []string) *Snapshot {
	s.generation++
	snap, _ := s.rebuild(ctx, s.generation, prev, changed)
	return snap
}

// Coordinate runs the coordinator, feeding it batches of absolute paths.
func (s *Server) Coordinate(ctx context.Context, batches <-chan []string) {
	changes := make(chan change)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case paths := <-batches:
				select {
				case changes <- change{paths: paths}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	s.coordinate(ctx, changes)
}

// WatchLoop runs the watcher supervisor, passing every change to onChange.
func (s *Server) WatchLoop(ctx context.Context, onChange func(paths []string, resync bool)) {
	changes := make(chan change)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-changes:
				onChange(c.paths, c.resync)
			}
		}
	}()
	s.watch(ctx, changes)
}

// NewTestSnapshot builds a snapshot for handler tests.
var NewTestSnapshot = newSnapshot

// InjectHTML exposes the page rewriting used for public HTML files.
var InjectHTML = injectHTML
