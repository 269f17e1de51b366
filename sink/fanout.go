package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-beddit/supervisor"
)

// Fanout records each reading to every registered sink, in name order.
// Sinks can be added and removed while readings flow.
type Fanout struct {
	sinks *xsync.MapOf[string, supervisor.Sink]
}

var _ supervisor.Sink = (*Fanout)(nil)

// NewFanout returns an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{sinks: xsync.NewMapOf[string, supervisor.Sink]()}
}

// Add registers s under name, replacing any sink with the same name.
func (f *Fanout) Add(name string, s supervisor.Sink) {
	f.sinks.Store(name, s)
}

// Remove unregisters name and returns the sink that was registered.
func (f *Fanout) Remove(name string) (supervisor.Sink, bool) {
	return f.sinks.LoadAndDelete(name)
}

// Names returns the registered names, sorted.
func (f *Fanout) Names() []string {
	names := make([]string, 0, f.sinks.Size())
	f.sinks.Range(func(name string, _ supervisor.Sink) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)

	return names
}

// Record hands r to every sink. One failing sink does not stop the others;
// the failures are joined into the returned error.
func (f *Fanout) Record(ctx context.Context, r supervisor.Reading) error {
	var errs []error

	for _, name := range f.Names() {
		s, ok := f.sinks.Load(name)
		if !ok {
			continue
		}

		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Close closes every registered sink that implements io.Closer and
// unregisters all sinks.
func (f *Fanout) Close() error {
	var errs []error

	for _, name := range f.Names() {
		s, ok := f.sinks.LoadAndDelete(name)
		if !ok {
			continue
		}

		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	return errors.Join(errs...)
}
