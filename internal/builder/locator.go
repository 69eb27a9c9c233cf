package builder

import (
	"context"

	"github.com/roach88/lifeline/internal/record"
)

// Locator produces a best-effort position fix. Implementations should
// return promptly once ctx is done.
type Locator interface {
	Locate(ctx context.Context) (record.Location, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (record.Location, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context) (record.Location, error) {
	return f(ctx)
}

// FixedLocator always reports the same position, e.g. one typed on the
// command line.
type FixedLocator struct {
	Loc record.Location
}

// Locate returns l.Loc.
func (l FixedLocator) Locate(context.Context) (record.Location, error) {
	return l.Loc, nil
}
