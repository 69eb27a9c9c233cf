package testutil

import (
	"context"

	"github.com/roach88/lifeline/internal/record"
)

// StaticLocator returns a fixed location or error immediately.
type StaticLocator struct {
	Loc record.Location
	Err error
}

// Locate implements builder.Locator.
func (l StaticLocator) Locate(context.Context) (record.Location, error) {
	return l.Loc, l.Err
}

// BlockingLocator never produces a fix; it waits for the context to end.
// Started is closed on the first call so tests can synchronize on it.
type BlockingLocator struct {
	Started chan struct{}
}

// NewBlockingLocator creates a BlockingLocator.
func NewBlockingLocator() *BlockingLocator {
	return &BlockingLocator{Started: make(chan struct{})}
}

// Locate blocks until ctx is done and returns its error.
func (l *BlockingLocator) Locate(ctx context.Context) (record.Location, error) {
	select {
	case <-l.Started:
	default:
		close(l.Started)
	}
	<-ctx.Done()
	return record.Location{}, ctx.Err()
}
