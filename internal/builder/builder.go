package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/record"
)

// Defaults applied by New when an option is left zero.
const (
	DefaultLocateTimeout = 10 * time.Second
	DefaultTTL           = 2 * time.Hour
	DefaultIDAttempts    = 16
)

// Notices reported alongside a record built without a location.
const (
	NoticeNoLocator     = "Location services unavailable. The record was created without a location."
	NoticeLocateTimeout = "Location fix timed out. The record was created without a location."
	NoticeLocateDenied  = "Location permission denied. The record was created without a location."
	NoticeLocateFailed  = "Location could not be determined. The record was created without a location."
	NoticeLocateInvalid = "Location fix was out of range and was discarded."
)

// Options configures a Builder.
type Options struct {
	Clock    clock.Clock
	IDs      record.IDGenerator
	Registry *record.Registry
	Locator  Locator

	// LocateTimeout bounds the geolocation fix.
	LocateTimeout time.Duration

	// TTL sets ExpiresAt = CreatedAt + TTL. Negative disables expiry.
	TTL time.Duration

	// IDAttempts bounds redraws after a session-local id collision.
	IDAttempts int

	Logger *zap.Logger
}

// Builder creates emergency records. Safe for concurrent use.
type Builder struct {
	clock         clock.Clock
	ids           record.IDGenerator
	registry      *record.Registry
	locator       Locator
	locateTimeout time.Duration
	ttl           time.Duration
	idAttempts    int
	logger        *zap.Logger
}

// New creates a Builder, filling defaults for zero options.
func New(opts Options) *Builder {
	b := &Builder{
		clock:         opts.Clock,
		ids:           opts.IDs,
		registry:      opts.Registry,
		locator:       opts.Locator,
		locateTimeout: opts.LocateTimeout,
		ttl:           opts.TTL,
		idAttempts:    opts.IDAttempts,
		logger:        opts.Logger,
	}
	if b.clock == nil {
		b.clock = clock.System{}
	}
	if b.ids == nil {
		b.ids = record.RandomIDGenerator{}
	}
	if b.registry == nil {
		b.registry = record.NewRegistry()
	}
	if b.locateTimeout <= 0 {
		b.locateTimeout = DefaultLocateTimeout
	}
	if b.ttl == 0 {
		b.ttl = DefaultTTL
	}
	if b.idAttempts <= 0 {
		b.idAttempts = DefaultIDAttempts
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

// Result is the outcome of Build.
type Result struct {
	Record record.EmergencyRecord

	// Notice is a non-fatal message for the user, empty when nothing
	// degraded.
	Notice string

	// LocateErr is the geolocation failure behind Notice, if any.
	LocateErr error
}

// Build assembles a record for profile. The returned record has a fresh id
// unique within this Builder's registry, a creation time truncated to the
// millisecond, and a location that is nil whenever the fix failed.
//
// Build returns ctx.Err() if the caller's context ends first; the pending
// fix is abandoned.
func (b *Builder) Build(ctx context.Context, profile record.Profile) (*Result, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("build: invalid profile: %w", err)
	}

	created := b.clock.Now().UTC().Truncate(time.Millisecond)

	loc, notice, locErr := b.locate(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := b.nextID(created)
	if err != nil {
		return nil, err
	}

	rec := record.EmergencyRecord{
		EmergencyID:    id,
		SubjectID:      record.Clean(profile.SubjectID),
		CreatedAt:      created,
		Location:       loc,
		MedicalSummary: profile.Summary(),
	}
	if b.ttl > 0 {
		rec.ExpiresAt = created.Add(b.ttl)
	}

	b.logger.Info("emergency record built",
		zap.String("emergency_id", rec.EmergencyID),
		zap.String("subject_id", rec.SubjectID),
		zap.Bool("has_location", rec.Location != nil),
	)

	return &Result{Record: rec, Notice: notice, LocateErr: locErr}, nil
}

// locate runs the locator under the timeout. The locator runs in its own
// goroutine so a locator that ignores its context cannot stall Build.
func (b *Builder) locate(ctx context.Context) (*record.Location, string, error) {
	if b.locator == nil {
		return nil, NoticeNoLocator, nil
	}

	lctx, cancel := context.WithTimeout(ctx, b.locateTimeout)
	defer cancel()

	type fix struct {
		loc record.Location
		err error
	}
	ch := make(chan fix, 1)
	go func() {
		loc, err := b.locator.Locate(lctx)
		ch <- fix{loc, err}
	}()

	var f fix
	select {
	case f = <-ch:
	case <-lctx.Done():
		f.err = lctx.Err()
	}

	if f.err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		b.logger.Warn("geolocation failed", zap.Error(f.err))
		switch {
		case errors.Is(f.err, context.DeadlineExceeded):
			return nil, NoticeLocateTimeout, f.err
		case fault.IsPermissionDenied(f.err):
			return nil, NoticeLocateDenied, f.err
		default:
			return nil, NoticeLocateFailed, f.err
		}
	}

	if err := f.loc.Validate(); err != nil {
		b.logger.Warn("geolocation out of range", zap.Error(err))
		return nil, NoticeLocateInvalid, err
	}
	f.loc.Address = record.Clean(f.loc.Address)
	return &f.loc, "", nil
}

func (b *Builder) nextID(created time.Time) (string, error) {
	for i := 0; i < b.idAttempts; i++ {
		id := b.ids.Generate(created)
		if b.registry.Claim(id) {
			return id, nil
		}
		b.logger.Debug("emergency id collision, redrawing", zap.String("emergency_id", id))
	}
	return "", fmt.Errorf("build: no unique emergency id after %d attempts", b.idAttempts)
}

// Discard releases a built record's id, for a record abandoned before it
// was encoded.
func (b *Builder) Discard(rec record.EmergencyRecord) {
	b.registry.Release(rec.EmergencyID)
}
