package builder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/record"
	"github.com/roach88/lifeline/internal/testutil"
)

var testStart = time.Date(2026, 10, 16, 9, 30, 0, 987654321, time.UTC)

func scenarioProfile() record.Profile {
	return record.Profile{
		SubjectID:   "patient-42",
		BloodType:   record.BloodOPos,
		Allergies:   []string{"Penicillin"},
		Conditions:  []string{},
		Medications: []string{},
	}
}

func TestBuildScenarioEmptyConditions(t *testing.T) {
	b := New(Options{
		Clock:   testutil.NewManualClock(testStart),
		Locator: FixedLocator{Loc: record.NewLocation(40.7128, -74.006, "")},
	})

	res, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)

	ms := res.Record.MedicalSummary
	require.NotNil(t, ms.Conditions)
	assert.Equal(t, []string{}, ms.Conditions)
	assert.Equal(t, []string{"Penicillin"}, ms.Allergies)
	assert.Equal(t, record.BloodOPos, ms.BloodType)
	assert.Empty(t, res.Notice)
	require.NoError(t, res.Record.Validate())
}

func TestBuildCanonicalizesProfileAndFix(t *testing.T) {
	loc := record.NewLocation(40.7128, -74.006, "")
	loc.Address = "  12 Main St \n"
	b := New(Options{
		Clock:   testutil.NewManualClock(testStart),
		Locator: FixedLocator{Loc: loc},
	})

	p := scenarioProfile()
	p.BloodType = " o+ "
	p.EmergencyContact = &record.EmergencyContact{Name: "  ", Phone: " ", Relationship: ""}

	res, err := b.Build(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, record.BloodOPos, res.Record.MedicalSummary.BloodType)
	assert.Nil(t, res.Record.MedicalSummary.EmergencyContact)
	require.NotNil(t, res.Record.Location)
	assert.Equal(t, "12 Main St", res.Record.Location.Address)
	require.NoError(t, res.Record.Validate())
}

func TestBuildStampsTimes(t *testing.T) {
	b := New(Options{Clock: testutil.NewManualClock(testStart), TTL: 90 * time.Minute})

	res, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)

	want := testStart.Truncate(time.Millisecond)
	assert.Equal(t, want, res.Record.CreatedAt)
	assert.Equal(t, want.Add(90*time.Minute), res.Record.ExpiresAt)
	assert.Equal(t, "patient-42", res.Record.SubjectID)
}

func TestBuildDefaultTTLAndNoExpiry(t *testing.T) {
	res, err := New(Options{Clock: testutil.NewManualClock(testStart)}).Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, res.Record.ExpiresAt.Sub(res.Record.CreatedAt))

	res, err = New(Options{Clock: testutil.NewManualClock(testStart), TTL: -1}).Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	assert.False(t, res.Record.HasExpiry())
}

func TestBuildGeolocationTimeoutYieldsNilLocation(t *testing.T) {
	locator := testutil.NewBlockingLocator()
	b := New(Options{
		Clock:         testutil.NewManualClock(testStart),
		Locator:       locator,
		LocateTimeout: 20 * time.Millisecond,
	})

	res, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	assert.Nil(t, res.Record.Location)
	assert.Equal(t, NoticeLocateTimeout, res.Notice)
	assert.ErrorIs(t, res.LocateErr, context.DeadlineExceeded)
}

func TestBuildLocatorIgnoringContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stubborn := LocatorFunc(func(context.Context) (record.Location, error) {
		<-release
		return record.Location{}, nil
	})

	b := New(Options{Locator: stubborn, LocateTimeout: 20 * time.Millisecond})
	res, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	assert.Nil(t, res.Record.Location)
	assert.Equal(t, NoticeLocateTimeout, res.Notice)
}

func TestBuildPermissionDenied(t *testing.T) {
	denied := testutil.StaticLocator{Err: fault.New(fault.KindPermissionDenied, "geolocation", "user denied")}
	res, err := New(Options{Locator: denied}).Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	assert.Nil(t, res.Record.Location)
	assert.Equal(t, NoticeLocateDenied, res.Notice)
	assert.True(t, fault.IsPermissionDenied(res.LocateErr))
}

func TestBuildNoLocator(t *testing.T) {
	res, err := New(Options{}).Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	assert.Nil(t, res.Record.Location)
	assert.Equal(t, NoticeNoLocator, res.Notice)
}

func TestBuildDiscardsOutOfRangeFix(t *testing.T) {
	bad := FixedLocator{Loc: record.NewLocation(123, 0, "")}
	res, err := New(Options{Locator: bad}).Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	assert.Nil(t, res.Record.Location)
	assert.Equal(t, NoticeLocateInvalid, res.Notice)
}

func TestBuildCancelledContextAbandonsFix(t *testing.T) {
	locator := testutil.NewBlockingLocator()
	b := New(Options{Locator: locator, LocateTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-locator.Started
		cancel()
	}()

	res, err := b.Build(ctx, scenarioProfile())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestBuildInvalidProfile(t *testing.T) {
	_, err := New(Options{}).Build(context.Background(), record.Profile{})
	assert.Error(t, err)
}

func TestBuildUniqueIDsAcrossTenThousand(t *testing.T) {
	// A pinned clock puts every id in the same second, so uniqueness rests
	// entirely on the random suffix and the registry.
	b := New(Options{Clock: testutil.NewManualClock(testStart)})
	seen := make(map[string]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		res, err := b.Build(context.Background(), scenarioProfile())
		require.NoError(t, err)
		id := res.Record.EmergencyID
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s at build %d", id, i)
		seen[id] = struct{}{}
	}
}

func TestBuildRedrawsOnCollision(t *testing.T) {
	ids := testutil.NewFixedIDGenerator("EMG-A", "EMG-A", "EMG-B")
	b := New(Options{IDs: ids})

	first, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	second, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)

	assert.Equal(t, "EMG-A", first.Record.EmergencyID)
	assert.Equal(t, "EMG-B", second.Record.EmergencyID)
	assert.Equal(t, 3, ids.Calls())
}

func TestBuildGivesUpAfterAttempts(t *testing.T) {
	ids := testutil.NewFixedIDGenerator("EMG-A", "EMG-A", "EMG-A")
	b := New(Options{IDs: ids, IDAttempts: 2})

	_, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	_, err = b.Build(context.Background(), scenarioProfile())
	assert.Error(t, err)
}

func TestDiscardReleasesID(t *testing.T) {
	ids := testutil.NewFixedIDGenerator("EMG-A", "EMG-A")
	b := New(Options{IDs: ids})

	first, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	b.Discard(first.Record)

	second, err := b.Build(context.Background(), scenarioProfile())
	require.NoError(t, err)
	assert.Equal(t, "EMG-A", second.Record.EmergencyID)
}
