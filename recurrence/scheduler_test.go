package recurrence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invoicepro/invoice"
	"github.com/warp/invoicepro/invoice/store"
)

// recorder keeps every saved run snapshot in order.
type recorder struct {
	mu   sync.Mutex
	runs []invoice.GenerationRun
}

func (r *recorder) SaveGenerationRun(_ context.Context, run invoice.GenerationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

type unavailableStore struct {
	invoice.RecordStore
}

func (unavailableStore) Find(context.Context, invoice.Filter) ([]invoice.Invoice, error) {
	return nil, errors.New("database is locked")
}

// slowStore holds the first Find long enough for Stop to race it.
type slowStore struct {
	invoice.RecordStore
	delay   time.Duration
	once    sync.Once
	started chan struct{}
}

func (s *slowStore) Find(ctx context.Context, f invoice.Filter) ([]invoice.Invoice, error) {
	first := false
	s.once.Do(func() {
		first = true
		close(s.started)
	})
	if first {
		time.Sleep(s.delay)
	}
	return s.RecordStore.Find(ctx, f)
}

func (r *recorder) last() (invoice.GenerationRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return invoice.GenerationRun{}, false
	}
	return r.runs[len(r.runs)-1], true
}

func weekly(t *testing.T, s invoice.RecordStore) invoice.Invoice {
	t.Helper()
	end := invoice.MustParseDate("2024-02-01")
	stored, err := s.Insert(context.Background(), invoice.Invoice{
		Owner:              "user-1",
		ClientRef:          "client-1",
		InvoiceNumber:      "INV-7",
		OccurrenceDate:     invoice.MustParseDate("2024-01-01"),
		IsRecurring:        true,
		RecurringFrequency: invoice.FrequencyWeekly,
		RecurringEndDate:   &end,
	})
	require.NoError(t, err)
	return stored
}

func newTestScheduler(s invoice.RecordStore, rec RunRecorder, now time.Time) *Scheduler {
	sched := NewScheduler(NewDriver(s, zerolog.Nop()), rec, zerolog.Nop())
	sched.Location = time.UTC
	sched.Now = func() time.Time { return now }
	return sched
}

func TestScheduler_RunNowRecordsRun(t *testing.T) {
	// GIVEN: A due template
	mem := store.NewMemory()
	weekly(t, mem)
	rec := &recorder{}
	sched := newTestScheduler(mem, rec, time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC))

	// WHEN: Running manually
	summary, err := sched.RunNow(context.Background(), TriggerManual)

	// THEN: The occurrence is created and the run recorded twice (start, finish)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)

	require.Len(t, rec.runs, 2)
	assert.Equal(t, invoice.RunStatusRunning, rec.runs[0].Status)
	assert.Equal(t, rec.runs[0].ID, rec.runs[1].ID)

	final := rec.runs[1]
	assert.Equal(t, invoice.RunStatusCompleted, final.Status)
	assert.Equal(t, "manual", final.Trigger)
	assert.Equal(t, 1, final.Created)
	assert.Equal(t, []string{"INV-7-2024-01-08"}, final.Generated)
	assert.NotNil(t, final.CompletedAt)
}

func TestScheduler_RunNowSkipsWhileRunning(t *testing.T) {
	// GIVEN: A run holding the lock
	mem := store.NewMemory()
	weekly(t, mem)
	rec := &recorder{}
	sched := newTestScheduler(mem, rec, time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC))
	sched.running.Lock()

	// WHEN: Another trigger arrives
	_, err := sched.RunNow(context.Background(), TriggerScheduled)

	// THEN: It is skipped without touching the store
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, rec.runs)
	assert.Equal(t, 1, mem.Len())

	// AND: Once the lock is released, runs proceed
	sched.running.Unlock()
	_, err = sched.RunNow(context.Background(), TriggerScheduled)
	assert.NoError(t, err)
	assert.Equal(t, 2, mem.Len())
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	rec := &recorder{}
	sched := newTestScheduler(unavailableStore{RecordStore: store.NewMemory()}, rec, time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC))

	_, err := sched.RunNow(context.Background(), TriggerCLI)

	require.ErrorIs(t, err, invoice.ErrStoreUnavailable)
	require.Len(t, rec.runs, 2)
	assert.Equal(t, invoice.RunStatusFailed, rec.runs[1].Status)
	assert.Contains(t, rec.runs[1].Error, "database is locked")

	// The lock is released after a failed run
	assert.True(t, sched.running.TryLock())
	sched.running.Unlock()
}

func TestScheduler_NowUsesConfiguredLocation(t *testing.T) {
	// GIVEN: 03:00 UTC on Jan 8 is still Jan 7 in UTC-5
	mem := store.NewMemory()
	weekly(t, mem)
	sched := newTestScheduler(mem, nil, time.Date(2024, 1, 8, 3, 0, 0, 0, time.UTC))
	sched.Location = time.FixedZone("UTC-5", -5*60*60)

	// WHEN: Running
	summary, err := sched.RunNow(context.Background(), TriggerManual)

	// THEN: The Jan 8 occurrence is not due yet
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, "2024-01-07", sched.Today().String())
}

func TestScheduler_NextRunWithoutStart(t *testing.T) {
	sched := newTestScheduler(store.NewMemory(), nil, time.Date(2024, 1, 10, 3, 0, 0, 0, time.UTC))

	next := sched.NextRun()

	want := time.Date(2024, 1, 11, 2, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(next), next.String())
}

func TestScheduler_StartStop(t *testing.T) {
	// GIVEN: An enabled scheduler
	sched := newTestScheduler(store.NewMemory(), nil, time.Now())
	sched.Now = time.Now

	// WHEN: Starting
	require.NoError(t, sched.Start())
	require.NoError(t, sched.Start(), "second start is a no-op")

	// THEN: The next run is scheduled in the future
	next := sched.NextRun()
	assert.True(t, next.After(time.Now()))
	assert.Equal(t, 2, next.In(time.UTC).Hour())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, sched.Stop(ctx))
	assert.NoError(t, sched.Stop(ctx), "second stop is a no-op")
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	// GIVEN: A scheduler firing every second over a store whose first read is slow
	slow := &slowStore{RecordStore: store.NewMemory(), delay: 1500 * time.Millisecond, started: make(chan struct{})}
	rec := &recorder{}
	sched := newTestScheduler(slow, rec, time.Now())
	sched.Now = time.Now
	sched.Spec = "@every 1s"
	require.NoError(t, sched.Start())

	select {
	case <-slow.started:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run never started")
	}

	// WHEN: Stopping while the run is in flight
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := sched.Stop(ctx)

	// THEN: Stop returns only after the run finished and was recorded
	require.NoError(t, err)
	run, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, invoice.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, string(TriggerScheduled), run.Trigger)
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	sched := newTestScheduler(store.NewMemory(), nil, time.Now())
	sched.Enabled = false

	require.NoError(t, sched.Start())
	assert.Nil(t, sched.cron)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	sched := newTestScheduler(store.NewMemory(), nil, time.Now())
	sched.Spec = "not a cron spec"

	assert.Error(t, sched.Start())
}
