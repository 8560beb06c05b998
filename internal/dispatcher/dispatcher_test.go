package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/pipeline"
)

// fakeProcessor returns a scripted outcome per email and tracks how many
// workers overlap.
type fakeProcessor struct {
	outcomes map[string]pipeline.Outcome
	hold     time.Duration

	mu         sync.Mutex
	inFlight   int
	maxOverlap int
	processed  []string
}

func (f *fakeProcessor) Process(ctx context.Context, due models.DueFaculty) pipeline.Result {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxOverlap {
		f.maxOverlap = f.inFlight
	}
	f.processed = append(f.processed, due.Profile.Email)
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	outcome := pipeline.OutcomeSent
	if f.outcomes != nil {
		if o, ok := f.outcomes[due.Profile.Email]; ok {
			outcome = o
		}
	}
	return pipeline.Result{Email: due.Profile.Email, Outcome: outcome}
}

type panicProcessor struct {
	inner    *fakeProcessor
	panicFor string
}

func (p *panicProcessor) Process(ctx context.Context, due models.DueFaculty) pipeline.Result {
	if due.Profile.Email == p.panicFor {
		panic("worker exploded")
	}
	return p.inner.Process(ctx, due)
}

func dueSet(emails ...string) []models.DueFaculty {
	due := make([]models.DueFaculty, 0, len(emails))
	for _, email := range emails {
		due = append(due, models.DueFaculty{
			Profile:  models.FacultyProfile{Email: email, Active: true},
			Schedule: models.ScheduleRecord{FacultyEmail: email},
		})
	}
	return due
}

func TestChunkMath(t *testing.T) {
	batches := chunk(dueSet("a", "b", "c", "d", "e", "f", "g"), 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1)

	batches = chunk(dueSet("a", "b", "c", "d", "e"), 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 1)

	assert.Empty(t, chunk(nil, 5))
}

func TestDispatchCountersAddUp(t *testing.T) {
	proc := &fakeProcessor{outcomes: map[string]pipeline.Outcome{
		"a@x.edu": pipeline.OutcomeSent,
		"b@x.edu": pipeline.OutcomeFailed,
		"c@x.edu": pipeline.OutcomeSkipped,
		"d@x.edu": pipeline.OutcomeSent,
		"e@x.edu": pipeline.OutcomeFailed,
	}}
	d := New(proc, nil, Config{BatchSize: 2})

	summary := d.Dispatch(context.Background(), dueSet("a@x.edu", "b@x.edu", "c@x.edu", "d@x.edu", "e@x.edu"))

	assert.Equal(t, 5, summary.Due)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 5, summary.Processed())
	assert.Len(t, proc.processed, 5)
}

func TestDispatchBoundsConcurrencyToBatchSize(t *testing.T) {
	proc := &fakeProcessor{hold: 20 * time.Millisecond}
	d := New(proc, nil, Config{BatchSize: 2})

	summary := d.Dispatch(context.Background(), dueSet("a", "b", "c", "d", "e"))

	assert.Equal(t, 5, summary.Processed())
	assert.LessOrEqual(t, proc.maxOverlap, 2, "no more than batch-size workers may overlap")
}

func TestDispatchInterBatchDelay(t *testing.T) {
	proc := &fakeProcessor{}
	d := New(proc, nil, Config{BatchSize: 2, BatchDelay: 10 * time.Second})

	var slept []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}

	d.Dispatch(context.Background(), dueSet("a", "b", "c", "d", "e"))

	// 3 batches, a delay between each pair but not after the last.
	require.Len(t, slept, 2)
	assert.Equal(t, 10*time.Second, slept[0])
}

func TestDispatchStaggersLaunches(t *testing.T) {
	proc := &fakeProcessor{}
	d := New(proc, nil, Config{BatchSize: 3, StaggerDelay: time.Hour})

	var paced int32
	d.pace = func(ctx context.Context) error {
		atomic.AddInt32(&paced, 1)
		return nil
	}

	d.Dispatch(context.Background(), dueSet("a", "b", "c"))

	assert.Equal(t, int32(3), atomic.LoadInt32(&paced), "every launch must pass through the pacer")
}

func TestDispatchWorkerPanicCountedFailed(t *testing.T) {
	inner := &fakeProcessor{}
	proc := &panicProcessor{inner: inner, panicFor: "boom@x.edu"}
	d := New(proc, nil, Config{BatchSize: 3})

	summary := d.Dispatch(context.Background(), dueSet("a@x.edu", "boom@x.edu", "c@x.edu"))

	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Failed, "a panicking worker is absorbed as a failure")
	assert.Equal(t, 3, summary.Processed())
}

func TestDispatchCancelStopsNewLaunches(t *testing.T) {
	proc := &fakeProcessor{}
	d := New(proc, nil, Config{BatchSize: 1})

	ctx, cancel := context.WithCancel(context.Background())

	var launches int32
	d.pace = func(ctx context.Context) error {
		if n := atomic.AddInt32(&launches, 1); n > 2 {
			return context.Canceled
		}
		return ctx.Err()
	}
	d.sleep = func(ctx context.Context, dur time.Duration) error { return nil }

	summary := d.Dispatch(ctx, dueSet("a", "b", "c", "d", "e"))
	cancel()

	assert.Equal(t, 5, summary.Due)
	assert.Equal(t, 2, summary.Processed(), "launches after the cancel point must not happen")
	assert.Len(t, proc.processed, 2)
}

func TestDispatchEmptyDueSet(t *testing.T) {
	d := New(&fakeProcessor{}, nil, Config{BatchSize: 5})
	summary := d.Dispatch(context.Background(), nil)
	assert.Equal(t, 0, summary.Due)
	assert.Equal(t, 0, summary.Processed())
}
