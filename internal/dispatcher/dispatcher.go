package dispatcher

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"rfp-digest-go/internal/metrics"
	"rfp-digest-go/internal/models"
	"rfp-digest-go/internal/pipeline"
)

// Processor is the unit of work the dispatcher fans out; satisfied by
// pipeline.Pipeline.
type Processor interface {
	Process(ctx context.Context, due models.DueFaculty) pipeline.Result
}

// Config holds the batch sizing and pacing knobs. Stagger spaces launches
// inside a batch so the generation API is not hit by a burst; BatchDelay
// separates whole batches.
type Config struct {
	BatchSize    int
	StaggerDelay time.Duration
	BatchDelay   time.Duration
}

// Summary aggregates the terminal outcomes of one dispatch run.
type Summary struct {
	Due     int
	Sent    int
	Failed  int
	Skipped int
	Elapsed time.Duration
}

// Processed is how many records reached a terminal outcome.
func (s Summary) Processed() int {
	return s.Sent + s.Failed + s.Skipped
}

// Dispatcher partitions a due set into batches and runs each batch with one
// worker per record. A worker failure or panic is absorbed into the failed
// count; nothing a single faculty does can abort the run.
type Dispatcher struct {
	processor Processor
	metrics   *metrics.Metrics
	cfg       Config

	// pace blocks until the next launch slot; sleep is the inter-batch
	// delay. Both injectable so pacing is testable without wall-clock
	// time.
	pace  func(ctx context.Context) error
	sleep func(ctx context.Context, d time.Duration) error
}

func New(processor Processor, m *metrics.Metrics, cfg Config) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	d := &Dispatcher{
		processor: processor,
		metrics:   m,
		cfg:       cfg,
		sleep:     sleepCtx,
	}

	if cfg.StaggerDelay > 0 {
		limiter := rate.NewLimiter(rate.Every(cfg.StaggerDelay), 1)
		d.pace = limiter.Wait
	} else {
		d.pace = func(ctx context.Context) error { return ctx.Err() }
	}
	return d
}

// Dispatch processes the due set and returns the aggregate outcome counts.
// Batches run in selection order. A cancelled context stops new launches
// but lets in-flight workers run to their terminal state, so no schedule is
// left claimed mid-pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, due []models.DueFaculty) Summary {
	start := time.Now()
	summary := Summary{Due: len(due)}

	if len(due) == 0 {
		logrus.Info("No faculty due for digests")
		return summary
	}

	batches := chunk(due, d.cfg.BatchSize)
	logrus.Infof("Dispatching %d due faculty in %d batches of up to %d", len(due), len(batches), d.cfg.BatchSize)

	// Workers keep running after a cancel; only launching stops.
	workCtx := context.WithoutCancel(ctx)

	var mu sync.Mutex
	for i, batch := range batches {
		logrus.Infof("Processing batch %d/%d (%d faculty)", i+1, len(batches), len(batch))

		var wg sync.WaitGroup
		for _, record := range batch {
			if err := d.pace(ctx); err != nil {
				logrus.Warnf("Dispatch interrupted, waiting for in-flight workers: %v", err)
				wg.Wait()
				summary.Elapsed = time.Since(start)
				return summary
			}

			wg.Add(1)
			go func(record models.DueFaculty) {
				defer wg.Done()
				result := d.runOne(workCtx, record)

				mu.Lock()
				switch result.Outcome {
				case pipeline.OutcomeSent:
					summary.Sent++
				case pipeline.OutcomeSkipped:
					summary.Skipped++
				default:
					summary.Failed++
				}
				mu.Unlock()

				d.observe(result)
			}(record)
		}
		wg.Wait()

		if i < len(batches)-1 && d.cfg.BatchDelay > 0 {
			logrus.Infof("Waiting %v before next batch", d.cfg.BatchDelay)
			if err := d.sleep(ctx, d.cfg.BatchDelay); err != nil {
				logrus.Warnf("Dispatch interrupted between batches: %v", err)
				summary.Elapsed = time.Since(start)
				return summary
			}
		}
	}

	summary.Elapsed = time.Since(start)
	logrus.Infof("Dispatch complete: %d sent, %d failed, %d skipped of %d due in %v",
		summary.Sent, summary.Failed, summary.Skipped, summary.Due, summary.Elapsed)
	return summary
}

// runOne shields the batch from a worker panic.
func (d *Dispatcher) runOne(ctx context.Context, record models.DueFaculty) (result pipeline.Result) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Pipeline panic for %s: %v\n%s", record.Profile.Email, r, debug.Stack())
			result = pipeline.Result{Email: record.Profile.Email, Outcome: pipeline.OutcomeFailed}
		}
	}()
	return d.processor.Process(ctx, record)
}

func (d *Dispatcher) observe(result pipeline.Result) {
	if d.metrics == nil {
		return
	}
	switch result.Outcome {
	case pipeline.OutcomeSent:
		d.metrics.DigestsSent.Inc()
	case pipeline.OutcomeSkipped:
		d.metrics.DigestsSkipped.Inc()
	default:
		d.metrics.DigestsFailed.Inc()
	}
	if result.TokensUsed > 0 {
		d.metrics.GenerationTokens.Add(float64(result.TokensUsed))
	}
	if result.Elapsed > 0 {
		d.metrics.ProcessingTime.Observe(result.Elapsed.Seconds())
	}
}

// chunk splits the due set into consecutive batches of at most size.
func chunk(due []models.DueFaculty, size int) [][]models.DueFaculty {
	var batches [][]models.DueFaculty
	for start := 0; start < len(due); start += size {
		end := start + size
		if end > len(due) {
			end = len(due)
		}
		batches = append(batches, due[start:end])
	}
	return batches
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
