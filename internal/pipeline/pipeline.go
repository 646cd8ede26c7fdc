// Package pipeline drives the extract, transform, load and checkpoint cycle.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/moviesync/internal/index"
	"github.com/kalambet/moviesync/internal/retry"
	"github.com/kalambet/moviesync/internal/source"
	"github.com/kalambet/moviesync/internal/transform"
)

const (
	defaultPollInterval    = 30 * time.Second
	defaultDrainTimeout    = 30 * time.Second
	defaultMaxCycleRetries = 3
)

// Checkpointer persists the watermark between cycles.
type Checkpointer interface {
	Get(ctx context.Context, key string) string
	Set(ctx context.Context, key, value string) error
}

// Extractor returns titles changed after a watermark.
type Extractor interface {
	Extract(ctx context.Context, watermark string) ([]source.ChangeRecord, error)
}

// Transformer turns change records into index documents.
type Transformer interface {
	Transform(ctx context.Context, indexName string, records []source.ChangeRecord) transform.Result
}

// Config tunes the driver. Zero durations and names select defaults.
type Config struct {
	StateKey  string
	IndexName string
	// PollInterval is the sleep after a drain ends with an empty batch.
	PollInterval time.Duration
	// MaxCycleRetries bounds retries of consecutive failed cycles before Run
	// gives up. Zero disables retries; negative selects the default.
	MaxCycleRetries int
	// DrainTimeout bounds the in-flight cycle after shutdown is requested.
	DrainTimeout time.Duration
	// Backoff spaces retries of failed cycles.
	Backoff retry.Policy
}

func (c Config) withDefaults() Config {
	if c.StateKey == "" {
		c.StateKey = "updated_at"
	}
	if c.IndexName == "" {
		c.IndexName = "movies"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxCycleRetries < 0 {
		c.MaxCycleRetries = defaultMaxCycleRetries
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff = retry.Policy{Attempts: 1, Initial: time.Second, Max: 30 * time.Second}
	}
	return c
}

// Driver runs cycles one at a time. A cycle never overlaps another.
type Driver struct {
	cfg         Config
	state       Checkpointer
	extractor   Extractor
	transformer Transformer
	loader      index.Loader
	stats       *Stats
	logger      *slog.Logger
}

// New assembles a Driver. If logger is nil, slog.Default is used.
func New(cfg Config, state Checkpointer, extractor Extractor, transformer Transformer, loader index.Loader, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:         cfg.withDefaults(),
		state:       state,
		extractor:   extractor,
		transformer: transformer,
		loader:      loader,
		stats:       &Stats{},
		logger:      logger,
	}
}

// Stats returns the live counters.
func (d *Driver) Stats() *Stats { return d.stats }

// RunOnce runs a single cycle. It reports false when there was nothing to
// load. The watermark is persisted only after the load returned without a
// fatal error and never moves backwards.
func (d *Driver) RunOnce(ctx context.Context) (bool, error) {
	d.stats.cycles.Add(1)

	watermark := d.state.Get(ctx, d.cfg.StateKey)
	d.stats.setWatermark(watermark)

	records, err := d.extractor.Extract(ctx, watermark)
	if err != nil {
		return false, fmt.Errorf("extracting changes after %s: %w", watermark, err)
	}
	if len(records) == 0 {
		return false, nil
	}
	d.stats.extracted.Add(int64(len(records)))

	res := d.transformer.Transform(ctx, d.cfg.IndexName, records)
	d.stats.transformed.Add(int64(len(res.Documents)))
	d.stats.skipped.Add(int64(len(res.Skipped)))

	var loaded index.BulkResult
	if len(res.Documents) > 0 {
		loaded, err = d.loader.Bulk(ctx, res.Actions())
		if err != nil {
			return false, fmt.Errorf("loading %d documents: %w", len(res.Documents), err)
		}
	}
	d.stats.loaded.Add(int64(loaded.Indexed))
	d.stats.loadFailures.Add(int64(len(loaded.Failed)))

	next := source.LaterChangeTime(watermark, res.MaxUpdatedAt)
	if next == watermark {
		d.logger.WarnContext(ctx, "batch did not advance watermark", "watermark", watermark, "records", len(records))
		return false, nil
	}
	if err := d.state.Set(ctx, d.cfg.StateKey, next); err != nil {
		return false, fmt.Errorf("saving watermark %s: %w", next, err)
	}
	d.stats.recordBatch(next, time.Now())

	d.logger.InfoContext(ctx, "batch loaded",
		"watermark", next,
		"extracted", len(records),
		"skipped", len(res.Skipped),
		"loaded", loaded.Indexed,
		"failed", len(loaded.Failed))
	return true, nil
}

// Drain runs cycles back to back until one finds nothing to load.
func (d *Driver) Drain(ctx context.Context) error {
	return d.drain(ctx, ctx)
}

// drain checks stop between cycles and runs each cycle on work.
func (d *Driver) drain(stop, work context.Context) error {
	for stop.Err() == nil {
		more, err := d.RunOnce(work)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// Run drains and sleeps until ctx is cancelled. Cancellation takes effect
// between cycles: the cycle in flight continues on a detached context for up
// to DrainTimeout. Run returns an error only when MaxCycleRetries
// consecutive retries of a failing cycle are exhausted.
func (d *Driver) Run(ctx context.Context) error {
	work, release := d.drainContext(ctx)
	defer release()

	failures := 0
	for ctx.Err() == nil {
		err := d.drain(ctx, work)
		if ctx.Err() != nil {
			if err != nil {
				d.logger.Error("cycle interrupted by shutdown", "error", err)
			}
			break
		}

		if err == nil {
			failures = 0
			d.logger.Debug("no pending changes, sleeping", "interval", d.cfg.PollInterval)
			if !sleep(ctx, d.cfg.PollInterval) {
				break
			}
			continue
		}

		d.stats.recordError(err)
		if failures >= d.cfg.MaxCycleRetries {
			return fmt.Errorf("cycle failed %d times in a row: %w", failures+1, err)
		}
		wait := d.cfg.Backoff.Backoff(failures)
		failures++
		d.logger.Error("cycle failed, retrying", "attempt", failures, "retry_in", wait, "error", err)
		if !sleep(ctx, wait) {
			break
		}
	}

	d.logger.Info("pipeline stopped", "stats", d.stats)
	return nil
}

// drainContext returns a context detached from ctx that is cancelled
// DrainTimeout after ctx is, or when release is called.
func (d *Driver) drainContext(ctx context.Context) (context.Context, func()) {
	work, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			timer := time.NewTimer(d.cfg.DrainTimeout)
			defer timer.Stop()
			select {
			case <-timer.C:
				cancel(fmt.Errorf("drain timeout expired after %v", d.cfg.DrainTimeout))
			case <-done:
				cancel(nil)
			}
		case <-done:
			cancel(nil)
		}
	}()

	return work, func() { close(done) }
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
