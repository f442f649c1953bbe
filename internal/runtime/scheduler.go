package runtime

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Options configures one scheduler Run — spec.md §5's worker-pool/batch/retry knobs.
type Options struct {
	// Workers is the number of concurrent worker goroutines. 0 picks
	// runtime.NumCPU(), matching the teacher's Config.Concurrency default.
	Workers int
	// BatchSize is the job-channel buffer depth; spec.md §5 recommends 64-256.
	BatchSize int
	// RequiresOrder forces output to be replayed to Visit in input order,
	// via the reassembly stage (bounded window, spilling to disk beyond it).
	RequiresOrder bool
	// ReorderWindow bounds the in-memory reassembly buffer, in items;
	// spec.md §5 recommends 2 × workers × batch_size.
	ReorderWindow int
	// MaxRetries bounds per-tile exponential-backoff retry of retryable errors.
	MaxRetries int
	// Bus receives step/progress/warning/error/complete events. May be nil.
	Bus *Bus
}

func (o Options) normalized() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 128
	}
	if o.ReorderWindow <= 0 {
		o.ReorderWindow = 2 * o.Workers * o.BatchSize
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return o
}

// VisitFunc consumes one resolved tile, in whatever order the scheduler
// delivers it (input order, if Options.RequiresOrder is set).
type VisitFunc func(ctx context.Context, c coord.TileCoord, data blob.Blob, ok bool) error

// job is one unit of work: a coordinate plus its position in the overall
// enumeration order (used by the reassembly stage).
type job struct {
	seq   int64
	coord coord.TileCoord
}

// jobResult is a completed job, ready for delivery to Visit.
type jobResult struct {
	seq  int64
	c    coord.TileCoord
	data blob.Blob
	ok   bool
}

// Run drives reader across every coordinate in pyramid through a bounded
// worker pool, delivering each resolved tile to visit. It mirrors the
// teacher's Generate loop (jobs channel + sync.WaitGroup + errCh) but
// generalized to arbitrary readers/visitors, cancellation, and (optionally)
// ordered delivery — spec.md §5. Run does not coalesce requests; that is
// Coalescer's job.
//
// The first fatal error cancels the run: in-flight workers stop consuming,
// the function returns that error, and any partial writer output is the
// caller's responsibility to clean up (via Writer.Abort).
func Run(ctx context.Context, reader source.Reader, pyramid *coord.TileBBoxPyramid, opts Options, visit VisitFunc) error {
	opts = opts.normalized()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := pyramid.Count()
	var tracker *Tracker
	if opts.Bus != nil {
		tracker = NewTracker(opts.Bus, total)
	}

	jobs := make(chan job, opts.BatchSize)
	results := make(chan jobResult, opts.BatchSize)

	// producers groups the enumeration goroutine and the worker pool: once
	// all of them return, results is closed so the consumer's range loop
	// terminates. It shares gctx with the consumer group below so an error
	// on either side cancels both.
	producers, gctx := errgroup.WithContext(ctx)
	consumer, _ := errgroup.WithContext(gctx)

	// Producer: enumerate the pyramid in (level asc, row asc, col asc) order.
	producers.Go(func() error {
		defer close(jobs)
		var seq int64
		for _, level := range pyramid.Levels() {
			bbox := pyramid.Get(level)
			var sendErr error
			bbox.Each(func(x, y uint32) {
				if sendErr != nil {
					return
				}
				select {
				case jobs <- job{seq: seq, coord: coord.TileCoord{Z: level, X: x, Y: y}}:
					seq++
				case <-gctx.Done():
					sendErr = gctx.Err()
				}
			})
			if sendErr != nil {
				return sendErr
			}
		}
		return nil
	})

	// Workers: resolve tiles, emitting results for the consumer below.
	for w := 0; w < opts.Workers; w++ {
		producers.Go(func() error {
			for j := range jobs {
				data, ok, err := fetchWithRetry(gctx, reader, j.coord, opts.MaxRetries)
				if err != nil {
					if xerrors.Is(err, xerrors.Cancelled) {
						return err
					}
					// Partial-failure semantics (spec.md §7): log a warning
					// and emit "no tile" instead of failing the whole run.
					if opts.Bus != nil {
						opts.Bus.Warning(fmt.Sprintf("tile %d/%d/%d: %v", j.coord.Z, j.coord.X, j.coord.Y, err))
					}
					ok, data = false, blob.Blob{}
				}
				select {
				case results <- jobResult{seq: j.seq, c: j.coord, data: data, ok: ok}:
				case <-gctx.Done():
					return gctx.Err()
				}
				if tracker != nil {
					tracker.Increment(1)
				}
			}
			return nil
		})
	}

	go func() {
		_ = producers.Wait()
		close(results)
	}()

	// Consumer: either deliver results as they arrive, or reassemble them
	// into input order first.
	consumer.Go(func() error {
		if !opts.RequiresOrder {
			for r := range results {
				if err := visit(gctx, r.c, r.data, r.ok); err != nil {
					cancel()
					return err
				}
			}
			return nil
		}
		return reassemble(gctx, results, opts.ReorderWindow, func(r jobResult) error {
			return visit(gctx, r.c, r.data, r.ok)
		})
	})

	consumerErr := consumer.Wait()
	producerErr := producers.Wait()
	err := consumerErr
	if err == nil {
		err = producerErr
	}

	if opts.Bus != nil {
		if err != nil && !xerrors.Is(err, xerrors.Cancelled) {
			opts.Bus.Error(err)
		} else {
			opts.Bus.Complete()
		}
	}
	return err
}

// fetchWithRetry wraps reader.GetTile with exponential backoff for the
// retryable error kinds (spec.md §7: Io transient subset, Timeout).
func fetchWithRetry(ctx context.Context, reader source.Reader, c coord.TileCoord, maxRetries int) (blob.Blob, bool, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		data, ok, err := reader.GetTile(ctx, c)
		if err == nil {
			return data, ok, nil
		}
		lastErr = err
		if !isRetryableErr(err) || attempt == maxRetries {
			break
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * 50 * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return blob.Blob{}, false, xerrors.Wrap(xerrors.Cancelled, "fetch", ctx.Err())
		}
	}
	return blob.Blob{}, false, lastErr
}

func isRetryableErr(err error) bool {
	return xerrors.Is(err, xerrors.Io) || xerrors.Is(err, xerrors.Timeout)
}
