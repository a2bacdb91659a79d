package rastermath

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"rastermath/pkg/raster"
)

// BlockFunc is the user-supplied function applied to each block. It receives
// the batch of valid pixel vectors (rows = pixels, columns = stacked input
// bands) and must return a matrix with the same row count and as many columns
// as the operation's OutputSpec declares.
type BlockFunc func(batch *mat.Dense) (*mat.Dense, error)

// operation pairs a block function with its destination raster and spec.
type operation struct {
	fn   BlockFunc
	out  raster.Dataset
	spec OutputSpec
}

// job is one non-skip block handed to a worker: self-contained, no shared
// mutable state with other jobs.
type job struct {
	index     int
	window    Window
	batch     *mat.Dense
	positions []int
}

// result carries a completed job back to the controller, tagged with its
// originating block index.
type result struct {
	job
	outs []*mat.Dense
}

// applyOperations runs every registered operation on one batch, validating
// output shapes against the specs. A nil batch (all rows filtered out of a
// partial block) short-circuits to nil outputs, which the writer turns into
// all-nodata windows.
func applyOperations(ops []operation, jb job) (result, error) {
	res := result{job: jb, outs: make([]*mat.Dense, len(ops))}
	if jb.batch == nil {
		return res, nil
	}
	rows, _ := jb.batch.Dims()
	for k, op := range ops {
		out, err := op.fn(jb.batch)
		if err != nil {
			return result{}, &ComputeError{Block: jb.index, Window: jb.window, Err: err}
		}
		if out == nil {
			return result{}, &ComputeError{Block: jb.index, Window: jb.window,
				Err: fmt.Errorf("function returned nil output")}
		}
		gotRows, gotCols := out.Dims()
		if gotRows != rows {
			return result{}, &ComputeError{Block: jb.index, Window: jb.window,
				Err: fmt.Errorf("function returned %d rows, batch has %d", gotRows, rows)}
		}
		if gotCols != op.spec.Bands {
			return result{}, &ComputeError{Block: jb.index, Window: jb.window,
				Err: fmt.Errorf("function returned %d bands, output declares %d", gotCols, op.spec.Bands)}
		}
		res.outs[k] = out
	}
	return res, nil
}

// runParallel drives the worker-pool execution mode. A single producer reads
// blocks and feeds a fixed pool of workers; completed results flow back to
// the calling goroutine, which performs every raster write. The first error
// anywhere cancels outstanding work; blocks written before cancellation stay
// on disk.
func runParallel(
	ctx context.Context,
	workers int,
	produce func(context.Context, chan<- job) error,
	apply func(job) (result, error),
	write func(result) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)
	results := make(chan result)

	g.Go(func() error {
		defer close(jobs)
		return produce(gctx, jobs)
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for jb := range jobs {
				res, err := apply(jb)
				if err != nil {
					return err
				}
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var writeErr error
	for res := range results {
		if writeErr != nil {
			continue // drain so workers can exit
		}
		if err := write(res); err != nil {
			writeErr = err
			cancel()
		}
	}
	err := g.Wait()
	if writeErr != nil {
		return writeErr
	}
	return err
}

// sendJob delivers a job to the pool unless the run was cancelled.
func sendJob(ctx context.Context, jobs chan<- job, jb job) error {
	select {
	case jobs <- jb:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
