package main

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
)

// loadFunc fetches one cluster by ID.
type loadFunc func(ctx context.Context, id int64) (*model.Cluster, error)

// emitFunc receives cluster outcomes in the order of the input IDs.
type emitFunc func(ctx context.Context, o outcome) error

// outcome is the result of processing one cluster. Exactly one of Result
// and Err is set.
type outcome struct {
	ClusterID int64
	Result    *interpolate.Result
	Err       error
}

// batchOptions bounds the cluster fan-out.
type batchOptions struct {
	Concurrency int
	Timeout     time.Duration // per cluster, covering load and process; 0 = none
	Limiter     *rate.Limiter // paces cluster loads; nil = unlimited
}

// newLimiter returns a limiter for perSecond cluster loads, or nil when
// perSecond is not positive.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
}

// processClusters loads and processes every cluster in ids concurrently and
// hands the outcomes to emit in input order. A failed cluster is reported to
// emit and does not stop the batch; an emit error or a cancelled ctx does.
func processClusters(ctx context.Context, ids []int64, opts batchOptions, engine *interpolate.Engine, load loadFunc, emit emitFunc) (model.RunStats, error) {
	stats := model.RunStats{Clusters: len(ids)}
	if len(ids) == 0 {
		zap.L().Info("no clusters to process")
		return stats, nil
	}

	zap.L().Info("processing clusters",
		zap.Int("clusters", len(ids)),
		zap.Int("concurrency", opts.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))

	seq := &sequencer{pending: make(map[int]outcome), emit: emit, stats: &stats}

	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(gctx); err != nil {
					return eris.Wrap(err, "batch: rate limit")
				}
			}
			o := processOne(gctx, id, opts.Timeout, engine, load)
			if o.Err != nil {
				if ctx.Err() != nil {
					return eris.Wrap(ctx.Err(), "batch: cancelled")
				}
				zap.L().Warn("cluster failed", zap.Int64("cluster_id", id), zap.Error(o.Err))
			}
			return seq.done(gctx, i, o)
		})
	}

	if err := g.Wait(); err != nil {
		return stats, eris.Wrap(err, "batch processing")
	}
	if err := ctx.Err(); err != nil {
		return stats, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("features", stats.Features),
	)
	return stats, nil
}

// processOne runs load and process for one cluster under its own deadline.
func processOne(ctx context.Context, id int64, timeout time.Duration, engine *interpolate.Engine, load loadFunc) outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c, err := load(ctx, id)
	if err != nil {
		return outcome{ClusterID: id, Err: eris.Wrapf(err, "batch: load cluster %d", id)}
	}

	type processed struct {
		res *interpolate.Result
		err error
	}
	ch := make(chan processed, 1)
	go func() {
		res, err := engine.Process(c)
		ch <- processed{res, err}
	}()

	select {
	case <-ctx.Done():
		return outcome{ClusterID: id, Err: eris.Wrapf(ctx.Err(), "batch: process cluster %d", id)}
	case p := <-ch:
		if p.err != nil {
			return outcome{ClusterID: id, Err: p.err}
		}
		return outcome{ClusterID: id, Result: p.res}
	}
}

// sequencer releases outcomes to emit in input order as they complete.
type sequencer struct {
	mu      sync.Mutex
	next    int
	pending map[int]outcome
	emit    emitFunc
	stats   *model.RunStats
}

func (s *sequencer) done(ctx context.Context, i int, o outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[i] = o
	for {
		ready, ok := s.pending[s.next]
		if !ok {
			return nil
		}
		delete(s.pending, s.next)
		s.next++

		if ready.Err != nil {
			s.stats.Failed++
		} else {
			s.stats.Succeeded++
			s.stats.Features += len(ready.Result.Features)
		}
		if s.emit != nil {
			if err := s.emit(ctx, ready); err != nil {
				return err
			}
		}
	}
}
