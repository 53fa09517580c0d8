package evo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"districtevo/internal/evalcache"
	"districtevo/internal/model"
	"districtevo/internal/oracle"
	"districtevo/internal/refdata"
)

// EvalStats counts what one evaluation batch did.
type EvalStats struct {
	Evaluations int
	CacheHits   int
	Penalized   int
}

// Evaluator assigns fitness to every candidate of pop whose fitness is not
// valid.
type Evaluator interface {
	Evaluate(ctx context.Context, pop []*model.Candidate) (EvalStats, error)
}

// Recorder receives run telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveEvaluation(strategy string, elapsed time.Duration, penalized, cached bool)
	ObserveGeneration(runID, strategy string, diag model.GenerationDiagnostics)
}

type noopRecorder struct{}

func (noopRecorder) ObserveEvaluation(string, time.Duration, bool, bool) {}

func (noopRecorder) ObserveGeneration(string, string, model.GenerationDiagnostics) {}

// ParallelEvaluator sends candidates to the oracle from a pool of workers.
// Every job carries its own deep copy; results are joined by index. Cache
// entries are keyed under CacheScope, so runs with different reference data
// or oracle settings never share objective vectors.
type ParallelEvaluator struct {
	Oracle     oracle.Oracle
	Strategy   oracle.Strategy
	Run        *oracle.RunContext
	Workers    int
	Limiter    *rate.Limiter
	Cache      evalcache.Cache
	CacheScope string
	Recorder   Recorder
	Log        *logrus.Logger
}

// isHardError reports evaluation errors that abort the run instead of being
// penalized.
func isHardError(err error) bool {
	return errors.Is(err, refdata.ErrMissingReference) ||
		errors.Is(err, oracle.ErrMissingBaseline) ||
		errors.Is(err, oracle.ErrUnknownStrategy) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (e *ParallelEvaluator) Evaluate(ctx context.Context, pop []*model.Candidate) (EvalStats, error) {
	type job struct {
		idx       int
		candidate *model.Candidate
	}
	type result struct {
		idx       int
		values    oracle.Vector
		penalized bool
		cached    bool
		err       error
	}

	pending := make([]int, 0, len(pop))
	for i, c := range pop {
		if !c.Fitness.Valid {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return EvalStats{}, nil
	}

	jobs := make(chan job)
	results := make(chan result, len(pending))

	workerCount := e.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCount > len(pending) {
		workerCount = len(pending)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				values, penalized, cached, err := e.evaluateOne(ctx, j.candidate)
				results <- result{idx: j.idx, values: values, penalized: penalized, cached: cached, err: err}
			}
		}()
	}

	for _, idx := range pending {
		jobs <- job{idx: idx, candidate: pop[idx].Clone()}
	}
	close(jobs)

	wg.Wait()
	close(results)

	stats := EvalStats{}
	var firstErr error
	directions := e.Strategy.Directions()
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		pop[res.idx].Fitness = model.NewFitness(res.values, directions)
		stats.Evaluations++
		if res.cached {
			stats.CacheHits++
		}
		if res.penalized {
			stats.Penalized++
		}
	}
	return stats, firstErr
}

func (e *ParallelEvaluator) evaluateOne(ctx context.Context, c *model.Candidate) (oracle.Vector, bool, bool, error) {
	start := time.Now()
	key := evalcache.Key(e.CacheScope, e.Strategy, c.Fingerprint())
	if e.Cache != nil {
		values, ok, err := e.Cache.Get(ctx, key)
		if err != nil {
			e.logger().WithError(err).Warn("evaluation cache lookup failed")
		} else if ok && len(values) == e.Strategy.Dimensions() {
			e.recorder().ObserveEvaluation(string(e.Strategy), time.Since(start), false, true)
			return values, false, true, nil
		}
	}

	if e.Limiter != nil {
		if err := e.Limiter.Wait(ctx); err != nil {
			return nil, false, false, err
		}
	}
	values, err := e.Oracle.Evaluate(ctx, c, e.Strategy, e.Run)
	if err == nil && len(values) != e.Strategy.Dimensions() {
		return nil, false, false, fmt.Errorf("oracle returned %d objective values for %s, want %d", len(values), e.Strategy, e.Strategy.Dimensions())
	}
	if err != nil {
		if isHardError(err) {
			return nil, false, false, fmt.Errorf("evaluate candidate %s: %w", c.ID, err)
		}
		e.logger().WithFields(logrus.Fields{
			"candidate": c.ID,
			"strategy":  e.Strategy,
		}).WithError(err).Warn("evaluation failed, assigning penalty")
		e.recorder().ObserveEvaluation(string(e.Strategy), time.Since(start), true, false)
		return e.Strategy.Penalty(), true, false, nil
	}

	if e.Cache != nil {
		if err := e.Cache.Put(ctx, key, values); err != nil {
			e.logger().WithError(err).Warn("evaluation cache store failed")
		}
	}
	e.recorder().ObserveEvaluation(string(e.Strategy), time.Since(start), false, false)
	return values, false, false, nil
}

func (e *ParallelEvaluator) logger() *logrus.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

func (e *ParallelEvaluator) recorder() Recorder {
	if e.Recorder != nil {
		return e.Recorder
	}
	return noopRecorder{}
}
