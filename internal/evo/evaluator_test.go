package evo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"districtevo/internal/evalcache"
	"districtevo/internal/model"
	"districtevo/internal/oracle"
)

func indexedPopulation(n int) []*model.Candidate {
	pop := make([]*model.Candidate, n)
	for i := range pop {
		c := boilerDistrict(2)
		c.Set(1, model.Boiler, float64(10000+i*1000))
		c.ID = fmt.Sprintf("c%d", i)
		pop[i] = c
	}
	return pop
}

func indexOracle(calls *int64) oracle.Func {
	return func(_ context.Context, c *model.Candidate, _ oracle.Strategy, _ *oracle.RunContext) (oracle.Vector, error) {
		atomic.AddInt64(calls, 1)
		i, err := strconv.Atoi(strings.TrimPrefix(c.ID, "c"))
		if err != nil {
			return nil, err
		}
		return oracle.Vector{float64(i), float64(100 - i)}, nil
	}
}

func TestParallelEvaluatorJoinsResultsByIndex(t *testing.T) {
	var calls int64
	pop := indexedPopulation(25)
	pop[3].Fitness = model.NewFitness([]float64{-1, -1}, oracle.RefAnnCO2.Directions())
	e := &ParallelEvaluator{Oracle: indexOracle(&calls), Strategy: oracle.RefAnnCO2, Workers: 4}

	stats, err := e.Evaluate(context.Background(), pop)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if stats.Evaluations != 24 || calls != 24 {
		t.Fatalf("expected 24 evaluations, got stats=%+v calls=%d", stats, calls)
	}
	for i, c := range pop {
		if i == 3 {
			if c.Fitness.Values[0] != -1 {
				t.Fatal("valid fitness was re-evaluated")
			}
			continue
		}
		if !c.Fitness.Valid || c.Fitness.Values[0] != float64(i) {
			t.Fatalf("candidate %d got %+v", i, c.Fitness)
		}
	}
}

func TestParallelEvaluatorPenalizesFailures(t *testing.T) {
	log, hook := test.NewNullLogger()
	failing := oracle.Func(func(_ context.Context, c *model.Candidate, _ oracle.Strategy, _ *oracle.RunContext) (oracle.Vector, error) {
		if c.ID == "c1" {
			return nil, fmt.Errorf("%w: no boiler", oracle.ErrInfeasibleSupply)
		}
		return oracle.Vector{1, 1}, nil
	})
	e := &ParallelEvaluator{Oracle: failing, Strategy: oracle.RefAnnCO2, Workers: 2, Log: log}
	pop := indexedPopulation(3)

	stats, err := e.Evaluate(context.Background(), pop)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if stats.Penalized != 1 || !oracle.RefAnnCO2.IsPenalty(pop[1].Fitness.Values) {
		t.Fatalf("expected c1 penalized, stats=%+v fitness=%+v", stats, pop[1].Fitness)
	}
	if len(hook.AllEntries()) != 1 {
		t.Fatalf("expected one warning, got %d", len(hook.AllEntries()))
	}
}

func TestParallelEvaluatorAbortsOnHardErrors(t *testing.T) {
	hard := oracle.Func(func(context.Context, *model.Candidate, oracle.Strategy, *oracle.RunContext) (oracle.Vector, error) {
		return nil, oracle.ErrMissingBaseline
	})
	e := &ParallelEvaluator{Oracle: hard, Strategy: oracle.RefAnnCO2, Workers: 2}
	if _, err := e.Evaluate(context.Background(), indexedPopulation(3)); !errors.Is(err, oracle.ErrMissingBaseline) {
		t.Fatalf("expected missing baseline error, got %v", err)
	}

	short := oracle.Func(func(context.Context, *model.Candidate, oracle.Strategy, *oracle.RunContext) (oracle.Vector, error) {
		return oracle.Vector{1}, nil
	})
	e.Oracle = short
	if _, err := e.Evaluate(context.Background(), indexedPopulation(1)); err == nil {
		t.Fatal("expected wrong vector length error")
	}
}

func TestParallelEvaluatorUsesCache(t *testing.T) {
	var calls int64
	cache := evalcache.NewMemoryCache(0)
	e := &ParallelEvaluator{Oracle: indexOracle(&calls), Strategy: oracle.RefAnnCO2, Workers: 3, Cache: cache}

	if _, err := e.Evaluate(context.Background(), indexedPopulation(6)); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	stats, err := e.Evaluate(context.Background(), indexedPopulation(6))
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if stats.CacheHits != 6 || calls != 6 {
		t.Fatalf("expected all cache hits, stats=%+v calls=%d", stats, calls)
	}
}

func TestParallelEvaluatorCacheIsScoped(t *testing.T) {
	var calls int64
	cache := evalcache.NewMemoryCache(0)
	first := &ParallelEvaluator{Oracle: indexOracle(&calls), Strategy: oracle.RefAnnCO2, Workers: 2, Cache: cache, CacheScope: "district-a"}
	if _, err := first.Evaluate(context.Background(), indexedPopulation(4)); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}

	second := &ParallelEvaluator{Oracle: indexOracle(&calls), Strategy: oracle.RefAnnCO2, Workers: 2, Cache: cache, CacheScope: "district-b"}
	stats, err := second.Evaluate(context.Background(), indexedPopulation(4))
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if stats.CacheHits != 0 || calls != 8 {
		t.Fatalf("expected no hits across scopes, stats=%+v calls=%d", stats, calls)
	}
	if cache.Len() != 8 {
		t.Fatalf("expected separate entries per scope, got %d", cache.Len())
	}
}

func TestParallelEvaluatorStopsOnCancel(t *testing.T) {
	var calls int64
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := &ParallelEvaluator{Oracle: indexOracle(&calls), Strategy: oracle.RefAnnCO2, Workers: 2}
	if _, err := e.Evaluate(ctx, indexedPopulation(4)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("oracle called %d times after cancel", calls)
	}
}
