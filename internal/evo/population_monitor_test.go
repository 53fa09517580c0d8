package evo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"districtevo/internal/model"
	"districtevo/internal/oracle"
)

type captureSink struct {
	mu        sync.Mutex
	snapshots []model.GenerationSnapshot
}

func (s *captureSink) SaveGeneration(_ context.Context, snapshot model.GenerationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

type countingRecorder struct {
	mu          sync.Mutex
	evaluations int
	generations int
}

func (r *countingRecorder) ObserveEvaluation(string, time.Duration, bool, bool) {
	r.mu.Lock()
	r.evaluations++
	r.mu.Unlock()
}

func (r *countingRecorder) ObserveGeneration(string, string, model.GenerationDiagnostics) {
	r.mu.Lock()
	r.generations++
	r.mu.Unlock()
}

func testMonitorConfig(t *testing.T, n int, o oracle.Oracle) (MonitorConfig, *Env) {
	t.Helper()
	env, _ := testEnv(t, n)
	engine, err := NewMutationEngine(env, newRand(31), DefaultMutationWeights(), 0.3, true)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return MonitorConfig{
		RunID:          "run-test",
		Strategy:       oracle.RefAnnCO2,
		Oracle:         o,
		Reference:      env.Gen.Ref,
		Mutation:       engine,
		Crossover:      &Crossover{Repair: env.Repair, Rand: newRand(32), Log: env.Log},
		Repair:         env.Repair,
		Log:            env.Log,
		PopulationSize: 8,
		Generations:    4,
		Workers:        3,
		Seed:           5,
		CrossoverProb:  0.7,
		MutationProb:   0.6,
		Participants:   4,
		HallOfFameSize: 4,
	}, env
}

func TestPopulationMonitorRunsAllGenerations(t *testing.T) {
	cfg, env := testMonitorConfig(t, 5, objectiveOracle())
	sink := &captureSink{}
	recorder := &countingRecorder{}
	cfg.Sink = sink
	cfg.Recorder = recorder
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	initial, err := monitor.SeedPopulation(context.Background(), boilerDistrict(5))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	result, err := monitor.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Generations != 4 || len(result.GenerationDiagnostics) != 5 || len(result.BestByGeneration) != 5 {
		t.Fatalf("unexpected generation count: %d diagnostics=%d", result.Generations, len(result.GenerationDiagnostics))
	}
	if result.Converged {
		t.Fatal("convergence check must be off without a window")
	}
	if len(result.FinalPopulation) != 8 {
		t.Fatalf("expected population of 8, got %d", len(result.FinalPopulation))
	}
	for _, c := range result.FinalPopulation {
		if !c.Fitness.Valid {
			t.Fatalf("final candidate %s without fitness", c.ID)
		}
		assertRepaired(t, env, c)
	}
	if n := len(result.HallOfFame); n == 0 || n > 4 {
		t.Fatalf("unexpected hall of fame size %d", n)
	}
	if len(sink.snapshots) != 5 || sink.snapshots[4].Generation != 4 || sink.snapshots[0].RunID != "run-test" {
		t.Fatalf("unexpected snapshots: %d", len(sink.snapshots))
	}
	if recorder.generations != 5 || recorder.evaluations == 0 {
		t.Fatalf("unexpected recorder counts: %+v", recorder)
	}
	if result.GenerationDiagnostics[0].Evaluations != 8 {
		t.Fatalf("expected the initial population evaluated, got %+v", result.GenerationDiagnostics[0])
	}

	seen := map[string]bool{}
	for _, rec := range result.Lineage {
		seen[rec.CandidateID] = true
		if rec.Generation > 0 && (rec.ParentID == "" || !strings.HasPrefix(rec.CandidateID, "g")) {
			t.Fatalf("malformed lineage record: %+v", rec)
		}
	}
	for _, c := range result.FinalPopulation {
		if !seen[c.ID] {
			t.Fatalf("final candidate %s missing from lineage", c.ID)
		}
	}
}

func TestPopulationMonitorStopsWhenObjectivesSettle(t *testing.T) {
	flat := oracle.Func(func(context.Context, *model.Candidate, oracle.Strategy, *oracle.RunContext) (oracle.Vector, error) {
		return oracle.Vector{10, 20}, nil
	})
	cfg, _ := testMonitorConfig(t, 4, flat)
	cfg.Generations = 50
	cfg.MinGenerations = 3
	cfg.StdBreak = 0.001
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	initial, err := monitor.SeedPopulation(context.Background(), boilerDistrict(4))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	result, err := monitor.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Converged || result.Generations != 4 {
		t.Fatalf("expected convergence after generation 4, got converged=%v generations=%d", result.Converged, result.Generations)
	}
}

func TestPopulationMonitorComputesBaseline(t *testing.T) {
	cfg, _ := testMonitorConfig(t, 3, oracle.NewSynthetic(5, 0.5))
	cfg.Strategy = oracle.Dimless2DMean
	cfg.Generations = 1
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	initial, err := monitor.SeedPopulation(context.Background(), boilerDistrict(3))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	result, err := monitor.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Baseline == nil || result.Baseline.Annuity <= 0 {
		t.Fatalf("expected a baseline, got %+v", result.Baseline)
	}

	cfg.Oracle = objectiveOracle()
	monitor, err = NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	if _, err := monitor.Run(context.Background(), initial); !errors.Is(err, oracle.ErrMissingBaseline) {
		t.Fatalf("expected missing baseline, got %v", err)
	}
}

func TestPopulationMonitorHonoursCancel(t *testing.T) {
	cfg, _ := testMonitorConfig(t, 3, objectiveOracle())
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	initial, err := monitor.SeedPopulation(context.Background(), boilerDistrict(3))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := monitor.Run(ctx, initial); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestSeedPopulationKeepsInitialDistrictFirst(t *testing.T) {
	cfg, env := testMonitorConfig(t, 4, objectiveOracle())
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	base := boilerDistrict(4)
	pop, err := monitor.SeedPopulation(context.Background(), base)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(pop) != 8 || pop[0].Fingerprint() != base.Fingerprint() || pop[0].ID != "g0-i0" {
		t.Fatalf("unexpected seed population head: %d %s", len(pop), pop[0].ID)
	}
	for _, c := range pop[1:] {
		assertRepaired(t, env, c)
	}
}

func TestNewPopulationMonitorValidatesConfig(t *testing.T) {
	base, _ := testMonitorConfig(t, 3, objectiveOracle())
	cases := map[string]func(*MonitorConfig){
		"population":   func(c *MonitorConfig) { c.PopulationSize = 0 },
		"crossover":    func(c *MonitorConfig) { c.CrossoverProb = 1.5 },
		"mutation":     func(c *MonitorConfig) { c.MutationProb = -0.1 },
		"strategy":     func(c *MonitorConfig) { c.Strategy = "unknown" },
		"reference":    func(c *MonitorConfig) { c.Reference = nil },
		"oracle":       func(c *MonitorConfig) { c.Oracle = nil },
		"participants": func(c *MonitorConfig) { c.Participants = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if _, err := NewPopulationMonitor(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}

	monitor, err := NewPopulationMonitor(base)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	if _, err := monitor.Run(context.Background(), nil); err == nil {
		t.Fatal("expected population size mismatch")
	}
}
