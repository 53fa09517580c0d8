package evo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"districtevo/internal/evalcache"
	"districtevo/internal/model"
	"districtevo/internal/oracle"
	"districtevo/internal/refdata"
	"districtevo/internal/repair"
)

// SnapshotSink persists the population of each generation.
type SnapshotSink interface {
	SaveGeneration(ctx context.Context, snapshot model.GenerationSnapshot) error
}

type RunResult struct {
	RunID                 string                        `json:"run_id"`
	Strategy              oracle.Strategy               `json:"strategy"`
	BestByGeneration      [][]float64                   `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics"`
	FinalPopulation       []*model.Candidate            `json:"-"`
	HallOfFame            []*model.Candidate            `json:"-"`
	Lineage               []model.LineageRecord         `json:"lineage"`
	Converged             bool                          `json:"converged"`
	Generations           int                           `json:"generations"`
	Baseline              *oracle.Baseline              `json:"baseline,omitempty"`
}

type MonitorConfig struct {
	RunID         string
	Strategy      oracle.Strategy
	Oracle        oracle.Oracle
	Baseline      oracle.BaselineProvider
	Evaluator     Evaluator
	Reference     *refdata.Reference
	Mutation      Operator
	Crossover     *Crossover
	Repair        *repair.Repairer
	Selector      Selector
	Postprocessor FitnessPostprocessor
	MutationCount MutationCountPolicy
	Sink          SnapshotSink
	Recorder      Recorder
	Cache         evalcache.Cache
	CacheScope    string
	Log           *logrus.Logger

	PopulationSize       int
	Generations          int
	Workers              int
	Seed                 int64
	CrossoverProb        float64
	MutationProb         float64
	Participants         int
	HallOfFameSize       int
	MinGenerations       int
	StdBreak             float64
	EvaluationsPerSecond float64
}

type PopulationMonitor struct {
	cfg       MonitorConfig
	rng       *rand.Rand
	run       *oracle.RunContext
	evaluator Evaluator
	log       *logrus.Logger
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if !cfg.Strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", oracle.ErrUnknownStrategy, cfg.Strategy)
	}
	if cfg.Oracle == nil && cfg.Evaluator == nil {
		return nil, fmt.Errorf("oracle or evaluator is required")
	}
	if cfg.Reference == nil {
		return nil, fmt.Errorf("reference data is required")
	}
	if cfg.Mutation == nil {
		return nil, fmt.Errorf("mutation operator is required")
	}
	if cfg.Crossover == nil {
		return nil, fmt.Errorf("crossover is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.Generations < 0 {
		return nil, fmt.Errorf("generations must be >= 0")
	}
	if cfg.CrossoverProb < 0 || cfg.CrossoverProb > 1 {
		return nil, fmt.Errorf("crossover probability must be in [0, 1]")
	}
	if cfg.MutationProb < 0 || cfg.MutationProb > 1 {
		return nil, fmt.Errorf("mutation probability must be in [0, 1]")
	}
	if cfg.MinGenerations < 0 {
		return nil, fmt.Errorf("minimum generations must be >= 0")
	}
	if cfg.StdBreak < 0 {
		return nil, fmt.Errorf("std break must be >= 0")
	}
	if cfg.EvaluationsPerSecond < 0 {
		return nil, fmt.Errorf("evaluations per second must be >= 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Participants <= 0 {
		cfg.Participants = 4
	}
	if cfg.Participants < 2 {
		return nil, fmt.Errorf("crossover tournament needs at least 2 participants")
	}
	if cfg.Selector == nil {
		cfg.Selector = AnchoredSelector{Fraction: 0.8}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = SanitizePostprocessor{}
	}
	if cfg.MutationCount == nil {
		cfg.MutationCount = ConstMutationCount{Count: 1}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	m := &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		run: &oracle.RunContext{Reference: cfg.Reference, Seed: cfg.Seed},
		log: cfg.Log,
	}
	m.evaluator = cfg.Evaluator
	if m.evaluator == nil {
		var limiter *rate.Limiter
		if cfg.EvaluationsPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.EvaluationsPerSecond), max(1, cfg.Workers))
		}
		m.evaluator = &ParallelEvaluator{
			Oracle:     cfg.Oracle,
			Strategy:   cfg.Strategy,
			Run:        m.run,
			Workers:    cfg.Workers,
			Limiter:    limiter,
			Cache:      cfg.Cache,
			CacheScope: cfg.CacheScope,
			Recorder:   cfg.Recorder,
			Log:        cfg.Log,
		}
	}
	return m, nil
}

// SeedPopulation builds the initial population from the district's current
// state: the first member is an unchanged copy, every other copy receives
// one mutation and is repaired.
func (m *PopulationMonitor) SeedPopulation(ctx context.Context, initial *model.Candidate) ([]*model.Candidate, error) {
	if initial == nil {
		return nil, fmt.Errorf("initial candidate is required")
	}
	pop := make([]*model.Candidate, 0, m.cfg.PopulationSize)
	first := initial.Clone()
	first.ID = "g0-i0"
	first.InvalidateFitness()
	pop = append(pop, first)
	for i := 1; i < m.cfg.PopulationSize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := initial.Clone()
		c.ID = fmt.Sprintf("g0-i%d", i)
		if _, err := m.cfg.Mutation.Apply(ctx, c); err != nil {
			return nil, fmt.Errorf("seed mutation %d: %w", i, err)
		}
		if m.cfg.Repair != nil {
			m.cfg.Repair.Run(c, m.rng)
		}
		c.InvalidateFitness()
		pop = append(pop, c)
	}
	return pop, nil
}

func (m *PopulationMonitor) Run(ctx context.Context, initial []*model.Candidate) (RunResult, error) {
	if len(initial) != m.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}
	if err := m.prepareBaseline(ctx, initial[0]); err != nil {
		return RunResult{}, err
	}

	population := make([]*model.Candidate, len(initial))
	for i, c := range initial {
		population[i] = c.Clone()
	}

	result := RunResult{
		RunID:                 m.cfg.RunID,
		Strategy:              m.cfg.Strategy,
		BestByGeneration:      make([][]float64, 0, m.cfg.Generations+1),
		GenerationDiagnostics: make([]model.GenerationDiagnostics, 0, m.cfg.Generations+1),
		Lineage:               make([]model.LineageRecord, 0, len(initial)*(m.cfg.Generations+1)),
		Baseline:              m.run.Baseline,
	}
	for _, c := range population {
		result.Lineage = append(result.Lineage, model.LineageRecord{
			CandidateID: c.ID,
			Generation:  0,
			Operation:   "seed",
			Fingerprint: c.Fingerprint(),
		})
	}

	hof := NewHallOfFame(m.cfg.HallOfFameSize, m.cfg.Strategy)

	stats, err := m.evaluate(ctx, population)
	if err != nil {
		return RunResult{}, err
	}
	hof.Update(population)
	if err := m.finishGeneration(ctx, &result, population, 0, stats, Selection{}); err != nil {
		return RunResult{}, err
	}

	for gen := 1; gen <= m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		offspring, lineage, err := m.breed(ctx, population, gen)
		if err != nil {
			return RunResult{}, err
		}
		result.Lineage = append(result.Lineage, lineage...)

		fresh := freshOffspring(population, offspring)
		stats, err := m.evaluate(ctx, fresh)
		if err != nil {
			return RunResult{}, err
		}

		sel, err := m.cfg.Selector.Select(m.rng, population, fresh, m.cfg.PopulationSize)
		if err != nil {
			return RunResult{}, err
		}
		population = sel.Population
		hof.Update(append(append([]*model.Candidate(nil), population...), fresh...))

		if err := m.finishGeneration(ctx, &result, population, gen, stats, sel); err != nil {
			return RunResult{}, err
		}
		if m.converged(result.BestByGeneration) {
			result.Converged = true
			m.log.WithFields(logrus.Fields{
				"generation": gen,
				"strategy":   m.cfg.Strategy,
				"window":     m.cfg.MinGenerations,
			}).Info("objective spread below std break, stopping")
			break
		}
	}

	result.FinalPopulation = population
	result.HallOfFame = hof.Members()
	return result, nil
}

func (m *PopulationMonitor) prepareBaseline(ctx context.Context, initial *model.Candidate) error {
	if !m.cfg.Strategy.NeedsBaseline() || m.run.Baseline != nil {
		return nil
	}
	provider := m.cfg.Baseline
	if provider == nil {
		if p, ok := m.cfg.Oracle.(oracle.BaselineProvider); ok {
			provider = p
		}
	}
	if provider == nil {
		return fmt.Errorf("%w: strategy %s needs a baseline provider", oracle.ErrMissingBaseline, m.cfg.Strategy)
	}
	base, err := provider.Baseline(ctx, initial, m.run)
	if err != nil {
		return fmt.Errorf("baseline run: %w", err)
	}
	m.run.Baseline = &base
	return nil
}

func (m *PopulationMonitor) evaluate(ctx context.Context, pop []*model.Candidate) (EvalStats, error) {
	stats, err := m.evaluator.Evaluate(ctx, pop)
	if err != nil {
		return stats, err
	}
	if changed := m.cfg.Postprocessor.Process(m.cfg.Strategy, pop); changed > 0 {
		stats.Penalized += changed
		m.log.WithFields(logrus.Fields{
			"strategy":      m.cfg.Strategy,
			"postprocessor": m.cfg.Postprocessor.Name(),
			"changed":       changed,
		}).Warn("objective values replaced by penalty")
	}
	return stats, nil
}

// breed runs the crossover tournament and then mutates each offspring with
// MutationProb.
func (m *PopulationMonitor) breed(ctx context.Context, parents []*model.Candidate, gen int) ([]*model.Candidate, []model.LineageRecord, error) {
	tournament := CrossoverTournament{
		Crossover:    m.cfg.Crossover,
		Participants: m.cfg.Participants,
		Prob:         m.cfg.CrossoverProb,
	}
	pairs, err := tournament.Run(ctx, parents)
	if err != nil {
		return nil, nil, err
	}

	type child struct {
		c      *model.Candidate
		parent string
		steps  []string
	}
	children := make([]child, 0, len(pairs)*2)
	for _, p := range pairs {
		children = append(children,
			child{c: p.First, parent: p.ParentA, steps: append([]string(nil), p.Outcome.Steps...)},
			child{c: p.Second, parent: p.ParentB, steps: append([]string(nil), p.Outcome.Steps...)},
		)
	}
	if len(children) > m.cfg.PopulationSize {
		children = children[:m.cfg.PopulationSize]
	}

	offspring := make([]*model.Candidate, 0, len(children))
	lineage := make([]model.LineageRecord, 0, len(children))
	for i, ch := range children {
		ch.c.ID = fmt.Sprintf("g%d-i%d", gen, i)
		if m.rng.Float64() < m.cfg.MutationProb {
			count, err := m.cfg.MutationCount.MutationCount(ch.c, gen, m.rng)
			if err != nil {
				return nil, nil, err
			}
			for step := 0; step < count; step++ {
				out, err := m.cfg.Mutation.Apply(ctx, ch.c)
				if err != nil {
					return nil, nil, fmt.Errorf("mutate %s: %w", ch.c.ID, err)
				}
				ch.steps = append(ch.steps, out.Steps...)
			}
			ch.c.InvalidateFitness()
		}
		operation := "clone"
		if len(ch.steps) > 0 {
			operation = strings.Join(ch.steps, "+")
		}
		offspring = append(offspring, ch.c)
		lineage = append(lineage, model.LineageRecord{
			CandidateID: ch.c.ID,
			ParentID:    ch.parent,
			Generation:  gen,
			Operation:   operation,
			Fingerprint: ch.c.Fingerprint(),
		})
	}
	return offspring, lineage, nil
}

// freshOffspring keeps the offspring that need an evaluation and do not
// repeat a parent configuration.
func freshOffspring(parents, offspring []*model.Candidate) []*model.Candidate {
	known := make(map[string]bool, len(parents))
	for _, p := range parents {
		known[p.Fingerprint()] = true
	}
	out := make([]*model.Candidate, 0, len(offspring))
	for _, c := range offspring {
		if c.Fitness.Valid || known[c.Fingerprint()] {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (m *PopulationMonitor) finishGeneration(ctx context.Context, result *RunResult, pop []*model.Candidate, gen int, stats EvalStats, sel Selection) error {
	diag := summarizeGeneration(m.cfg.Strategy, pop, gen, stats, sel)
	result.GenerationDiagnostics = append(result.GenerationDiagnostics, diag)
	result.BestByGeneration = append(result.BestByGeneration, bestValues(diag))
	result.Generations = gen
	m.cfg.Recorder.ObserveGeneration(m.cfg.RunID, string(m.cfg.Strategy), diag)

	m.log.WithFields(logrus.Fields{
		"generation":  gen,
		"strategy":    m.cfg.Strategy,
		"evaluations": stats.Evaluations,
		"penalized":   stats.Penalized,
		"front":       diag.FrontSize,
	}).Info("generation complete")

	if m.cfg.Sink == nil {
		return nil
	}
	snapshot := model.GenerationSnapshot{
		RunID:      m.cfg.RunID,
		Generation: gen,
		Strategy:   string(m.cfg.Strategy),
		Population: make([]model.CandidateRecord, len(pop)),
	}
	for i, c := range pop {
		snapshot.Population[i] = c.Record()
	}
	if err := m.cfg.Sink.SaveGeneration(ctx, snapshot); err != nil {
		return fmt.Errorf("save generation %d: %w", gen, err)
	}
	return nil
}

func bestValues(diag model.GenerationDiagnostics) []float64 {
	out := make([]float64, len(diag.Objectives))
	for i, obj := range diag.Objectives {
		out[i] = obj.Best
	}
	return out
}

// converged reports whether the best value of every objective varied less
// than StdBreak times its value at the start of the last MinGenerations
// generations.
func (m *PopulationMonitor) converged(history [][]float64) bool {
	window := m.cfg.MinGenerations
	if window <= 0 || m.cfg.StdBreak <= 0 || len(history)-1 <= window {
		return false
	}
	recent := history[len(history)-window:]
	dims := len(recent[0])
	if dims == 0 {
		return false
	}
	series := make([]float64, window)
	for axis := 0; axis < dims; axis++ {
		for i, values := range recent {
			if axis >= len(values) {
				return false
			}
			series[i] = values[axis]
		}
		_, std := stat.PopMeanStdDev(series, nil)
		if !(std < m.cfg.StdBreak*math.Abs(series[0])) {
			return false
		}
	}
	return true
}

func summarizeGeneration(strategy oracle.Strategy, pop []*model.Candidate, gen int, stats EvalStats, sel Selection) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		Generation:  gen,
		Evaluations: stats.Evaluations,
		CacheHits:   stats.CacheHits,
		Anchored:    sel.Anchored,
	}
	if len(pop) == 0 {
		return diag
	}

	directions := strategy.Directions()
	columns := make([][]float64, len(directions))
	fingerprints := make(map[string]struct{}, len(pop))
	subnets, connected := 0.0, 0.0
	scored := make([]*model.Candidate, 0, len(pop))
	for _, c := range pop {
		sig := ComputeSignature(c)
		fingerprints[sig.Fingerprint] = struct{}{}
		subnets += float64(sig.Summary.Subnets)
		connected += float64(sig.Summary.Connected)
		switch {
		case !c.Fitness.Valid:
			diag.InvalidCount++
			continue
		case strategy.IsPenalty(c.Fitness.Values):
			diag.PenalizedCount++
			continue
		}
		scored = append(scored, c)
		for axis := range columns {
			columns[axis] = append(columns[axis], c.Fitness.Values[axis])
		}
	}
	diag.FingerprintDiversity = len(fingerprints)
	diag.MeanSubnets = subnets / float64(len(pop))
	diag.MeanConnected = connected / float64(len(pop))
	diag.FrontSize = len(FirstFront(scored))

	if len(scored) == 0 {
		return diag
	}
	diag.Objectives = make([]model.ObjectiveStats, len(directions))
	for axis, values := range columns {
		mean, std := stat.PopMeanStdDev(values, nil)
		obj := model.ObjectiveStats{
			Axis:      axis,
			Direction: directions[axis],
			Min:       floats.Min(values),
			Mean:      mean,
			Max:       floats.Max(values),
			Std:       std,
		}
		obj.Best = obj.Min
		if directions[axis] == model.Maximize {
			obj.Best = obj.Max
		}
		diag.Objectives[axis] = obj
	}
	return diag
}
