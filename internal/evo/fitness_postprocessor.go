package evo

import (
	"math"

	"districtevo/internal/model"
	"districtevo/internal/oracle"
)

// FitnessPostprocessor adjusts fitness values after evaluation and before
// selection. It returns how many candidates it changed.
type FitnessPostprocessor interface {
	Name() string
	Process(strategy oracle.Strategy, pop []*model.Candidate) int
}

type NoopFitnessPostprocessor struct{}

func (NoopFitnessPostprocessor) Name() string {
	return "none"
}

func (NoopFitnessPostprocessor) Process(oracle.Strategy, []*model.Candidate) int {
	return 0
}

// SanitizePostprocessor replaces objective vectors holding NaN or Inf, or
// of the wrong dimension, by the strategy's penalty vector.
type SanitizePostprocessor struct{}

func (SanitizePostprocessor) Name() string {
	return "sanitize"
}

func (SanitizePostprocessor) Process(strategy oracle.Strategy, pop []*model.Candidate) int {
	changed := 0
	for _, c := range pop {
		if !c.Fitness.Valid {
			continue
		}
		if len(c.Fitness.Values) == strategy.Dimensions() && finite(c.Fitness.Values) {
			continue
		}
		c.Fitness = model.NewFitness(strategy.Penalty(), strategy.Directions())
		changed++
	}
	return changed
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
