package evo

import (
	"context"

	"districtevo/internal/model"
)

// Outcome reports what an operator did to a candidate. Steps names the
// sub-edits that were applied, in order. Exhausted is set when a bounded
// retry loop gave up and the candidate was left unchanged.
type Outcome struct {
	Steps     []string
	Exhausted bool
}

func (o Outcome) Applied() bool {
	return len(o.Steps) > 0
}

func (o *Outcome) add(step string) {
	o.Steps = append(o.Steps, step)
}

func (o *Outcome) merge(other Outcome) {
	o.Steps = append(o.Steps, other.Steps...)
	o.Exhausted = o.Exhausted || other.Exhausted
}

// Operator edits a candidate in place.
type Operator interface {
	Name() string
	Apply(ctx context.Context, c *model.Candidate) (Outcome, error)
}

// WeightedOperator is one entry of a weighted operator choice.
type WeightedOperator struct {
	Name     string
	Operator Operator
	Weight   float64
}
