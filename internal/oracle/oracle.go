package oracle

import (
	"context"
	"errors"

	"districtevo/internal/model"
	"districtevo/internal/refdata"
)

var (
	// ErrInfeasibleSupply means the energy systems cannot cover the demand.
	ErrInfeasibleSupply = errors.New("energy supply cannot cover demand")
	// ErrToleranceExceeded means too many Monte-Carlo samples failed.
	ErrToleranceExceeded = errors.New("monte carlo failure tolerance exceeded")
	ErrMissingBaseline   = errors.New("strategy requires a baseline run")
)

// Vector is one objective value per axis of a strategy.
type Vector []float64

// Baseline holds the reference annuity and emissions of the initial
// district, used by dimensionless strategies.
type Baseline struct {
	Annuity   float64 `json:"annuity"`
	Emissions float64 `json:"emissions"`
}

// RunContext is the read-only per-run data passed with every evaluation.
type RunContext struct {
	Reference *refdata.Reference
	Baseline  *Baseline
	Seed      int64
}

// Oracle scores one candidate against one strategy. ErrInfeasibleSupply and
// ErrToleranceExceeded mean the candidate should be penalized.
type Oracle interface {
	Evaluate(ctx context.Context, c *model.Candidate, strategy Strategy, run *RunContext) (Vector, error)
}

// BaselineProvider computes the baseline of an initial district.
type BaselineProvider interface {
	Baseline(ctx context.Context, initial *model.Candidate, run *RunContext) (Baseline, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, c *model.Candidate, strategy Strategy, run *RunContext) (Vector, error)

func (f Func) Evaluate(ctx context.Context, c *model.Candidate, strategy Strategy, run *RunContext) (Vector, error) {
	return f(ctx, c, strategy, run)
}

// IsPenalizable reports whether err is an evaluation failure that maps to a
// penalty vector rather than aborting the run.
func IsPenalizable(err error) bool {
	return errors.Is(err, ErrInfeasibleSupply) || errors.Is(err, ErrToleranceExceeded)
}
