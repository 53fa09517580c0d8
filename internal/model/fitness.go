package model

import "fmt"

type Direction int

const (
	Minimize Direction = iota
	Maximize
)

func (d Direction) String() string {
	if d == Maximize {
		return "max"
	}
	return "min"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "min", "minimize":
		*d = Minimize
	case "max", "maximize":
		*d = Maximize
	default:
		return fmt.Errorf("unknown objective direction: %s", text)
	}
	return nil
}

// Fitness is an objective vector with a per-axis direction. It is only
// meaningful while Valid is set.
type Fitness struct {
	Values     []float64   `json:"values"`
	Directions []Direction `json:"directions"`
	Valid      bool        `json:"valid"`
}

func NewFitness(values []float64, directions []Direction) Fitness {
	return Fitness{
		Values:     append([]float64(nil), values...),
		Directions: append([]Direction(nil), directions...),
		Valid:      true,
	}
}

func (f *Fitness) Invalidate() {
	f.Values = nil
	f.Valid = false
}

func (f Fitness) Clone() Fitness {
	return Fitness{
		Values:     append([]float64(nil), f.Values...),
		Directions: append([]Direction(nil), f.Directions...),
		Valid:      f.Valid,
	}
}

// Better reports whether a is strictly better than b along axis.
func (f Fitness) Better(axis int, a, b float64) bool {
	if axis < len(f.Directions) && f.Directions[axis] == Maximize {
		return a > b
	}
	return a < b
}

// Dominates reports Pareto dominance of f over other. Both must be valid
// and of equal dimension.
func (f Fitness) Dominates(other Fitness) bool {
	if !f.Valid || !other.Valid || len(f.Values) != len(other.Values) {
		return false
	}
	strictly := false
	for i := range f.Values {
		a, b := f.Values[i], other.Values[i]
		if f.Better(i, b, a) {
			return false
		}
		if f.Better(i, a, b) {
			strictly = true
		}
	}
	return strictly
}
