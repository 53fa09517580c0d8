package refdata

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AtLeast keeps the sizes >= ref. When none qualifies it falls back to the
// largest size and reports ok=false.
func AtLeast(values []float64, ref float64) (out []float64, ok bool) {
	if len(values) == 0 {
		return nil, false
	}
	for _, v := range values {
		if v >= ref {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []float64{floats.Max(values)}, false
	}
	return out, true
}

// AtMost keeps the sizes <= ref. When none qualifies it falls back to the
// smallest size and reports ok=false.
func AtMost(values []float64, ref float64) (out []float64, ok bool) {
	if len(values) == 0 {
		return nil, false
	}
	for _, v := range values {
		if v <= ref {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []float64{floats.Min(values)}, false
	}
	return out, true
}

// PVChoices lists the admissible PV areas min, min+step, ... that do not
// exceed limit. The minimum is rounded to whole square metres.
func PVChoices(pvMin, pvStep, limit float64) []float64 {
	if pvStep <= 0 {
		pvStep = 1
	}
	start := math.Round(pvMin)
	out := make([]float64, 0)
	for v := start; v <= limit+1e-9; v += pvStep {
		out = append(out, v)
	}
	return out
}

// ClampPV returns the largest admissible PV area <= limit, or 0 when even
// the minimum does not fit.
func ClampPV(pv, pvMin, pvStep, limit float64) float64 {
	if pv <= limit {
		return pv
	}
	choices := PVChoices(pvMin, pvStep, limit)
	if len(choices) == 0 {
		return 0
	}
	return choices[len(choices)-1]
}
