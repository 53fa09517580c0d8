package refdata

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"districtevo/internal/model"
)

var ErrMissingReference = errors.New("missing reference data")

type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Reference is the read-only per-run lookup data. It is shared by all
// workers of a run without locking and must not be modified after Validate.
type Reference struct {
	Catalog SizeCatalog
	// PVAreaLimit is the usable roof area per building in m2.
	PVAreaLimit map[model.BuildingID]float64
	// HeatLoad is the design heat load per building in W.
	HeatLoad map[model.BuildingID]float64
	// PeakSpacePower is the peak space heating power per building in W.
	PeakSpacePower map[model.BuildingID]float64
	Positions      map[model.BuildingID]Position
}

// Validate reports programmer errors: a malformed catalog or buildings
// without a PV limit or position.
func (r *Reference) Validate(ids []model.BuildingID) error {
	if r == nil {
		return fmt.Errorf("%w: reference is nil", ErrMissingReference)
	}
	if err := r.Catalog.Validate(); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := r.PVAreaLimit[id]; !ok {
			return fmt.Errorf("%w: pv area limit for building %d", ErrMissingReference, id)
		}
		if _, ok := r.Positions[id]; !ok {
			return fmt.Errorf("%w: position for building %d", ErrMissingReference, id)
		}
		if limit := r.PVAreaLimit[id]; limit < 0 {
			return fmt.Errorf("%w: negative pv area limit for building %d", ErrMissingReference, id)
		}
	}
	return nil
}

// HeatLoadOf returns the design heat load of a building, if known.
func (r *Reference) HeatLoadOf(id model.BuildingID) (float64, bool) {
	if r.HeatLoad == nil {
		return 0, false
	}
	v, ok := r.HeatLoad[id]
	return v, ok
}

// PeakSpacePowerOf returns the peak space heating power of a building, if
// known.
func (r *Reference) PeakSpacePowerOf(id model.BuildingID) (float64, bool) {
	if r.PeakSpacePower == nil {
		return 0, false
	}
	v, ok := r.PeakSpacePower[id]
	return v, ok
}

func (r *Reference) HasHeatLoads() bool {
	return len(r.HeatLoad) > 0
}

func (r *Reference) HasPeakSpacePower() bool {
	return len(r.PeakSpacePower) > 0
}

// Ranked is a building with its distance to a reference set.
type Ranked struct {
	ID       model.BuildingID
	Distance float64
}

// RankByDistance orders search by the smallest Euclidean distance to any
// member of ref. With maxDist > 0 only buildings strictly closer than
// maxDist are kept. Buildings without a position are skipped.
func (r *Reference) RankByDistance(ref, search []model.BuildingID, maxDist float64) []Ranked {
	best := make(map[model.BuildingID]float64, len(search))
	for _, n := range ref {
		p1, ok := r.Positions[n]
		if !ok {
			continue
		}
		for _, u := range search {
			if u == n {
				continue
			}
			p2, ok := r.Positions[u]
			if !ok {
				continue
			}
			dist := floats.Distance([]float64{p1.X, p1.Y}, []float64{p2.X, p2.Y}, 2)
			if cur, seen := best[u]; !seen || dist < cur {
				best[u] = dist
			}
		}
	}
	out := make([]Ranked, 0, len(best))
	for id, dist := range best {
		if maxDist > 0 && dist >= maxDist {
			continue
		}
		out = append(out, Ranked{ID: id, Distance: dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].ID < out[j].ID
		}
		return out[i].Distance < out[j].Distance
	})
	return out
}

// Points returns the positions of ids in order, for clustering.
func (r *Reference) Points(ids []model.BuildingID) ([][2]float64, error) {
	out := make([][2]float64, 0, len(ids))
	for _, id := range ids {
		p, ok := r.Positions[id]
		if !ok {
			return nil, fmt.Errorf("%w: position for building %d", ErrMissingReference, id)
		}
		out = append(out, [2]float64{p.X, p.Y})
	}
	return out, nil
}

// TotalPeakSpacePower sums the peak space heating power of the district.
func (r *Reference) TotalPeakSpacePower() float64 {
	total := 0.0
	for _, v := range r.PeakSpacePower {
		total += v
	}
	return total
}
