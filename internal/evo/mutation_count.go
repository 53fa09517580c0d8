package evo

import (
	"fmt"
	"math"
	"math/rand"

	"districtevo/internal/model"
)

// MutationCountPolicy determines how many mutation engine passes are applied
// to an offspring selected for mutation.
type MutationCountPolicy interface {
	Name() string
	MutationCount(c *model.Candidate, generation int, rng *rand.Rand) (int, error)
}

type ConstMutationCount struct {
	Count int
}

func (ConstMutationCount) Name() string {
	return "const"
}

func (p ConstMutationCount) MutationCount(_ *model.Candidate, _ int, _ *rand.Rand) (int, error) {
	if p.Count <= 0 {
		return 0, fmt.Errorf("const mutation count must be > 0")
	}
	return p.Count, nil
}

// BuildingLinearMutationCount scales with the number of buildings.
type BuildingLinearMutationCount struct {
	Multiplier float64
	MaxCount   int
}

func (BuildingLinearMutationCount) Name() string {
	return "building_linear"
}

func (p BuildingLinearMutationCount) MutationCount(c *model.Candidate, _ int, _ *rand.Rand) (int, error) {
	if p.Multiplier <= 0 {
		return 0, fmt.Errorf("linear multiplier must be > 0")
	}
	count := int(math.Round(float64(len(c.Buildings)) * p.Multiplier))
	if count < 1 {
		count = 1
	}
	if p.MaxCount > 0 && count > p.MaxCount {
		count = p.MaxCount
	}
	return count, nil
}

// RandomMutationCount draws uniformly from [1, MaxCount].
type RandomMutationCount struct {
	MaxCount int
}

func (RandomMutationCount) Name() string {
	return "random"
}

func (p RandomMutationCount) MutationCount(_ *model.Candidate, _ int, rng *rand.Rand) (int, error) {
	if p.MaxCount <= 0 {
		return 0, fmt.Errorf("random mutation max count must be > 0")
	}
	if rng == nil {
		return 0, fmt.Errorf("random source is required")
	}
	return 1 + rng.Intn(p.MaxCount), nil
}

// ParseMutationCount builds a policy from its configured name.
func ParseMutationCount(name string, value float64, maxCount int) (MutationCountPolicy, error) {
	switch name {
	case "", "const":
		count := int(value)
		if count <= 0 {
			count = 1
		}
		return ConstMutationCount{Count: count}, nil
	case "building_linear":
		return BuildingLinearMutationCount{Multiplier: value, MaxCount: maxCount}, nil
	case "random":
		return RandomMutationCount{MaxCount: maxCount}, nil
	default:
		return nil, fmt.Errorf("unsupported mutation count policy: %s", name)
	}
}
