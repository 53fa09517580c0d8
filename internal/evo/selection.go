package evo

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"districtevo/internal/model"
)

// SortNondominated splits pool into Pareto fronts, best first, as indices
// into pool. Candidates without valid fitness form a last front of their own.
func SortNondominated(pool []*model.Candidate) [][]int {
	valid := make([]int, 0, len(pool))
	invalid := make([]int, 0)
	for i, c := range pool {
		if c.Fitness.Valid {
			valid = append(valid, i)
		} else {
			invalid = append(invalid, i)
		}
	}

	dominates := make(map[int][]int, len(valid))
	dominatedBy := make(map[int]int, len(valid))
	current := make([]int, 0)
	for _, i := range valid {
		for _, j := range valid {
			if i == j {
				continue
			}
			if pool[i].Fitness.Dominates(pool[j].Fitness) {
				dominates[i] = append(dominates[i], j)
			} else if pool[j].Fitness.Dominates(pool[i].Fitness) {
				dominatedBy[i]++
			}
		}
		if dominatedBy[i] == 0 {
			current = append(current, i)
		}
	}

	fronts := make([][]int, 0)
	for len(current) > 0 {
		fronts = append(fronts, current)
		next := make([]int, 0)
		for _, i := range current {
			for _, j := range dominates[i] {
				dominatedBy[j]--
				if dominatedBy[j] == 0 {
					next = append(next, j)
				}
			}
		}
		sort.Ints(next)
		current = next
	}
	if len(invalid) > 0 {
		fronts = append(fronts, invalid)
	}
	return fronts
}

// CrowdingDistance returns the crowding distance of each front member, in
// front order. Boundary members of every axis get +Inf.
func CrowdingDistance(pool []*model.Candidate, front []int) []float64 {
	dist := make([]float64, len(front))
	if len(front) == 0 {
		return dist
	}
	dims := len(pool[front[0]].Fitness.Values)
	order := make([]int, len(front))
	for axis := 0; axis < dims; axis++ {
		for i := range order {
			order[i] = i
		}
		value := func(i int) float64 {
			values := pool[front[i]].Fitness.Values
			if axis < len(values) {
				return values[axis]
			}
			return 0
		}
		sort.SliceStable(order, func(a, b int) bool { return value(order[a]) < value(order[b]) })
		lo, hi := value(order[0]), value(order[len(order)-1])
		dist[order[0]] = math.Inf(1)
		dist[order[len(order)-1]] = math.Inf(1)
		if hi == lo {
			continue
		}
		for k := 1; k < len(order)-1; k++ {
			dist[order[k]] += (value(order[k+1]) - value(order[k-1])) / (hi - lo)
		}
	}
	return dist
}

// SelectNSGA2 picks k candidates by front rank, filling the last partial
// front by descending crowding distance.
func SelectNSGA2(pool []*model.Candidate, k int) []*model.Candidate {
	if k > len(pool) {
		k = len(pool)
	}
	chosen := make([]*model.Candidate, 0, k)
	for _, front := range SortNondominated(pool) {
		if len(chosen) >= k {
			break
		}
		if len(chosen)+len(front) <= k {
			for _, i := range front {
				chosen = append(chosen, pool[i])
			}
			continue
		}
		dist := CrowdingDistance(pool, front)
		order := make([]int, len(front))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] > dist[order[b]] })
		for _, i := range order[:k-len(chosen)] {
			chosen = append(chosen, pool[front[i]])
		}
	}
	return chosen
}

// FirstFront returns the non-dominated valid candidates of pool.
func FirstFront(pool []*model.Candidate) []*model.Candidate {
	fronts := SortNondominated(pool)
	if len(fronts) == 0 || !pool[fronts[0][0]].Fitness.Valid {
		return nil
	}
	out := make([]*model.Candidate, len(fronts[0]))
	for i, idx := range fronts[0] {
		out[i] = pool[idx]
	}
	return out
}

// Selection is the outcome of one survivor selection.
type Selection struct {
	Population []*model.Candidate
	Anchored   bool
	Anchors    int
	ToppedUp   int
}

// Selector chooses the next population from the parents and the newly
// evaluated offspring.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, parents, offspring []*model.Candidate, n int) (Selection, error)
}

// NSGA2Selector selects from parents and offspring with crowded comparison.
type NSGA2Selector struct{}

func (NSGA2Selector) Name() string {
	return "nsga2"
}

func (NSGA2Selector) Select(_ *rand.Rand, parents, offspring []*model.Candidate, n int) (Selection, error) {
	if n <= 0 {
		return Selection{}, fmt.Errorf("selection size must be > 0")
	}
	pool := append(append([]*model.Candidate(nil), parents...), offspring...)
	return Selection{Population: SelectNSGA2(pool, n)}, nil
}

// AnchoredSelector keeps the per-axis extremes of the parents' first front
// when that front fills at least Fraction of the population and only few
// offspring compete. The remaining anchor slots are sampled from the front.
type AnchoredSelector struct {
	Fraction float64
}

func (AnchoredSelector) Name() string {
	return "anchored"
}

func (s AnchoredSelector) Select(rng *rand.Rand, parents, offspring []*model.Candidate, n int) (Selection, error) {
	if rng == nil {
		return Selection{}, fmt.Errorf("random source is required")
	}
	if n <= 0 {
		return Selection{}, fmt.Errorf("selection size must be > 0")
	}
	if s.Fraction <= 0 || s.Fraction > 1 {
		return Selection{}, fmt.Errorf("pareto fraction must be in (0, 1]")
	}

	out := Selection{}
	anchors := parents
	front := FirstFront(parents)
	anchorCount := fractionFloor(s.Fraction, n)
	if len(front) >= fractionCeil(s.Fraction, n) && len(offspring) <= fractionFloor(1-s.Fraction, n) {
		anchors = anchorFront(rng, front, anchorCount)
		out.Anchored = true
		out.Anchors = len(anchors)
	}

	pool := append(append([]*model.Candidate(nil), anchors...), offspring...)
	out.Population = SelectNSGA2(pool, n)
	if len(out.Population) < n {
		taken := make(map[*model.Candidate]bool, len(out.Population))
		for _, c := range out.Population {
			taken[c] = true
		}
		for _, c := range SelectNSGA2(parents, len(parents)) {
			if len(out.Population) >= n {
				break
			}
			if !taken[c] {
				out.Population = append(out.Population, c)
				out.ToppedUp++
			}
		}
	}
	return out, nil
}

// fractionEpsilon absorbs rounding in products like (1-0.8)*10.
const fractionEpsilon = 1e-9

func fractionFloor(f float64, n int) int {
	return int(math.Floor(f*float64(n) + fractionEpsilon))
}

func fractionCeil(f float64, n int) int {
	return int(math.Ceil(f*float64(n) - fractionEpsilon))
}

// anchorFront keeps the best member of every axis (first on ties, collapsed
// when one member is best on several axes) and fills up to size with members
// sampled without replacement.
func anchorFront(rng *rand.Rand, front []*model.Candidate, size int) []*model.Candidate {
	if len(front) == 0 {
		return nil
	}
	dims := len(front[0].Fitness.Values)
	picked := make(map[int]bool, dims)
	anchors := make([]*model.Candidate, 0, size)
	for axis := 0; axis < dims; axis++ {
		best := 0
		for i := 1; i < len(front); i++ {
			if front[0].Fitness.Better(axis, front[i].Fitness.Values[axis], front[best].Fitness.Values[axis]) {
				best = i
			}
		}
		if !picked[best] {
			picked[best] = true
			anchors = append(anchors, front[best])
		}
	}
	rest := make([]*model.Candidate, 0, len(front)-len(anchors))
	for i, c := range front {
		if !picked[i] {
			rest = append(rest, c)
		}
	}
	extra := size - len(anchors)
	if extra > len(rest) {
		extra = len(rest)
	}
	for _, i := range rng.Perm(len(rest))[:max(extra, 0)] {
		anchors = append(anchors, rest[i])
	}
	return anchors
}
