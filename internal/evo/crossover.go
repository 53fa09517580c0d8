package evo

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"districtevo/internal/model"
	"districtevo/internal/repair"
)

const crossoverAttempts = 20

// crossoverGroups are the field groups a crossover can swap: the whole
// energy system or one component.
var crossoverGroups = func() [][]model.Component {
	groups := [][]model.Component{model.Components()}
	for _, comp := range model.Components() {
		groups = append(groups, []model.Component{comp})
	}
	return groups
}()

// Crossover swaps energy system fields between buildings of two candidates.
type Crossover struct {
	Repair *repair.Repairer
	Rand   *rand.Rand
	Log    *logrus.Logger
}

func (x *Crossover) Name() string {
	return "crossover"
}

// Cross edits a and b in place. It draws a field group and one building per
// side until a swap commits or the attempts run out.
func (x *Crossover) Cross(_ context.Context, a, b *model.Candidate) (Outcome, error) {
	if x == nil || x.Rand == nil {
		return Outcome{}, fmt.Errorf("random source is required")
	}
	ids := a.BuildingIDs()
	if len(ids) == 0 || len(ids) != len(b.Buildings) {
		return Outcome{}, fmt.Errorf("candidates %s and %s do not share their buildings", a.ID, b.ID)
	}
	for _, id := range ids {
		if _, ok := b.Buildings[id]; !ok {
			return Outcome{}, fmt.Errorf("candidates %s and %s do not share building %d", a.ID, b.ID, id)
		}
	}

	for attempt := 0; attempt < crossoverAttempts; attempt++ {
		group := crossoverGroups[x.Rand.Intn(len(crossoverGroups))]
		n1 := ids[x.Rand.Intn(len(ids))]
		n2 := ids[x.Rand.Intn(len(ids))]
		if swapped := swapFields(a, b, n1, n2, group); swapped != "" {
			x.Repair.Run(a, x.Rand)
			x.Repair.Run(b, x.Rand)
			return Outcome{Steps: []string{"cx(" + swapped + ")"}}, nil
		}
	}
	log := x.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"first":    a.ID,
		"second":   b.ID,
		"attempts": crossoverAttempts,
	}).Warn("crossover aborted without a swap")
	return Outcome{Exhausted: true}, nil
}

func swapFields(a, b *model.Candidate, n1, n2 model.BuildingID, group []model.Component) string {
	c1 := a.Buildings[n1]
	c2 := b.Buildings[n2]
	if len(group) > 1 {
		if c1 == c2 {
			return ""
		}
		a.SetConfig(n1, c2)
		b.SetConfig(n2, c1)
		return "esys"
	}
	comp := group[0]
	v1, v2 := c1.Get(comp), c2.Get(comp)
	switch comp {
	case model.PV, model.Battery:
		if v1 == v2 {
			return ""
		}
	default:
		if v1 == 0 || v2 == 0 || v1 == v2 {
			return ""
		}
	}
	a.Set(n1, comp, v2)
	b.Set(n2, comp, v1)
	return string(comp)
}

// CrossoverTournament pairs candidates for crossover: each round draws
// Participants candidates with replacement and crosses clones of the best two
// by crowded comparison with probability Prob.
type CrossoverTournament struct {
	Crossover    *Crossover
	Participants int
	Prob         float64
}

// Pair is one pair of tournament winners after the crossover step.
type Pair struct {
	First, Second *model.Candidate
	ParentA       string
	ParentB       string
	Outcome       Outcome
	Crossed       bool
}

func (t CrossoverTournament) Run(ctx context.Context, pop []*model.Candidate) ([]Pair, error) {
	if len(pop) == 0 {
		return nil, nil
	}
	rng := t.Crossover.Rand
	participants := t.Participants
	if participants < 2 {
		participants = 2
	}
	rounds := int(math.Round(float64(len(pop)) / 2))
	pairs := make([]Pair, 0, rounds)
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		drawn := make([]*model.Candidate, participants)
		for j := range drawn {
			drawn[j] = pop[rng.Intn(len(pop))]
		}
		winners := SelectNSGA2(drawn, 2)
		pair := Pair{
			First:   winners[0].Clone(),
			Second:  winners[1].Clone(),
			ParentA: winners[0].ID,
			ParentB: winners[1].ID,
		}
		if rng.Float64() < t.Prob {
			out, err := t.Crossover.Cross(ctx, pair.First, pair.Second)
			if err != nil {
				return nil, err
			}
			pair.Outcome = out
			pair.Crossed = true
			pair.First.InvalidateFitness()
			pair.Second.InvalidateFitness()
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
