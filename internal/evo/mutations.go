package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"districtevo/internal/model"
)

var ErrNoMutationChoice = errors.New("no mutation choice available")

const (
	engineBoth = iota
	engineLHN
	engineEsys
)

// MutationWeights are the weighted choices of the mutation engine.
type MutationWeights struct {
	// Engine weighs [lhn_and_esys, lhn, esys].
	Engine [3]float64 `json:"engine" yaml:"engine"`
	// LHNMode weighs [generate, modify]; generate is forced without network.
	LHNMode [2]float64 `json:"lhn_mode" yaml:"lhn_mode"`
	// Modify weighs the subnetwork edits by operator name.
	Modify map[string]float64 `json:"modify" yaml:"modify"`
	// EsysKind weighs [resize, switch] per building.
	EsysKind [2]float64 `json:"esys_kind" yaml:"esys_kind"`
}

func DefaultMutationWeights() MutationWeights {
	return MutationWeights{
		Engine:  [3]float64{0.3, 0.2, 0.5},
		LHNMode: [2]float64{0.3, 0.7},
		Modify: map[string]float64{
			"add_lhn_node":      0.1,
			"del_lhn_node":      0.1,
			"change_lhn_feeder": 0.1,
			"add_lhn_feeder":    0.1,
			"del_lhn_feeder":    0.1,
			"all_modes":         0.5,
		},
		EsysKind: [2]float64{0.6, 0.4},
	}
}

func (w MutationWeights) Validate() error {
	check := func(name string, values []float64) error {
		sum := 0.0
		for i, v := range values {
			if v < 0 {
				return fmt.Errorf("%s weight must be >= 0 at index %d", name, i)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			return fmt.Errorf("%s weights must sum to 1, got %g", name, sum)
		}
		return nil
	}
	if err := check("engine", w.Engine[:]); err != nil {
		return err
	}
	if err := check("lhn mode", w.LHNMode[:]); err != nil {
		return err
	}
	if err := check("esys kind", w.EsysKind[:]); err != nil {
		return err
	}
	modify := make([]float64, 0, len(w.Modify))
	for _, v := range w.Modify {
		modify = append(modify, v)
	}
	return check("lhn modify", modify)
}

// EsysMutation mutates every building: either resizing its present
// components or switching it to another archetype.
type EsysMutation struct {
	Env     *Env
	Rand    *rand.Rand
	Kind    [2]float64
	ProbMut float64
}

func (o *EsysMutation) Name() string {
	return "esys"
}

func (o *EsysMutation) Apply(_ context.Context, c *model.Candidate) (Outcome, error) {
	if o == nil || o.Rand == nil {
		return Outcome{}, errors.New("random source is required")
	}
	resized, switched := 0, 0
	for _, id := range c.BuildingIDs() {
		if pickIndex(o.Rand, o.Kind[:]) == 0 {
			o.Env.Gen.ResizeAttributes(c, id, o.ProbMut, o.Rand)
			resized++
			continue
		}
		o.Env.Gen.SwitchArchetype(c, id, o.Env.Options, o.Rand)
		switched++
	}
	out := Outcome{}
	if resized > 0 {
		out.add(fmt.Sprintf("resize(%d)", resized))
	}
	if switched > 0 {
		out.add(fmt.Sprintf("switch(%d)", switched))
	}
	return out, nil
}

// NewDistrictRegistry registers every district operator sharing env and rng.
func NewDistrictRegistry(env *Env, rng *rand.Rand, kind [2]float64, probMut float64) (*Registry, error) {
	r := NewRegistry()
	specs := []OperatorSpec{
		{Name: "connect_all", Operator: &ConnectAll{Env: env, Rand: rng}},
		{Name: "delete_network", Operator: &DeleteNetwork{Env: env, Rand: rng}, Compatible: requireLHN},
		{Name: "grow_subnetwork", Operator: &GrowSubnetwork{Env: env, Rand: rng}},
		{Name: "add_lhn_node", Operator: NewAddNode(env, rng), Compatible: requireLHN},
		{Name: "del_lhn_node", Operator: NewDelNode(env, rng), Compatible: requireLHN},
		{Name: "add_lhn_feeder", Operator: NewAddFeeder(env, rng), Compatible: requireLHN},
		{Name: "del_lhn_feeder", Operator: NewDelFeeder(env, rng), Compatible: requireLHN},
		{Name: "change_lhn_feeder", Operator: NewChangeFeeder(env, rng), Compatible: requireLHN},
		{Name: "all_modes", Operator: &AllModes{Env: env, Rand: rng}, Compatible: requireLHN},
		{Name: "esys", Operator: &EsysMutation{Env: env, Rand: rng, Kind: kind, ProbMut: probMut}},
	}
	for _, spec := range specs {
		if err := r.RegisterWithSpec(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MutationEngine is the full district mutation: a network step, an energy
// system step or both, each followed by the repair cascade.
type MutationEngine struct {
	env      *Env
	rng      *rand.Rand
	weights  MutationWeights
	useLHN   bool
	registry *Registry
	modify   []WeightedOperator
}

var generateOperators = [3]string{"connect_all", "delete_network", "grow_subnetwork"}

// MutationOperatorNames lists the operators a district registry offers, in
// name order. These are the keys MutationWeights.Modify may refer to.
func MutationOperatorNames() []string {
	r, err := NewDistrictRegistry(&Env{}, nil, [2]float64{1, 0}, 0)
	if err != nil {
		return nil
	}
	return r.List()
}

// NewMutationEngine resolves the configured operators from a district
// registry bound to env and rng.
func NewMutationEngine(env *Env, rng *rand.Rand, weights MutationWeights, probMut float64, useLHN bool) (*MutationEngine, error) {
	if env == nil || env.Gen == nil || env.Repair == nil {
		return nil, fmt.Errorf("mutation environment requires generator and repairer")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if probMut < 0 || probMut > 1 {
		return nil, fmt.Errorf("attribute mutation probability must be in [0, 1]")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	registry, err := NewDistrictRegistry(env, rng, weights.EsysKind, probMut)
	if err != nil {
		return nil, err
	}
	m := &MutationEngine{env: env, rng: rng, weights: weights, useLHN: useLHN, registry: registry}
	for _, name := range append(generateOperators[:], "esys") {
		if _, err := registry.Lookup(name); err != nil {
			return nil, err
		}
	}
	if m.modify, err = registry.Weighted(weights.Modify); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MutationEngine) Name() string {
	return "mutate"
}

func (m *MutationEngine) Registry() *Registry {
	return m.registry
}

func (m *MutationEngine) Apply(ctx context.Context, c *model.Candidate) (Outcome, error) {
	choice := pickIndex(m.rng, m.weights.Engine[:])
	doLHN := m.useLHN && choice != engineEsys
	doEsys := !doLHN || choice == engineBoth

	out := Outcome{}
	if doLHN {
		step, err := m.mutateLHN(ctx, c)
		if err != nil {
			return Outcome{}, err
		}
		out.merge(step)
		m.env.Repair.Run(c, m.rng)
	}
	if doEsys {
		op, err := m.registry.Resolve("esys", c)
		if err != nil {
			return Outcome{}, err
		}
		step, err := op.Apply(ctx, c)
		if err != nil {
			return Outcome{}, err
		}
		out.merge(step)
		m.env.Repair.Run(c, m.rng)
	}
	return out, nil
}

// generateWeights weighs [connect_all, delete_network, grow_subnetwork] by
// the current topology.
func generateWeights(c *model.Candidate) []float64 {
	buildings := len(c.Buildings)
	switch {
	case len(c.LHN) == 0:
		return []float64{0.3, 0, 0.7}
	case len(c.LHN) < buildings-1 && len(c.LHN[0]) != buildings:
		return []float64{0.1, 0.4, 0.5}
	case len(c.LHN[0]) == buildings:
		return []float64{0, 1, 0}
	default:
		return []float64{0.2, 0.4, 0.4}
	}
}

func (m *MutationEngine) mutateLHN(ctx context.Context, c *model.Candidate) (Outcome, error) {
	generate := len(c.LHN) == 0 || pickIndex(m.rng, m.weights.LHNMode[:]) == 0
	if generate {
		name := generateOperators[pickIndex(m.rng, generateWeights(c))]
		op, err := m.registry.Resolve(name, c)
		if errors.Is(err, ErrOperatorIncompatible) {
			return Outcome{}, fmt.Errorf("%w: %v", ErrNoMutationChoice, err)
		}
		if err != nil {
			return Outcome{}, err
		}
		return op.Apply(ctx, c)
	}
	policy, err := m.registry.Compatible(m.modify, c)
	if err != nil {
		return Outcome{}, err
	}
	op := chooseOperator(m.rng, policy)
	if op == nil {
		return Outcome{}, ErrNoMutationChoice
	}
	return op.Apply(ctx, c)
}

func chooseOperator(rng *rand.Rand, policy []WeightedOperator) Operator {
	if len(policy) == 0 {
		return nil
	}
	total := 0.0
	for _, item := range policy {
		total += item.Weight
	}
	if total <= 0 {
		return nil
	}
	pick := rng.Float64() * total
	acc := 0.0
	for _, item := range policy {
		acc += item.Weight
		if pick <= acc {
			return item.Operator
		}
	}
	return policy[len(policy)-1].Operator
}
