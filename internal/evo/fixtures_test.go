package evo

import (
	"context"
	"hash/fnv"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"districtevo/internal/esys"
	"districtevo/internal/model"
	"districtevo/internal/oracle"
	"districtevo/internal/refdata"
	"districtevo/internal/repair"
)

func testReference(n int) *refdata.Reference {
	ref := &refdata.Reference{
		Catalog:        refdata.NewCatalog(refdata.DefaultMaxima()),
		PVAreaLimit:    map[model.BuildingID]float64{},
		HeatLoad:       map[model.BuildingID]float64{},
		PeakSpacePower: map[model.BuildingID]float64{},
		Positions:      map[model.BuildingID]refdata.Position{},
	}
	for i := 0; i < n; i++ {
		id := model.BuildingID(i + 1)
		ref.PVAreaLimit[id] = 30
		ref.HeatLoad[id] = 10000 * float64(i%4+1)
		ref.PeakSpacePower[id] = 8000 * float64(i%4+1)
		ref.Positions[id] = refdata.Position{X: float64(i%3) * 20, Y: float64(i/3) * 20}
	}
	return ref
}

func testEnv(t *testing.T, n int) (*Env, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	gen := esys.NewGenerator(testReference(n), esys.DefaultSettings(), log)
	return &Env{
		Gen:     gen,
		Repair:  repair.New(gen, false, log),
		Options: esys.DefaultOptionSet(),
		LHN:     DefaultLHNSettings(),
		Log:     log,
	}, hook
}

func boilerDistrict(n int) *model.Candidate {
	buildings := make(map[model.BuildingID]model.EsysConfig, n)
	for i := 0; i < n; i++ {
		buildings[model.BuildingID(i+1)] = model.EsysConfig{Boi: 40000}
	}
	return model.NewCandidate("base", buildings, nil)
}

func scored(id string, values ...float64) *model.Candidate {
	h := fnv.New32a()
	h.Write([]byte(id))
	c := model.NewCandidate(id, map[model.BuildingID]model.EsysConfig{1: {Boi: float64(h.Sum32()%100000 + 1)}}, nil)
	dirs := make([]model.Direction, len(values))
	c.Fitness = model.NewFitness(values, dirs)
	return c
}

func assertRepaired(t *testing.T, env *Env, c *model.Candidate) {
	t.Helper()
	if v := env.Repair.Validate(c); len(v) != 0 {
		t.Fatalf("candidate %s violates constraints: %+v", c.ID, v)
	}
	for idx, subnet := range c.LHN {
		if len(subnet) < 2 {
			t.Fatalf("subnet %d of %s has %d members", idx, c.ID, len(subnet))
		}
	}
}

// objectiveOracle scores annuity by installed capacity and emissions by the
// number of stand-alone buildings, so the two axes conflict.
func objectiveOracle() oracle.Func {
	return func(_ context.Context, c *model.Candidate, strategy oracle.Strategy, _ *oracle.RunContext) (oracle.Vector, error) {
		capacity := 0.0
		for _, cfg := range c.Buildings {
			for _, comp := range cfg.ActiveComponents() {
				capacity += cfg.Get(comp)
			}
		}
		values := oracle.Vector{capacity / 1000, float64(len(c.StandAloneIDs())) + 1}
		if strategy.Dimensions() == 3 {
			values = append(values, float64(len(c.LHN)))
		}
		return values, nil
	}
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
