package repair

import (
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"districtevo/internal/esys"
	"districtevo/internal/model"
	"districtevo/internal/refdata"
)

func testRepairer(preventBoilerLHN bool) *Repairer {
	ids := []model.BuildingID{1, 2, 3, 4}
	ref := &refdata.Reference{
		Catalog:        refdata.NewCatalog(refdata.DefaultMaxima()),
		PVAreaLimit:    map[model.BuildingID]float64{},
		HeatLoad:       map[model.BuildingID]float64{},
		PeakSpacePower: map[model.BuildingID]float64{},
		Positions:      map[model.BuildingID]refdata.Position{},
	}
	for i, id := range ids {
		ref.PVAreaLimit[id] = 30
		ref.HeatLoad[id] = 10000 * float64(i+1)
		ref.PeakSpacePower[id] = 8000 * float64(i+1)
		ref.Positions[id] = refdata.Position{X: float64(i)}
	}
	log, _ := test.NewNullLogger()
	gen := esys.NewGenerator(ref, esys.DefaultSettings(), log)
	return New(gen, preventBoilerLHN, log)
}

func assertValid(t *testing.T, r *Repairer, c *model.Candidate) {
	t.Helper()
	if v := r.Validate(c); len(v) != 0 {
		t.Fatalf("expected valid candidate, got violations %+v", v)
	}
	for _, id := range c.StandAloneIDs() {
		if !c.HasThermalSupply(id) {
			t.Fatalf("stand-alone building %d without thermal supply", id)
		}
	}
	for idx, subnet := range c.LHN {
		if len(subnet) < 2 {
			t.Fatalf("subnet %d has %d members", idx, len(subnet))
		}
		if len(c.Feeders(idx)) == 0 {
			t.Fatalf("subnet %d has no feeder", idx)
		}
		for _, id := range subnet {
			cfg, _ := c.Config(id)
			if cfg.HasHeatPump() {
				t.Fatalf("heat pump inside subnet %d at building %d", idx, id)
			}
		}
	}
	for _, id := range c.BuildingIDs() {
		cfg, _ := c.Config(id)
		if cfg.CHP > 0 && cfg.HasHeatPump() {
			t.Fatalf("chp and heat pump at building %d", id)
		}
		if cfg.Bat > 0 && cfg.CHP == 0 && cfg.PV == 0 {
			t.Fatalf("orphan battery at building %d", id)
		}
		if cfg.PV > 30 {
			t.Fatalf("pv above limit at building %d", id)
		}
	}
}

func TestRunRepairsEveryRule(t *testing.T) {
	r := testRepairer(false)
	c := model.NewCandidate("broken", map[model.BuildingID]model.EsysConfig{
		1: {PV: 80, Bat: refdata.JoulePerKWh},
		2: {CHP: 5000, HPAW: 10000},
		3: {HPWW: 10000, EH: 5000},
		4: {},
	}, model.Topology{{3, 4}, {2}})

	if len(r.Validate(c)) == 0 {
		t.Fatal("expected violations before repair")
	}
	violations := r.Run(c, rand.New(rand.NewSource(1)))
	if len(violations) == 0 {
		t.Fatal("expected repair to report violations")
	}
	assertValid(t, r, c)
	if len(c.LHN) != 0 {
		t.Fatalf("expected degenerate subnets removed, got %v", c.LHN)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	r := testRepairer(true)
	rng := rand.New(rand.NewSource(2))
	for trial := 0; trial < 20; trial++ {
		c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{
			1: {},
			2: {HPAW: 10000},
			3: {},
			4: {Bat: refdata.JoulePerKWh},
		}, model.Topology{{1, 2, 3, 4}})
		r.Run(c, rng)
		assertValid(t, r, c)

		before := c.Fingerprint()
		if again := r.Run(c, rng); len(again) != 0 {
			t.Fatalf("expected second run to be a no-op, got %+v", again)
		}
		if c.Fingerprint() != before {
			t.Fatal("expected second run to leave candidate unchanged")
		}
	}
}

func TestSingletonSubnetIsDropped(t *testing.T) {
	r := testRepairer(false)
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{
		1: {Boi: 20000},
		2: {Boi: 20000},
		3: {Boi: 30000},
	}, model.Topology{{1}, {2, 3}})

	r.Run(c, rand.New(rand.NewSource(3)))
	if len(c.LHN) != 1 || len(c.LHN[0]) != 2 {
		t.Fatalf("expected only the two-member subnet, got %v", c.LHN)
	}
}

func TestFeederInstalledAtHighestDemandMember(t *testing.T) {
	r := testRepairer(false)
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{
		1: {},
		2: {},
		3: {},
	}, model.Topology{{1, 2, 3}})

	r.Run(c, rand.New(rand.NewSource(4)))
	feeders := c.Feeders(0)
	if len(feeders) != 1 || feeders[0] != 3 {
		t.Fatalf("expected feeder at building 3, got %v", feeders)
	}
	cfg, _ := c.Config(3)
	if cfg.Boi < SharedDemand(r.Gen, c.LHN[0]) {
		t.Fatalf("expected feeder boiler to cover shared demand, got %v", cfg.Boi)
	}
}

func TestPreventBoilerLHNInstallsCHP(t *testing.T) {
	r := testRepairer(true)
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{
		1: {Boi: 50000},
		2: {Boi: 20000, TES: 500},
	}, model.Topology{{1, 2}})

	r.Run(c, rand.New(rand.NewSource(5)))
	if c.Get(2, model.CHP) == 0 {
		t.Fatal("expected chp at highest demand member")
	}
	if c.HasThermalSupply(1) {
		t.Fatal("expected other members without thermal supply")
	}
}

func TestValidateDoesNotModify(t *testing.T) {
	r := testRepairer(false)
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{1: {}, 2: {PV: 99}}, nil)
	before := c.Fingerprint()

	v := r.Validate(c)
	if len(v) != 3 {
		t.Fatalf("expected three violations, got %+v", v)
	}
	if c.Fingerprint() != before {
		t.Fatal("expected validate to leave candidate untouched")
	}
}
