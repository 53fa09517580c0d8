package esys

import (
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"districtevo/internal/model"
	"districtevo/internal/refdata"
)

func testReference() *refdata.Reference {
	return &refdata.Reference{
		Catalog:        refdata.NewCatalog(refdata.DefaultMaxima()),
		PVAreaLimit:    map[model.BuildingID]float64{1: 20, 2: 5},
		HeatLoad:       map[model.BuildingID]float64{1: 25000, 2: 8000},
		PeakSpacePower: map[model.BuildingID]float64{1: 15000, 2: 6000},
		Positions:      map[model.BuildingID]refdata.Position{1: {}, 2: {X: 10}},
	}
}

func testGenerator(t *testing.T) (*Generator, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.WarnLevel)
	return NewGenerator(testReference(), DefaultSettings(), log), hook
}

func TestRenormalizeZeroesDisabledAndSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tech := AllTechnologies()
	tech.Battery = false
	tech.HPAW = false
	tech.PreventCHPHeater = true

	out := Renormalize(DefaultStandAlone(), tech, rng)
	for _, opt := range []Option{OptBattery, OptHPAWHeater, OptHPAWBoiler, OptHPAWBoilerHeater, OptCHPBoilerHeaterTES} {
		if w := out.Weight(opt); w != 0 {
			t.Fatalf("expected %s disabled, got %v", opt, w)
		}
	}
	if sum := out.Sum(); math.Abs(sum-1) > 1e-3 {
		t.Fatalf("expected weights to sum to 1, got %v", sum)
	}
	if out.Weight(OptBoiler) < 0.1 {
		t.Fatalf("expected enabled weights never to shrink, got %v", out.Weight(OptBoiler))
	}
}

func TestRenormalizeNetworkHonoursOnlyBatteryAndPV(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	tech := AllTechnologies()
	tech.CHP = false
	tech.PV = false

	out := RenormalizeNetwork(DefaultNetwork(), tech, rng)
	if out.Weight(OptPV) != 0 {
		t.Fatalf("expected pv disabled, got %v", out.Weight(OptPV))
	}
	if out.Weight(OptCHPBoilerTES) < 0.1 {
		t.Fatalf("expected chp option untouched by network renormalization, got %v", out.Weight(OptCHPBoilerTES))
	}
	if sum := out.Sum(); math.Abs(sum-1) > 1e-3 {
		t.Fatalf("expected weights to sum to 1, got %v", sum)
	}
}

func TestNewOptionSetDerivesDemotionList(t *testing.T) {
	set, err := NewOptionSet(nil, nil, AllTechnologies(), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("new option set: %v", err)
	}
	if set.Demotion.Weight(OptBattery) != 0 || set.Demotion.Weight(OptPV) != 0 {
		t.Fatalf("expected demotion list without battery and pv, got %+v", set.Demotion)
	}
	if set.StandAlone.Weight(OptPV) == 0 {
		t.Fatal("expected stand-alone list to keep pv")
	}

	if _, err := NewOptionSet(Weights{{OptBoiler, 0.5}}, nil, AllTechnologies(), rand.New(rand.NewSource(3))); err == nil {
		t.Fatal("expected error for weights not summing to 1")
	}
}

func TestWeightsPickSkipsZeroWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	w := Weights{{OptBoiler, 0}, {OptPV, 1}, {OptBattery, 0}}
	for i := 0; i < 50; i++ {
		if got := w.Pick(rng); got != OptPV {
			t.Fatalf("expected pv, got %s", got)
		}
	}
}

func TestGenerateBoilerOnly(t *testing.T) {
	g, _ := testGenerator(t)
	rng := rand.New(rand.NewSource(5))
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{
		1: {CHP: 5000, TES: 300, EH: 5000, Bat: refdata.JoulePerKWh},
	}, nil)

	g.Generate(c, 1, OptBoiler, 0, rng)
	cfg, _ := c.Config(1)
	if cfg.Boi < 25000 {
		t.Fatalf("expected boiler to cover heat load, got %v", cfg.Boi)
	}
	if cfg.CHP != 0 || cfg.TES != 0 || cfg.EH != 0 || cfg.HasHeatPump() {
		t.Fatalf("expected boiler-only configuration, got %+v", cfg)
	}
	if cfg.Bat != 0 {
		t.Fatalf("expected orphan battery removed, got %v", cfg.Bat)
	}
	if c.Fitness.Valid {
		t.Fatal("expected fitness invalidated")
	}
}

func TestGenerateFeederMeetsFloor(t *testing.T) {
	g, _ := testGenerator(t)
	rng := rand.New(rand.NewSource(6))
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{1: {}, 2: {}}, model.Topology{{1, 2}})

	g.Generate(c, 1, OptCHPBoilerTES, 33000, rng)
	cfg, _ := c.Config(1)
	if cfg.Boi < 33000 {
		t.Fatalf("expected feeder boiler >= floor, got %v", cfg.Boi)
	}
	if cfg.TES < 1000 {
		t.Fatalf("expected feeder storage >= 1000, got %v", cfg.TES)
	}
	if cfg.CHP <= 0 || cfg.CHP > 15000 {
		t.Fatalf("expected chp limited by peak space power, got %v", cfg.CHP)
	}
}

func TestTogglePVRespectsAreaLimit(t *testing.T) {
	g, hook := testGenerator(t)
	rng := rand.New(rand.NewSource(7))
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{1: {}, 2: {}}, nil)

	g.TogglePV(c, 1, rng)
	if pv := c.Get(1, model.PV); pv < 8 || pv > 20 {
		t.Fatalf("expected pv in [8, 20], got %v", pv)
	}
	g.TogglePV(c, 1, rng)
	if pv := c.Get(1, model.PV); pv != 0 {
		t.Fatalf("expected pv removed, got %v", pv)
	}

	g.TogglePV(c, 2, rng)
	if pv := c.Get(2, model.PV); pv != 0 {
		t.Fatalf("expected no pv below minimum area, got %v", pv)
	}
	if len(hook.Entries) == 0 {
		t.Fatal("expected warning for too small roof")
	}
}

func TestToggleBatteryNeedsCharger(t *testing.T) {
	g, _ := testGenerator(t)
	rng := rand.New(rand.NewSource(8))
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{1: {Boi: 30000}, 2: {CHP: 5000}}, nil)

	g.ToggleBattery(c, 1, rng)
	if c.Get(1, model.Battery) != 0 {
		t.Fatal("expected no battery without chp or pv")
	}
	g.ToggleBattery(c, 2, rng)
	if c.Get(2, model.Battery) == 0 {
		t.Fatal("expected battery next to chp")
	}
}

func TestResizeAttributesKeepsPresenceAndExclusions(t *testing.T) {
	g, _ := testGenerator(t)
	rng := rand.New(rand.NewSource(9))
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{
		1: {Boi: 30000, HPAW: 15000, TES: 500, PV: 10},
	}, nil)

	for i := 0; i < 20; i++ {
		g.ResizeAttributes(c, 1, 1, rng)
		cfg, _ := c.Config(1)
		if cfg.Boi < 25000 || cfg.HPAW < 15000 || cfg.TES == 0 || cfg.PV < 8 || cfg.PV > 20 {
			t.Fatalf("unexpected resize result %+v", cfg)
		}
		if cfg.CHP != 0 || cfg.HPWW != 0 || cfg.EH != 0 || cfg.Bat != 0 {
			t.Fatalf("expected absent components to stay absent, got %+v", cfg)
		}
	}
}

func TestSwitchArchetypeUsesNetworkListForMembers(t *testing.T) {
	g, _ := testGenerator(t)
	rng := rand.New(rand.NewSource(10))
	c := model.NewCandidate("c", map[model.BuildingID]model.EsysConfig{1: {Boi: 30000}, 2: {}}, model.Topology{{1, 2}})
	options := OptionSet{
		StandAlone: Weights{{OptBoiler, 1}},
		Network:    Weights{{OptNoThermalSupply, 1}},
	}

	if got := g.SwitchArchetype(c, 1, options, rng); got != OptNoThermalSupply {
		t.Fatalf("expected network option, got %s", got)
	}
	if c.HasThermalSupply(1) {
		t.Fatal("expected thermal supply removed")
	}
}
