package esys

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"districtevo/internal/model"
	"districtevo/internal/refdata"
)

const (
	sizingRetries  = 100
	feederMinTES   = 1000
	chpMinTES      = 500
	heatPumpMinTES = 300
)

// Settings are the per-run sizing and toggle parameters.
type Settings struct {
	PVMin          float64      `json:"pv_min" yaml:"pv_min"`
	PVStep         float64      `json:"pv_step" yaml:"pv_step"`
	AddPVProb      float64      `json:"add_pv_prop" yaml:"add_pv_prop"`
	AddBatteryProb float64      `json:"add_bat_prob" yaml:"add_bat_prob"`
	Tech           Technologies `json:"tech" yaml:"tech"`
}

func DefaultSettings() Settings {
	return Settings{
		PVMin:     8,
		PVStep:    1,
		AddPVProb: 0.2,
		Tech:      AllTechnologies(),
	}
}

// Generator sizes and switches building energy systems against the shared
// reference data. It holds no mutable state and is safe to share.
type Generator struct {
	Ref      *refdata.Reference
	Settings Settings
	Log      *logrus.Logger
}

func NewGenerator(ref *refdata.Reference, settings Settings, log *logrus.Logger) *Generator {
	if log == nil {
		log = logrus.New()
	}
	if settings.PVStep <= 0 {
		settings.PVStep = 1
	}
	if !settings.Tech.PV {
		settings.AddPVProb = 0
	}
	if !settings.Tech.Battery {
		settings.AddBatteryProb = 0
	}
	return &Generator{Ref: ref, Settings: settings, Log: log}
}

func (g *Generator) warn(id model.BuildingID, comp model.Component, msg string) {
	g.Log.WithFields(logrus.Fields{
		"building":  id,
		"component": comp,
	}).Warn(msg)
}

func pick(rng *rand.Rand, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[rng.Intn(len(values))]
}

// BoilerSizes lists boiler sizes covering the building's heat load.
func (g *Generator) BoilerSizes(id model.BuildingID) []float64 {
	all := g.Ref.Catalog.Sizes(model.Boiler)
	load, ok := g.Ref.HeatLoadOf(id)
	if !ok {
		return all
	}
	out, fits := refdata.AtLeast(all, load)
	if !fits {
		g.warn(id, model.Boiler, "no boiler size covers the heat load, using the largest")
	}
	return out
}

// CHPSizes lists CHP sizes not exceeding the building's peak space power.
func (g *Generator) CHPSizes(id model.BuildingID) []float64 {
	all := g.Ref.Catalog.Sizes(model.CHP)
	peak, ok := g.Ref.PeakSpacePowerOf(id)
	if !ok {
		return all
	}
	out, fits := refdata.AtMost(all, peak)
	if !fits {
		g.warn(id, model.CHP, "no chp size below the peak space power, using the smallest")
	}
	return out
}

// HeatPumpSizes lists heat pump sizes covering the peak space power.
func (g *Generator) HeatPumpSizes(id model.BuildingID, comp model.Component) []float64 {
	all := g.Ref.Catalog.Sizes(comp)
	peak, ok := g.Ref.PeakSpacePowerOf(id)
	if !ok {
		return all
	}
	out, fits := refdata.AtLeast(all, peak)
	if !fits {
		g.warn(id, comp, "no heat pump size covers the peak space power, using the largest")
	}
	return out
}

func (g *Generator) storageSizes(id model.BuildingID, floor float64) []float64 {
	all := g.Ref.Catalog.Sizes(model.ThermalStorage)
	if !g.Ref.HasPeakSpacePower() {
		return all
	}
	out, fits := refdata.AtLeast(all, floor)
	if !fits {
		g.warn(id, model.ThermalStorage, "no storage size above the minimum volume, using the largest")
	}
	return out
}

// PVChoices lists the admissible PV areas for a building.
func (g *Generator) PVChoices(id model.BuildingID) []float64 {
	return refdata.PVChoices(g.Settings.PVMin, g.Settings.PVStep, g.Ref.PVAreaLimit[id])
}

// Generate installs one archetype on building id. feederFloor > 0 marks the
// building as a network feeder that must cover that shared demand: the
// boiler is redrawn until it reaches the floor, the storage until 1000 l and
// the CHP until it stays below the floor, each up to 100 times.
func (g *Generator) Generate(c *model.Candidate, id model.BuildingID, opt Option, feederFloor float64, rng *rand.Rand) {
	cfg, _ := c.Config(id)
	next := model.EsysConfig{PV: cfg.PV, Bat: cfg.Bat}
	catalog := g.Ref.Catalog

	switch opt {
	case OptBoiler:
		next.Boi = pick(rng, g.BoilerSizes(id))
	case OptBoilerTES:
		next.Boi = pick(rng, g.BoilerSizes(id))
		next.TES = pick(rng, catalog.Sizes(model.ThermalStorage))
	case OptCHPBoilerTES, OptCHPBoilerHeaterTES:
		boi := g.BoilerSizes(id)
		chp := g.CHPSizes(id)
		tes := g.storageSizes(id, chpMinTES)
		next.Boi = pick(rng, boi)
		next.CHP = pick(rng, chp)
		if opt == OptCHPBoilerHeaterTES {
			next.EH = pick(rng, catalog.Sizes(model.ElectricHeater))
		}
		next.TES = pick(rng, tes)
		if feederFloor > 0 {
			next.Boi = g.redraw(id, model.Boiler, next.Boi, boi, rng, func(v float64) bool { return v >= feederFloor })
			next.TES = g.redraw(id, model.ThermalStorage, next.TES, tes, rng, func(v float64) bool { return v >= feederMinTES })
			next.CHP = g.redraw(id, model.CHP, next.CHP, chp, rng, func(v float64) bool { return v <= feederFloor })
		}
	case OptBoilerFeeder:
		boi := g.BoilerSizes(id)
		tes := g.storageSizes(id, chpMinTES)
		next.Boi = pick(rng, boi)
		next.TES = pick(rng, tes)
		if feederFloor > 0 {
			next.Boi = g.redraw(id, model.Boiler, next.Boi, boi, rng, func(v float64) bool { return v >= feederFloor })
			next.TES = g.redraw(id, model.ThermalStorage, next.TES, tes, rng, func(v float64) bool { return v >= feederMinTES })
		}
	case OptHPAWHeater:
		next.HPAW = pick(rng, g.HeatPumpSizes(id, model.HeatPumpAirWater))
		next.EH = pick(rng, catalog.Sizes(model.ElectricHeater))
		next.TES = pick(rng, g.storageSizes(id, heatPumpMinTES))
	case OptHPWWHeater:
		next.HPWW = pick(rng, g.HeatPumpSizes(id, model.HeatPumpWaterWater))
		next.EH = pick(rng, catalog.Sizes(model.ElectricHeater))
		next.TES = pick(rng, g.storageSizes(id, heatPumpMinTES))
	case OptHPAWBoiler, OptHPAWBoilerHeater:
		next.Boi = pick(rng, catalog.Sizes(model.Boiler))
		next.HPAW = pick(rng, catalog.Sizes(model.HeatPumpAirWater))
		if opt == OptHPAWBoilerHeater {
			next.EH = pick(rng, catalog.Sizes(model.ElectricHeater))
		}
		next.TES = pick(rng, catalog.Sizes(model.ThermalStorage))
	case OptHPWWBoiler, OptHPWWBoilerHeater:
		next.Boi = pick(rng, catalog.Sizes(model.Boiler))
		next.HPWW = pick(rng, catalog.Sizes(model.HeatPumpWaterWater))
		if opt == OptHPWWBoilerHeater {
			next.EH = pick(rng, catalog.Sizes(model.ElectricHeater))
		}
		next.TES = pick(rng, catalog.Sizes(model.ThermalStorage))
	case OptBattery:
		g.ToggleBattery(c, id, rng)
		return
	case OptPV:
		g.TogglePV(c, id, rng)
		return
	case OptNoThermalSupply:
		g.SetThermalOff(c, id)
		return
	default:
		return
	}
	if next.PV == 0 && next.CHP == 0 {
		next.Bat = 0
	}
	c.SetConfig(id, next)
}

func (g *Generator) redraw(id model.BuildingID, comp model.Component, current float64, values []float64, rng *rand.Rand, ok func(float64) bool) float64 {
	for count := 0; !ok(current); count++ {
		if count == sizingRetries {
			g.warn(id, comp, "could not size component for the network demand, keeping last draw")
			break
		}
		current = pick(rng, values)
	}
	return current
}

// ToggleBattery installs a battery when CHP or PV can charge it and removes
// an existing one.
func (g *Generator) ToggleBattery(c *model.Candidate, id model.BuildingID, rng *rand.Rand) {
	if !g.Settings.Tech.Battery {
		return
	}
	cfg, _ := c.Config(id)
	if cfg.Bat > 0 {
		c.Set(id, model.Battery, 0)
		return
	}
	if cfg.CHP > 0 || cfg.PV > 0 {
		c.Set(id, model.Battery, pick(rng, g.Ref.Catalog.Sizes(model.Battery)))
	}
}

// TogglePV installs a PV area drawn from the admissible range or removes an
// existing one.
func (g *Generator) TogglePV(c *model.Candidate, id model.BuildingID, rng *rand.Rand) {
	if !g.Settings.Tech.PV {
		return
	}
	if c.Get(id, model.PV) > 0 {
		c.Set(id, model.PV, 0)
		return
	}
	choices := g.PVChoices(id)
	if len(choices) == 0 {
		g.warn(id, model.PV, "pv area limit below minimum pv size")
		return
	}
	c.Set(id, model.PV, pick(rng, choices))
}

// SetThermalOff removes every thermal device of building id.
func (g *Generator) SetThermalOff(c *model.Candidate, id model.BuildingID) {
	cfg, _ := c.Config(id)
	cfg.ClearThermal()
	c.SetConfig(id, cfg)
}

// SwitchArchetype replaces the building's configuration with an archetype
// drawn from the network or stand-alone list, depending on whether the
// building is connected, then toggles PV and battery with the configured
// add probabilities.
func (g *Generator) SwitchArchetype(c *model.Candidate, id model.BuildingID, options OptionSet, rng *rand.Rand) Option {
	weights := options.StandAlone
	if c.IsConnected(id) {
		weights = options.Network
	}
	return g.SwitchWith(c, id, weights, 0, rng)
}

// SwitchWith is SwitchArchetype with an explicit option list and feeder floor.
func (g *Generator) SwitchWith(c *model.Candidate, id model.BuildingID, weights Weights, feederFloor float64, rng *rand.Rand) Option {
	opt := weights.Pick(rng)
	g.Generate(c, id, opt, feederFloor, rng)

	addPV := g.Settings.AddPVProb
	if opt == OptPV {
		addPV = 0
	}
	if g.Settings.Tech.PV && rng.Float64() < addPV {
		g.TogglePV(c, id, rng)
	}
	cfg, _ := c.Config(id)
	if g.Settings.Tech.Battery && (cfg.CHP > 0 || cfg.PV > 0) && rng.Float64() < g.Settings.AddBatteryProb {
		g.ToggleBattery(c, id, rng)
	}
	return opt
}

// ResizeAttributes redraws each present component with probability prob,
// keeping the device exclusions and demand filters.
func (g *Generator) ResizeAttributes(c *model.Candidate, id model.BuildingID, prob float64, rng *rand.Rand) {
	cfg, ok := c.Config(id)
	if !ok {
		return
	}
	catalog := g.Ref.Catalog

	if rng.Float64() < prob && cfg.Boi > 0 {
		cfg.Boi = pick(rng, g.BoilerSizes(id))
	}
	if rng.Float64() < prob && cfg.CHP > 0 && !cfg.HasHeatPump() {
		cfg.CHP = pick(rng, g.CHPSizes(id))
	}
	if rng.Float64() < prob && cfg.HPAW > 0 && cfg.HPWW == 0 && cfg.CHP == 0 {
		cfg.HPAW = pick(rng, g.HeatPumpSizes(id, model.HeatPumpAirWater))
	}
	if rng.Float64() < prob && cfg.HPWW > 0 && cfg.HPAW == 0 && cfg.CHP == 0 {
		cfg.HPWW = pick(rng, g.HeatPumpSizes(id, model.HeatPumpWaterWater))
	}
	if rng.Float64() < prob && cfg.EH > 0 {
		cfg.EH = pick(rng, catalog.Sizes(model.ElectricHeater))
	}
	if rng.Float64() < prob && cfg.TES > 0 && (cfg.Boi > 0 || cfg.CHP > 0 || cfg.HasHeatPump()) {
		cfg.TES = pick(rng, catalog.Sizes(model.ThermalStorage))
	}
	if rng.Float64() < prob && cfg.PV > 0 {
		cfg.PV = pick(rng, g.PVChoices(id))
	}
	if rng.Float64() < prob && cfg.Bat > 0 {
		cfg.Bat = pick(rng, catalog.Sizes(model.Battery))
	}
	c.SetConfig(id, cfg)
}
