package repair

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"districtevo/internal/esys"
	"districtevo/internal/model"
	"districtevo/internal/refdata"
)

// Step names one rule of the validity cascade.
type Step string

const (
	StepPVLimit          Step = "pv_limit"
	StepStandAloneSupply Step = "stand_alone_supply"
	StepCHPHeatPump      Step = "chp_heat_pump"
	StepOrphanBattery    Step = "orphan_battery"
	StepHeatPumpInLHN    Step = "heat_pump_in_lhn"
	StepSubnetSize       Step = "subnet_size"
	StepFeeder           Step = "feeder"
	StepCHPInLHN         Step = "chp_in_lhn"
)

// Violation is one broken rule found on a candidate. Subnet is -1 for
// building level rules.
type Violation struct {
	Step     Step             `json:"step"`
	Building model.BuildingID `json:"building"`
	Subnet   int              `json:"subnet"`
}

const maxPasses = 4

// Repairer runs the ordered validity cascade. With rng == nil it only
// reports.
type Repairer struct {
	Gen              *esys.Generator
	PreventBoilerLHN bool
	Log              *logrus.Logger
}

func New(gen *esys.Generator, preventBoilerLHN bool, log *logrus.Logger) *Repairer {
	if log == nil {
		log = gen.Log
	}
	return &Repairer{Gen: gen, PreventBoilerLHN: preventBoilerLHN, Log: log}
}

// Run corrects c in place. Structural fixes can expose new violations, so
// the cascade repeats until a pass is clean. It returns every violation that
// was corrected.
func (r *Repairer) Run(c *model.Candidate, rng *rand.Rand) []Violation {
	var all []Violation
	for pass := 0; pass < maxPasses; pass++ {
		found := r.pass(c, rng)
		if len(found) == 0 {
			return all
		}
		for _, v := range found {
			r.Log.WithFields(logrus.Fields{
				"step":     v.Step,
				"building": v.Building,
				"subnet":   v.Subnet,
			}).Warn("repaired invalid candidate")
		}
		all = append(all, found...)
	}
	if rest := r.Validate(c); len(rest) > 0 {
		r.Log.WithFields(logrus.Fields{
			"candidate":  c.ID,
			"violations": len(rest),
		}).Warn("candidate still invalid after repair")
	}
	return all
}

// Validate reports the violations of c without changing it.
func (r *Repairer) Validate(c *model.Candidate) []Violation {
	probe := c.Clone()
	return r.pass(probe, nil)
}

func (r *Repairer) pass(c *model.Candidate, rng *rand.Rand) []Violation {
	var out []Violation
	out = append(out, r.clampPV(c, rng != nil)...)
	out = append(out, r.standAloneSupply(c, rng)...)
	out = append(out, r.chpWithHeatPump(c, rng)...)
	out = append(out, orphanBattery(c, rng != nil)...)
	out = append(out, heatPumpInLHN(c, rng != nil)...)
	out = append(out, subnetSize(c, rng != nil)...)
	out = append(out, r.feeder(c, rng)...)
	if r.PreventBoilerLHN {
		out = append(out, r.chpInLHN(c, rng)...)
	}
	return out
}

func (r *Repairer) clampPV(c *model.Candidate, fix bool) []Violation {
	var out []Violation
	settings := r.Gen.Settings
	for _, id := range c.BuildingIDs() {
		limit := r.Gen.Ref.PVAreaLimit[id]
		pv := c.Get(id, model.PV)
		if pv <= limit {
			continue
		}
		out = append(out, Violation{Step: StepPVLimit, Building: id, Subnet: -1})
		if fix {
			c.Set(id, model.PV, refdata.ClampPV(pv, settings.PVMin, settings.PVStep, limit))
		}
	}
	return out
}

func (r *Repairer) standAloneSupply(c *model.Candidate, rng *rand.Rand) []Violation {
	var out []Violation
	tech := r.Gen.Settings.Tech
	choices := []model.Component{model.Boiler}
	if tech.CHP {
		choices = append(choices, model.CHP)
	}
	if tech.HPWW {
		choices = append(choices, model.HeatPumpWaterWater)
	}
	if tech.HPAW {
		choices = append(choices, model.HeatPumpAirWater)
	}
	for _, id := range c.StandAloneIDs() {
		if c.HasThermalSupply(id) {
			continue
		}
		out = append(out, Violation{Step: StepStandAloneSupply, Building: id, Subnet: -1})
		if rng == nil {
			continue
		}
		r.installSupply(c, id, choices[rng.Intn(len(choices))], rng)
	}
	return out
}

func (r *Repairer) installSupply(c *model.Candidate, id model.BuildingID, kind model.Component, rng *rand.Rand) {
	g := r.Gen
	catalog := g.Ref.Catalog
	cfg, _ := c.Config(id)
	draw := func(values []float64) float64 {
		return values[rng.Intn(len(values))]
	}
	switch kind {
	case model.Boiler:
		cfg.Boi = draw(g.BoilerSizes(id))
	case model.CHP:
		cfg.Boi = draw(g.BoilerSizes(id))
		cfg.CHP = draw(g.CHPSizes(id))
		cfg.TES = draw(catalog.Sizes(model.ThermalStorage))
	case model.HeatPumpWaterWater, model.HeatPumpAirWater:
		cfg.Set(kind, draw(g.HeatPumpSizes(id, kind)))
		cfg.EH = draw(catalog.Sizes(model.ElectricHeater))
		cfg.TES = draw(catalog.Sizes(model.ThermalStorage))
	}
	c.SetConfig(id, cfg)
	if cfg.PV == 0 && g.Settings.Tech.PV && rng.Float64() < g.Settings.AddPVProb {
		g.TogglePV(c, id, rng)
	}
}

func (r *Repairer) chpWithHeatPump(c *model.Candidate, rng *rand.Rand) []Violation {
	var out []Violation
	for _, id := range c.BuildingIDs() {
		cfg, _ := c.Config(id)
		if cfg.CHP == 0 || !cfg.HasHeatPump() {
			continue
		}
		idx, connected := c.SubnetIndex(id)
		if !connected {
			idx = -1
		}
		out = append(out, Violation{Step: StepCHPHeatPump, Building: id, Subnet: idx})
		if rng == nil {
			continue
		}
		if connected || rng.Intn(2) == 0 {
			cfg.HPAW = 0
			cfg.HPWW = 0
			cfg.EH = 0
		} else {
			cfg.CHP = 0
		}
		c.SetConfig(id, cfg)
	}
	return out
}

func orphanBattery(c *model.Candidate, fix bool) []Violation {
	var out []Violation
	for _, id := range c.BuildingIDs() {
		cfg, _ := c.Config(id)
		if cfg.Bat == 0 || cfg.CHP > 0 || cfg.PV > 0 {
			continue
		}
		out = append(out, Violation{Step: StepOrphanBattery, Building: id, Subnet: -1})
		if fix {
			c.Set(id, model.Battery, 0)
		}
	}
	return out
}

func heatPumpInLHN(c *model.Candidate, fix bool) []Violation {
	var out []Violation
	for idx := range c.LHN {
		for _, id := range c.LHN[idx].Clone() {
			cfg, _ := c.Config(id)
			if !cfg.HasHeatPump() {
				continue
			}
			out = append(out, Violation{Step: StepHeatPumpInLHN, Building: id, Subnet: idx})
			if fix {
				c.RemoveFromSubnet(idx, id)
			}
		}
	}
	return out
}

func subnetSize(c *model.Candidate, fix bool) []Violation {
	var out []Violation
	for idx := len(c.LHN) - 1; idx >= 0; idx-- {
		if len(c.LHN[idx]) >= 2 {
			continue
		}
		v := Violation{Step: StepSubnetSize, Subnet: idx}
		if len(c.LHN[idx]) == 1 {
			v.Building = c.LHN[idx][0]
		}
		out = append(out, v)
		if fix {
			c.RemoveSubnet(idx)
		}
	}
	return out
}

func (r *Repairer) feeder(c *model.Candidate, rng *rand.Rand) []Violation {
	var out []Violation
	for idx, subnet := range c.LHN {
		if len(c.Feeders(idx)) > 0 {
			continue
		}
		out = append(out, Violation{Step: StepFeeder, Subnet: idx})
		if rng == nil {
			continue
		}
		target := r.highestDemand(subnet, rng)
		r.Gen.Generate(c, target, esys.FeederOption(r.Gen.Settings.Tech), SharedDemand(r.Gen, subnet), rng)
		if c.Get(target, model.PV) == 0 && r.Gen.Settings.Tech.PV && rng.Float64() < r.Gen.Settings.AddPVProb {
			r.Gen.TogglePV(c, target, rng)
		}
	}
	return out
}

func (r *Repairer) chpInLHN(c *model.Candidate, rng *rand.Rand) []Violation {
	if !r.Gen.Settings.Tech.CHP {
		return nil
	}
	var out []Violation
	for idx, subnet := range c.LHN {
		hasCHP := false
		for _, id := range subnet {
			if c.Get(id, model.CHP) > 0 {
				hasCHP = true
				break
			}
		}
		if hasCHP {
			continue
		}
		out = append(out, Violation{Step: StepCHPInLHN, Subnet: idx})
		if rng == nil {
			continue
		}
		target := r.highestDemand(subnet, rng)
		r.Gen.Generate(c, target, esys.OptCHPBoilerTES, SharedDemand(r.Gen, subnet), rng)
		for _, id := range subnet {
			if id != target {
				r.Gen.SetThermalOff(c, id)
			}
		}
	}
	return out
}

// highestDemand picks the member with the largest peak space power, or a
// random member when no demand data is available.
func (r *Repairer) highestDemand(subnet model.Subnet, rng *rand.Rand) model.BuildingID {
	ref := r.Gen.Ref
	if !ref.HasPeakSpacePower() {
		return subnet[rng.Intn(len(subnet))]
	}
	best := subnet[0]
	bestPower := -1.0
	for _, id := range subnet {
		if p, ok := ref.PeakSpacePowerOf(id); ok && p > bestPower {
			best = id
			bestPower = p
		}
	}
	return best
}

// SharedDemand is the heat load a network feeder has to cover: the sum over
// all members, reduced by simultaneity for large networks.
func SharedDemand(gen *esys.Generator, subnet model.Subnet) float64 {
	total := 0.0
	for _, id := range subnet {
		if load, ok := gen.Ref.HeatLoadOf(id); ok {
			total += load
		}
	}
	switch {
	case len(subnet) >= 50:
		total *= 0.8
	case len(subnet) >= 15:
		total *= 0.9
	}
	return total
}
