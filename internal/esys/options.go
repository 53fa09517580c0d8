package esys

import (
	"fmt"
	"math"
	"math/rand"
)

// Option names one archetype switch or toggle of a building's energy system.
type Option string

const (
	OptBoiler             Option = "boi"
	OptBoilerTES          Option = "boi_tes"
	OptCHPBoilerTES       Option = "chp_boi_tes"
	OptCHPBoilerHeaterTES Option = "chp_boi_eh_tes"
	OptHPAWHeater         Option = "hp_aw_eh"
	OptHPWWHeater         Option = "hp_ww_eh"
	OptHPAWBoiler         Option = "hp_aw_boi"
	OptHPWWBoiler         Option = "hp_ww_boi"
	OptHPAWBoilerHeater   Option = "hp_aw_boi_eh"
	OptHPWWBoilerHeater   Option = "hp_ww_boi_eh"
	OptBattery            Option = "bat"
	OptPV                 Option = "pv"
	OptNoThermalSupply    Option = "no_th_supply"

	// OptBoilerFeeder is the network feeder fallback for runs without CHP.
	OptBoilerFeeder Option = "boi_tes_feeder"
)

// Choice is one weighted option.
type Choice struct {
	Option Option  `json:"option" yaml:"option"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Weights is an ordered probability list over options. Order matters for
// reproducible draws.
type Weights []Choice

func DefaultStandAlone() Weights {
	return Weights{
		{OptBoiler, 0.1},
		{OptBoilerTES, 0.1},
		{OptCHPBoilerTES, 0.2},
		{OptCHPBoilerHeaterTES, 0.05},
		{OptHPAWHeater, 0.1},
		{OptHPWWHeater, 0.1},
		{OptHPAWBoiler, 0.05},
		{OptHPWWBoiler, 0.05},
		{OptHPAWBoilerHeater, 0.05},
		{OptHPWWBoilerHeater, 0.05},
		{OptBattery, 0.05},
		{OptPV, 0.1},
	}
}

func DefaultNetwork() Weights {
	return Weights{
		{OptCHPBoilerTES, 0.1},
		{OptCHPBoilerHeaterTES, 0.05},
		{OptBattery, 0.05},
		{OptPV, 0.2},
		{OptNoThermalSupply, 0.6},
	}
}

// DefaultDemotion is the fallback list for buildings leaving a network when
// no derived list is configured.
func DefaultDemotion() Weights {
	return Weights{
		{OptBoiler, 0.1},
		{OptBoilerTES, 0.15},
		{OptCHPBoilerTES, 0.25},
		{OptCHPBoilerHeaterTES, 0.05},
		{OptHPAWHeater, 0.125},
		{OptHPWWHeater, 0.125},
		{OptHPAWBoiler, 0.05},
		{OptHPWWBoiler, 0.05},
		{OptHPAWBoilerHeater, 0.05},
		{OptHPWWBoilerHeater, 0.05},
		{OptBattery, 0},
		{OptPV, 0},
	}
}

// FeederSwitch is the archetype list used when a building becomes a network
// feeder.
func FeederSwitch(tech Technologies) Weights {
	if !tech.CHP {
		return Weights{{OptBoilerFeeder, 1}}
	}
	if tech.PreventCHPHeater {
		return Weights{{OptCHPBoilerTES, 1}}
	}
	return Weights{
		{OptCHPBoilerTES, 0.7},
		{OptCHPBoilerHeaterTES, 0.3},
	}
}

// FeederOption is the single archetype installed by repairs.
func FeederOption(tech Technologies) Option {
	if !tech.CHP {
		return OptBoilerFeeder
	}
	return OptCHPBoilerTES
}

func (w Weights) Clone() Weights {
	return append(Weights(nil), w...)
}

func (w Weights) Sum() float64 {
	total := 0.0
	for _, c := range w {
		total += c.Weight
	}
	return total
}

func (w Weights) Weight(opt Option) float64 {
	for _, c := range w {
		if c.Option == opt {
			return c.Weight
		}
	}
	return 0
}

// Validate checks that weights are non-negative and sum to one.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("option weights are required")
	}
	for i, c := range w {
		if c.Weight < 0 {
			return fmt.Errorf("option weight must be >= 0 at index %d", i)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("option weights must sum to 1, got %v", sum)
	}
	return nil
}

// Pick draws one option proportionally to its weight.
func (w Weights) Pick(rng *rand.Rand) Option {
	total := w.Sum()
	if len(w) == 0 || total <= 0 {
		return ""
	}
	pick := rng.Float64() * total
	acc := 0.0
	for _, c := range w {
		acc += c.Weight
		if c.Weight > 0 && pick <= acc {
			return c.Option
		}
	}
	for i := len(w) - 1; i >= 0; i-- {
		if w[i].Weight > 0 {
			return w[i].Option
		}
	}
	return ""
}

// Technologies switches technologies on or off for a whole run.
type Technologies struct {
	Battery          bool `json:"use_bat" yaml:"use_bat"`
	PV               bool `json:"use_pv" yaml:"use_pv"`
	CHP              bool `json:"use_chp" yaml:"use_chp"`
	HPAW             bool `json:"use_hp_aw" yaml:"use_hp_aw"`
	HPWW             bool `json:"use_hp_ww" yaml:"use_hp_ww"`
	PreventBoilerHP  bool `json:"prevent_boi_hp" yaml:"prevent_boi_hp"`
	PreventCHPHeater bool `json:"prevent_chp_eh" yaml:"prevent_chp_eh"`
}

func AllTechnologies() Technologies {
	return Technologies{Battery: true, PV: true, CHP: true, HPAW: true, HPWW: true}
}

const (
	renormIncrement = 0.001
	renormStop      = renormIncrement / 10
)

// Renormalize zeroes the weights of disabled technologies and hands the freed
// mass back in small increments to randomly chosen remaining options.
func Renormalize(w Weights, tech Technologies, rng *rand.Rand) Weights {
	disabled := map[Option]bool{}
	if !tech.Battery {
		disabled[OptBattery] = true
	}
	if !tech.PV {
		disabled[OptPV] = true
	}
	if !tech.CHP {
		disabled[OptCHPBoilerTES] = true
		disabled[OptCHPBoilerHeaterTES] = true
	}
	if !tech.HPAW {
		disabled[OptHPAWHeater] = true
		disabled[OptHPAWBoiler] = true
		disabled[OptHPAWBoilerHeater] = true
	}
	if !tech.HPWW {
		disabled[OptHPWWHeater] = true
		disabled[OptHPWWBoiler] = true
		disabled[OptHPWWBoilerHeater] = true
	}
	if tech.PreventBoilerHP {
		disabled[OptHPAWBoiler] = true
		disabled[OptHPAWBoilerHeater] = true
		disabled[OptHPWWBoiler] = true
		disabled[OptHPWWBoilerHeater] = true
	}
	if tech.PreventCHPHeater {
		disabled[OptCHPBoilerHeaterTES] = true
	}
	return redistribute(w, disabled, rng)
}

// RenormalizeNetwork honours only the battery and PV switches.
func RenormalizeNetwork(w Weights, tech Technologies, rng *rand.Rand) Weights {
	disabled := map[Option]bool{}
	if !tech.Battery {
		disabled[OptBattery] = true
	}
	if !tech.PV {
		disabled[OptPV] = true
	}
	return redistribute(w, disabled, rng)
}

func redistribute(w Weights, disabled map[Option]bool, rng *rand.Rand) Weights {
	out := w.Clone()
	for i := range out {
		if disabled[out[i].Option] {
			out[i].Weight = 0
		}
	}
	delta := 1 - out.Sum()
	if delta <= renormStop {
		return out
	}
	alive := make([]int, 0, len(out))
	for i, c := range out {
		if c.Weight > 0 {
			alive = append(alive, i)
		}
	}
	if len(alive) == 0 {
		return out
	}
	for delta > renormStop {
		idx := alive[rng.Intn(len(alive))]
		out[idx].Weight += renormIncrement
		delta -= renormIncrement
	}
	return out
}

// OptionSet bundles the three archetype lists used by the mutation operators.
type OptionSet struct {
	StandAlone Weights
	Network    Weights
	Demotion   Weights
}

// NewOptionSet renormalizes the configured lists for the enabled
// technologies. The demotion list is derived from the renormalized
// stand-alone list with battery and PV always disabled.
func NewOptionSet(standAlone, network Weights, tech Technologies, rng *rand.Rand) (OptionSet, error) {
	if len(standAlone) == 0 {
		standAlone = DefaultStandAlone()
	}
	if len(network) == 0 {
		network = DefaultNetwork()
	}
	if err := standAlone.Validate(); err != nil {
		return OptionSet{}, fmt.Errorf("stand-alone options: %w", err)
	}
	if err := network.Validate(); err != nil {
		return OptionSet{}, fmt.Errorf("network options: %w", err)
	}
	set := OptionSet{
		StandAlone: Renormalize(standAlone, tech, rng),
		Network:    RenormalizeNetwork(network, tech, rng),
	}
	demotionTech := tech
	demotionTech.Battery = false
	demotionTech.PV = false
	set.Demotion = Renormalize(set.StandAlone, demotionTech, rng)
	return set, nil
}

// DefaultOptionSet returns the unmodified default lists.
func DefaultOptionSet() OptionSet {
	return OptionSet{
		StandAlone: DefaultStandAlone(),
		Network:    DefaultNetwork(),
		Demotion:   DefaultDemotion(),
	}
}
