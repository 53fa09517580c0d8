package oracle

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"districtevo/internal/model"
	"districtevo/internal/refdata"
)

const (
	defaultHeatLoad    = 10000.0
	fullLoadHours      = 2000.0
	chpRunHours        = 5000.0
	heatPumpRunHours   = 3000.0
	electricDemandKWh  = 3000.0
	pvYieldKWhPerM2    = 150.0
	networkLoss        = 0.1
	uncoveredTolerance = 0.05
	riskAverseQuantile = 0.9
	riskFriendlyQuant  = 0.1
)

// Prices are the economic and emission factors of the synthetic model.
type Prices struct {
	Gas         float64 `json:"gas" yaml:"gas"`
	Electricity float64 `json:"electricity" yaml:"electricity"`
	FeedIn      float64 `json:"feed_in" yaml:"feed_in"`
	GasCO2      float64 `json:"gas_co2" yaml:"gas_co2"`
	GridCO2     float64 `json:"grid_co2" yaml:"grid_co2"`
	PipePerM    float64 `json:"pipe_per_m" yaml:"pipe_per_m"`
}

func DefaultPrices() Prices {
	return Prices{
		Gas:         0.06,
		Electricity: 0.28,
		FeedIn:      0.08,
		GasCO2:      0.2,
		GridCO2:     0.5,
		PipePerM:    30,
	}
}

// annuity per installed unit and year: W for heat producers, l for storage,
// m2 for pv and kWh for batteries.
var unitAnnuity = map[model.Component]float64{
	model.Boiler:             0.01,
	model.CHP:                0.15,
	model.HeatPumpAirWater:   0.08,
	model.HeatPumpWaterWater: 0.1,
	model.ElectricHeater:     0.005,
	model.ThermalStorage:     0.5,
	model.PV:                 25,
	model.Battery:            80,
}

// Synthetic is a self-contained cost, emission and flexibility model of a
// district. It samples demand and prices around their nominal values to
// stand in for a full simulation engine.
type Synthetic struct {
	NbRuns           int
	FailureTolerance float64
	Noise            float64
	Prices           Prices
}

func NewSynthetic(nbRuns int, failureTolerance float64) *Synthetic {
	if nbRuns <= 0 {
		nbRuns = 100
	}
	if failureTolerance < 0 {
		failureTolerance = 0
	}
	return &Synthetic{
		NbRuns:           nbRuns,
		FailureTolerance: failureTolerance,
		Noise:            0.1,
		Prices:           DefaultPrices(),
	}
}

type sample struct {
	demand        float64
	gasPrice      float64
	elPrice       float64
	pvYield       float64
	peakMargin    float64
	deterministic bool
}

type outcome struct {
	annuity     float64
	emissions   float64
	netEnergy   float64
	flexibility float64
}

func (s *Synthetic) Evaluate(ctx context.Context, c *model.Candidate, strategy Strategy, run *RunContext) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
	if run == nil || run.Reference == nil {
		return nil, fmt.Errorf("%w: run context without reference", refdata.ErrMissingReference)
	}
	if err := run.Reference.Validate(c.BuildingIDs()); err != nil {
		return nil, err
	}
	if strategy.NeedsBaseline() && (run.Baseline == nil || run.Baseline.Annuity == 0 || run.Baseline.Emissions == 0) {
		return nil, ErrMissingBaseline
	}

	ref, err := s.simulate(c, run.Reference, sample{demand: 1, gasPrice: 1, elPrice: 1, pvYield: 1, peakMargin: 1, deterministic: true})
	if err != nil {
		return nil, err
	}

	var ann, co2 []float64
	var flex float64
	if !strategy.MonteCarlo() {
		ann = []float64{s.axisValue(ref.annuity, ref.netEnergy, strategy, run.Baseline, true)}
		co2 = []float64{s.axisValue(ref.emissions, ref.netEnergy, strategy, run.Baseline, false)}
		flex = ref.flexibility
	} else {
		rng := rand.New(rand.NewSource(run.Seed ^ fingerprintSeed(c)))
		failures := 0
		flexSamples := make([]float64, 0, s.NbRuns)
		for i := 0; i < s.NbRuns; i++ {
			out, err := s.simulate(c, run.Reference, s.draw(rng))
			if err != nil {
				failures++
				continue
			}
			ann = append(ann, s.axisValue(out.annuity, out.netEnergy, strategy, run.Baseline, true))
			co2 = append(co2, s.axisValue(out.emissions, out.netEnergy, strategy, run.Baseline, false))
			flexSamples = append(flexSamples, out.flexibility)
		}
		if float64(failures)/float64(s.NbRuns) > s.FailureTolerance || len(ann) == 0 {
			return nil, fmt.Errorf("%w: %d of %d samples failed", ErrToleranceExceeded, failures, s.NbRuns)
		}
		flex = stat.Mean(flexSamples, nil)
	}

	out := Vector{aggregate(ann, strategy.Aggregation()), aggregate(co2, strategy.Aggregation())}
	if strategy.Flexibility() {
		out = append(out, flex)
	}
	return out, nil
}

// Baseline is the deterministic annuity and emissions of the initial
// district.
func (s *Synthetic) Baseline(ctx context.Context, initial *model.Candidate, run *RunContext) (Baseline, error) {
	if err := ctx.Err(); err != nil {
		return Baseline{}, err
	}
	if run == nil || run.Reference == nil {
		return Baseline{}, fmt.Errorf("%w: run context without reference", refdata.ErrMissingReference)
	}
	out, err := s.simulate(initial, run.Reference, sample{demand: 1, gasPrice: 1, elPrice: 1, pvYield: 1, peakMargin: 1, deterministic: true})
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline run: %w", err)
	}
	return Baseline{Annuity: out.annuity, Emissions: out.emissions}, nil
}

func (s *Synthetic) axisValue(v, netEnergy float64, strategy Strategy, base *Baseline, annuity bool) float64 {
	if strategy.PerEnergy() && netEnergy > 0 {
		v /= netEnergy
	}
	if strategy.NeedsBaseline() {
		if annuity {
			v /= base.Annuity
		} else {
			v /= base.Emissions
		}
	}
	return v
}

func (s *Synthetic) draw(rng *rand.Rand) sample {
	noise := func() float64 {
		return math.Max(0.2, 1+rng.NormFloat64()*s.Noise)
	}
	return sample{
		demand:     noise(),
		gasPrice:   noise(),
		elPrice:    noise(),
		pvYield:    noise(),
		peakMargin: noise(),
	}
}

func aggregate(values []float64, agg Aggregation) float64 {
	switch agg {
	case AggregateStd:
		_, std := stat.PopMeanStdDev(values, nil)
		return std
	case AggregateRiskAverse, AggregateRiskFriendly:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		p := riskAverseQuantile
		if agg == AggregateRiskFriendly {
			p = riskFriendlyQuant
		}
		return stat.Quantile(p, stat.Empirical, sorted, nil)
	default:
		return stat.Mean(values, nil)
	}
}

// supplyGroup is either one stand-alone building or one heating network.
type supplyGroup struct {
	members []model.BuildingID
	network bool
}

func groups(c *model.Candidate) []supplyGroup {
	out := make([]supplyGroup, 0, len(c.Buildings))
	for _, subnet := range c.LHN {
		out = append(out, supplyGroup{members: subnet.Clone(), network: true})
	}
	for _, id := range c.StandAloneIDs() {
		out = append(out, supplyGroup{members: []model.BuildingID{id}})
	}
	return out
}

func (s *Synthetic) simulate(c *model.Candidate, ref *refdata.Reference, smp sample) (outcome, error) {
	var res outcome
	for _, g := range groups(c) {
		out, err := s.simulateGroup(c, ref, g, smp)
		if err != nil {
			return outcome{}, err
		}
		res.annuity += out.annuity
		res.emissions += out.emissions
		res.netEnergy += out.netEnergy
		res.flexibility += out.flexibility
	}
	elDemandPerDay := electricDemandKWh * float64(len(c.Buildings)) * smp.demand / 365
	if elDemandPerDay > 0 {
		res.flexibility /= elDemandPerDay
	}
	return res, nil
}

func (s *Synthetic) simulateGroup(c *model.Candidate, ref *refdata.Reference, g supplyGroup, smp sample) (outcome, error) {
	var peakW, heatKWh, elKWh, capex float64
	var boiW, chpW, hpawW, hpwwW, ehW, tesL, pvM2, batJ float64
	for _, id := range g.members {
		load, ok := ref.HeatLoadOf(id)
		if !ok {
			load = defaultHeatLoad
		}
		peakW += load * smp.demand
		heatKWh += load / 1000 * fullLoadHours * smp.demand
		elKWh += electricDemandKWh * smp.demand

		cfg, _ := c.Config(id)
		boiW += cfg.Boi
		chpW += cfg.CHP
		hpawW += cfg.HPAW
		hpwwW += cfg.HPWW
		ehW += cfg.EH
		tesL += cfg.TES
		pvM2 += cfg.PV
		batJ += cfg.Bat
		for _, comp := range cfg.ActiveComponents() {
			unit := cfg.Get(comp)
			if comp == model.Battery {
				unit /= refdata.JoulePerKWh
			}
			capex += unitAnnuity[comp] * unit
		}
	}
	if g.network {
		heatKWh *= 1 + networkLoss
		capex += s.Prices.PipePerM * pipeLength(ref, g.members)
	}

	capacity := boiW + chpW + hpawW + hpwwW + ehW
	if capacity <= 0 {
		return outcome{}, fmt.Errorf("%w: buildings %v without thermal supply", ErrInfeasibleSupply, g.members)
	}
	if capacity*smp.peakMargin < peakW*(1-uncoveredTolerance) {
		if smp.deterministic {
			return outcome{}, fmt.Errorf("%w: capacity %.0f W below peak %.0f W", ErrInfeasibleSupply, capacity, peakW)
		}
		return outcome{}, ErrToleranceExceeded
	}

	remaining := heatKWh
	storageBoost := 1 + math.Min(tesL/1000, 2)*0.1
	chpHeat := math.Min(chpW/1000*chpRunHours*storageBoost, 0.6*remaining)
	remaining -= chpHeat
	chpEl := chpHeat * 0.6
	gas := (chpHeat + chpEl) / 0.85

	hpHeat := math.Min((hpawW+hpwwW)/1000*heatPumpRunHours, remaining)
	remaining -= hpHeat
	cop := 3.0
	if hpawW+hpwwW > 0 {
		cop = (3.0*hpawW + 4.0*hpwwW) / (hpawW + hpwwW)
	}
	hpEl := hpHeat / cop

	var boiHeat, ehHeat float64
	switch {
	case boiW > 0 && ehW > 0:
		ehHeat = math.Min(ehW/1000*500, remaining)
		boiHeat = remaining - ehHeat
	case boiW > 0:
		boiHeat = remaining
	case ehW > 0:
		ehHeat = remaining
	default:
		if remaining > uncoveredTolerance*heatKWh {
			return outcome{}, fmt.Errorf("%w: %.0f kWh of heat uncovered", ErrInfeasibleSupply, remaining)
		}
	}
	gas += boiHeat / 0.92

	batKWh := batJ / refdata.JoulePerKWh
	pvEl := pvM2 * pvYieldKWhPerM2 * smp.pvYield
	onsite := pvEl + chpEl
	load := elKWh + hpEl + ehHeat
	selfShare := math.Min(1, 0.3+0.05*batKWh)
	self := math.Min(load, onsite*selfShare)
	imported := load - self
	exported := onsite - self

	opex := gas*s.Prices.Gas*smp.gasPrice + imported*s.Prices.Electricity*smp.elPrice - exported*s.Prices.FeedIn
	emissions := gas*s.Prices.GasCO2 + (imported-exported)*s.Prices.GridCO2

	flex := batKWh
	if hpawW+hpwwW+ehW > 0 {
		flex += tesL * 0.0465
	}

	return outcome{
		annuity:     capex + opex,
		emissions:   emissions,
		netEnergy:   heatKWh + elKWh,
		flexibility: flex,
	}, nil
}

// pipeLength approximates a network's trench length by linking every member
// to its nearest fellow member.
func pipeLength(ref *refdata.Reference, members []model.BuildingID) float64 {
	total := 0.0
	for _, id := range members {
		ranked := ref.RankByDistance([]model.BuildingID{id}, members, 0)
		if len(ranked) > 0 {
			total += ranked[0].Distance
		}
	}
	return total
}

func fingerprintSeed(c *model.Candidate) int64 {
	v, err := strconv.ParseUint(c.Fingerprint(), 16, 64)
	if err != nil {
		return 0
	}
	return int64(v)
}
