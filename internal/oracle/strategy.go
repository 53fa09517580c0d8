package oracle

import (
	"errors"
	"fmt"
	"sort"

	"districtevo/internal/model"
)

var ErrUnknownStrategy = errors.New("unknown objective strategy")

// PenaltyValue is assigned to minimized axes of candidates the oracle could
// not evaluate. Maximized axes get its negation.
const PenaltyValue = 1e100

// Strategy names how the oracle turns its samples into objective values.
type Strategy string

const (
	RiskAverseAnnCO2ToNetEnergy Strategy = "mc_risk_av_ann_co2_to_net_energy"
	RefAnnCO2ToNetEnergy        Strategy = "ann_and_co2_to_net_energy_ref_test"
	RefAnnCO2                   Strategy = "ann_and_co2_ref_test"
	RiskAverseAnnCO2            Strategy = "mc_risk_av_ann_and_co2"
	MeanAnnCO2                  Strategy = "mc_mean_ann_and_co2"
	RiskFriendlyAnnCO2          Strategy = "mc_risk_friendly_ann_and_co2"
	MinStdAnnCO2                Strategy = "mc_min_std_of_ann_and_co2"
	Dimless2DMean               Strategy = "mc_dimless_eco_em_2d_mean"
	Dimless2DRiskAverse         Strategy = "mc_dimless_eco_em_2d_risk_av"
	Dimless2DRiskFriendly       Strategy = "mc_dimless_eco_em_2d_risk_friendly"
	Dimless2DStd                Strategy = "mc_dimless_eco_em_2d_std"
	RefDimless                  Strategy = "ann_and_co2_dimless_ref"
	Dimless3DMean               Strategy = "mc_dimless_eco_em_3d_mean"
	Dimless3DRiskAverse         Strategy = "mc_dimless_eco_em_3d_risk_av"
	Dimless3DRiskFriendly       Strategy = "mc_dimless_eco_em_3d_risk_friendly"
	Dimless3DStd                Strategy = "mc_dimless_eco_em_3d_std"
	RefDimless3D                Strategy = "ann_and_co2_dimless_ref_3d"
)

// Aggregation reduces Monte-Carlo samples to one value per axis.
type Aggregation int

const (
	AggregateReference Aggregation = iota
	AggregateMean
	AggregateStd
	AggregateRiskAverse
	AggregateRiskFriendly
)

type strategyInfo struct {
	dims        int
	aggregation Aggregation
	dimless     bool
	perEnergy   bool
}

var strategies = map[Strategy]strategyInfo{
	RiskAverseAnnCO2ToNetEnergy: {dims: 2, aggregation: AggregateRiskAverse, perEnergy: true},
	RefAnnCO2ToNetEnergy:        {dims: 2, aggregation: AggregateReference, perEnergy: true},
	RefAnnCO2:                   {dims: 2, aggregation: AggregateReference},
	RiskAverseAnnCO2:            {dims: 2, aggregation: AggregateRiskAverse},
	MeanAnnCO2:                  {dims: 2, aggregation: AggregateMean},
	RiskFriendlyAnnCO2:          {dims: 2, aggregation: AggregateRiskFriendly},
	MinStdAnnCO2:                {dims: 2, aggregation: AggregateStd},
	Dimless2DMean:               {dims: 2, aggregation: AggregateMean, dimless: true},
	Dimless2DRiskAverse:         {dims: 2, aggregation: AggregateRiskAverse, dimless: true},
	Dimless2DRiskFriendly:       {dims: 2, aggregation: AggregateRiskFriendly, dimless: true},
	Dimless2DStd:                {dims: 2, aggregation: AggregateStd, dimless: true},
	RefDimless:                  {dims: 2, aggregation: AggregateReference, dimless: true},
	Dimless3DMean:               {dims: 3, aggregation: AggregateMean, dimless: true},
	Dimless3DRiskAverse:         {dims: 3, aggregation: AggregateRiskAverse, dimless: true},
	Dimless3DRiskFriendly:       {dims: 3, aggregation: AggregateRiskFriendly, dimless: true},
	Dimless3DStd:                {dims: 3, aggregation: AggregateStd, dimless: true},
	RefDimless3D:                {dims: 3, aggregation: AggregateReference, dimless: true},
}

func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(name)
	if _, ok := strategies[s]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Strategies lists every known strategy name in lexical order.
func Strategies() []Strategy {
	out := make([]Strategy, 0, len(strategies))
	for s := range strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s Strategy) info() strategyInfo {
	return strategies[s]
}

func (s Strategy) Valid() bool {
	_, ok := strategies[s]
	return ok
}

func (s Strategy) Dimensions() int {
	return s.info().dims
}

// Directions are minimize for annuity and emissions and maximize for the
// flexibility axis of 3-D strategies.
func (s Strategy) Directions() []model.Direction {
	dirs := make([]model.Direction, s.Dimensions())
	if len(dirs) == 3 {
		dirs[2] = model.Maximize
	}
	return dirs
}

// Penalty is the objective vector of a candidate that failed evaluation.
func (s Strategy) Penalty() []float64 {
	dirs := s.Directions()
	out := make([]float64, len(dirs))
	for i, d := range dirs {
		out[i] = PenaltyValue
		if d == model.Maximize {
			out[i] = -PenaltyValue
		}
	}
	return out
}

// IsPenalty reports whether values carry the penalty on any axis.
func (s Strategy) IsPenalty(values []float64) bool {
	for i, v := range values {
		if v >= PenaltyValue || (i == 2 && v <= -PenaltyValue) {
			return true
		}
	}
	return false
}

// NeedsBaseline reports whether values are relative to a baseline run of the
// initial district.
func (s Strategy) NeedsBaseline() bool {
	return s.info().dimless
}

func (s Strategy) Aggregation() Aggregation {
	return s.info().aggregation
}

// MonteCarlo reports whether the strategy samples uncertain parameters.
func (s Strategy) MonteCarlo() bool {
	return s.info().aggregation != AggregateReference
}

// PerEnergy reports whether annuity and emissions are divided by the net
// energy demand.
func (s Strategy) PerEnergy() bool {
	return s.info().perEnergy
}

// Flexibility reports whether the strategy has a flexibility axis.
func (s Strategy) Flexibility() bool {
	return s.info().dims == 3
}
