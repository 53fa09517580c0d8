package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"districtevo/internal/model"
	"districtevo/internal/refdata"
)

func testRun() *RunContext {
	return &RunContext{
		Reference: &refdata.Reference{
			Catalog:        refdata.NewCatalog(refdata.DefaultMaxima()),
			PVAreaLimit:    map[model.BuildingID]float64{1: 30, 2: 30, 3: 30},
			HeatLoad:       map[model.BuildingID]float64{1: 12000, 2: 9000, 3: 15000},
			PeakSpacePower: map[model.BuildingID]float64{1: 10000, 2: 7000, 3: 12000},
			Positions: map[model.BuildingID]refdata.Position{
				1: {X: 0, Y: 0}, 2: {X: 20, Y: 0}, 3: {X: 0, Y: 30},
			},
		},
		Seed: 42,
	}
}

func boilerDistrict() *model.Candidate {
	return model.NewCandidate("base", map[model.BuildingID]model.EsysConfig{
		1: {Boi: 20000},
		2: {Boi: 20000},
		3: {Boi: 30000},
	}, nil)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("mc_dimless_eco_em_3d_risk_av")
	require.NoError(t, err)
	require.Equal(t, 3, s.Dimensions())
	require.Equal(t, []model.Direction{model.Minimize, model.Minimize, model.Maximize}, s.Directions())
	require.Equal(t, []float64{PenaltyValue, PenaltyValue, -PenaltyValue}, s.Penalty())
	require.True(t, s.NeedsBaseline())

	s, err = ParseStrategy("mc_mean_ann_and_co2")
	require.NoError(t, err)
	require.Equal(t, 2, s.Dimensions())
	require.False(t, s.NeedsBaseline())

	_, err = ParseStrategy("fastest_annuity")
	require.ErrorIs(t, err, ErrUnknownStrategy)
	require.Len(t, Strategies(), 17)
}

func TestSyntheticReferenceIsDeterministic(t *testing.T) {
	o := NewSynthetic(20, 0.2)
	run := testRun()

	a, err := o.Evaluate(context.Background(), boilerDistrict(), RefAnnCO2, run)
	require.NoError(t, err)
	b, err := o.Evaluate(context.Background(), boilerDistrict(), RefAnnCO2, run)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 2)
	require.Greater(t, a[0], 0.0)
	require.Greater(t, a[1], 0.0)
}

func TestSyntheticMonteCarloAggregations(t *testing.T) {
	o := NewSynthetic(50, 0.5)
	run := testRun()
	ctx := context.Background()

	mean, err := o.Evaluate(ctx, boilerDistrict(), MeanAnnCO2, run)
	require.NoError(t, err)
	averse, err := o.Evaluate(ctx, boilerDistrict(), RiskAverseAnnCO2, run)
	require.NoError(t, err)
	friendly, err := o.Evaluate(ctx, boilerDistrict(), RiskFriendlyAnnCO2, run)
	require.NoError(t, err)
	std, err := o.Evaluate(ctx, boilerDistrict(), MinStdAnnCO2, run)
	require.NoError(t, err)

	require.GreaterOrEqual(t, averse[0], friendly[0])
	require.GreaterOrEqual(t, averse[0], mean[0]*0.9)
	require.Greater(t, std[0], 0.0)
}

func TestSyntheticDimlessNeedsBaseline(t *testing.T) {
	o := NewSynthetic(10, 0.5)
	run := testRun()
	ctx := context.Background()

	_, err := o.Evaluate(ctx, boilerDistrict(), RefDimless, run)
	require.ErrorIs(t, err, ErrMissingBaseline)

	base, err := o.Baseline(ctx, boilerDistrict(), run)
	require.NoError(t, err)
	run.Baseline = &base

	v, err := o.Evaluate(ctx, boilerDistrict(), RefDimless, run)
	require.NoError(t, err)
	require.InDelta(t, 1.0, v[0], 1e-9)
	require.InDelta(t, 1.0, v[1], 1e-9)

	v3, err := o.Evaluate(ctx, boilerDistrict(), RefDimless3D, run)
	require.NoError(t, err)
	require.Len(t, v3, 3)
}

func TestSyntheticReportsInfeasibleSupply(t *testing.T) {
	o := NewSynthetic(10, 0.1)
	c := boilerDistrict()
	c.SetConfig(2, model.EsysConfig{})

	_, err := o.Evaluate(context.Background(), c, MeanAnnCO2, testRun())
	require.ErrorIs(t, err, ErrInfeasibleSupply)
	require.True(t, IsPenalizable(err))
}

func TestSyntheticNetworkSharesSupply(t *testing.T) {
	o := NewSynthetic(10, 0.5)
	c := model.NewCandidate("lhn", map[model.BuildingID]model.EsysConfig{
		1: {Boi: 60000, CHP: 5000, TES: 1000},
		2: {},
		3: {Boi: 30000},
	}, model.Topology{{1, 2}})

	v, err := o.Evaluate(context.Background(), c, RefAnnCO2, testRun())
	require.NoError(t, err)
	require.Len(t, v, 2)
}

func TestSyntheticRejectsMissingReference(t *testing.T) {
	o := NewSynthetic(10, 0.5)
	c := boilerDistrict()
	c.SetConfig(9, model.EsysConfig{Boi: 10000})

	_, err := o.Evaluate(context.Background(), c, RefAnnCO2, testRun())
	require.ErrorIs(t, err, refdata.ErrMissingReference)
	require.False(t, IsPenalizable(err))
}
