package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"districtevo/internal/model"
)

func TestObserveEvaluationLabelsResult(t *testing.T) {
	r := NewRecorder(false)

	r.ObserveEvaluation("mc_mean_ann_and_co2", 10*time.Millisecond, false, false)
	r.ObserveEvaluation("mc_mean_ann_and_co2", 20*time.Millisecond, true, false)
	r.ObserveEvaluation("mc_mean_ann_and_co2", 0, false, true)
	r.ObserveEvaluation("mc_mean_ann_and_co2", 0, false, true)

	require.Equal(t, 1.0, testutil.ToFloat64(r.evaluations.WithLabelValues("mc_mean_ann_and_co2", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.evaluations.WithLabelValues("mc_mean_ann_and_co2", "penalized")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.evaluations.WithLabelValues("mc_mean_ann_and_co2", "cached")))
	require.Equal(t, 1, testutil.CollectAndCount(r.evaluationDuration))
}

func TestObserveGenerationSetsGauges(t *testing.T) {
	r := NewRecorder(false)
	diag := model.GenerationDiagnostics{
		Generation:           3,
		FrontSize:            5,
		InvalidCount:         1,
		PenalizedCount:       2,
		FingerprintDiversity: 9,
		Anchored:             true,
		Objectives: []model.ObjectiveStats{
			{Axis: 0, Best: 1200},
			{Axis: 1, Best: 31.5},
		},
	}

	r.ObserveGeneration("run-1", "ann_and_co2_ref_test", diag)

	require.Equal(t, 3.0, testutil.ToFloat64(r.generation.WithLabelValues("run-1")))
	require.Equal(t, 5.0, testutil.ToFloat64(r.frontSize.WithLabelValues("run-1")))
	require.Equal(t, 3.0, testutil.ToFloat64(r.invalid.WithLabelValues("run-1")))
	require.Equal(t, 9.0, testutil.ToFloat64(r.diversity.WithLabelValues("run-1")))
	require.Equal(t, 31.5, testutil.ToFloat64(r.best.WithLabelValues("run-1", "1")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.generations.WithLabelValues("ann_and_co2_ref_test")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.anchored.WithLabelValues("ann_and_co2_ref_test")))

	r.Forget("run-1")
	require.Equal(t, 0, testutil.CollectAndCount(r.best))
	require.Equal(t, 0, testutil.CollectAndCount(r.generation))
}

func TestRuntimeCollectorsRegister(t *testing.T) {
	r := NewRecorder(true)
	families, err := r.Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
