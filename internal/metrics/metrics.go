package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"districtevo/internal/model"
)

const namespace = "districtevo"

// Recorder exports evaluation and generation telemetry as Prometheus
// collectors. It satisfies evo.Recorder.
type Recorder struct {
	Registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	generations        *prometheus.CounterVec
	generation         *prometheus.GaugeVec
	frontSize          *prometheus.GaugeVec
	invalid            *prometheus.GaugeVec
	diversity          *prometheus.GaugeVec
	best               *prometheus.GaugeVec
	anchored           *prometheus.CounterVec
}

// NewRecorder builds a Recorder on a dedicated registry. With runtime set the
// Go and process collectors are registered too.
func NewRecorder(runtime bool) *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "evaluations_total", Help: "Candidate evaluations by strategy and result."},
			[]string{"strategy", "result"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "evaluation_duration_seconds", Help: "Oracle evaluation duration in seconds.", Buckets: prometheus.DefBuckets},
			[]string{"strategy"},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "generations_total", Help: "Completed generations by strategy."},
			[]string{"strategy"},
		),
		generation: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "generation", Help: "Index of the last completed generation."},
			[]string{"run_id"},
		),
		frontSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "front_size", Help: "Size of the first non-dominated front."},
			[]string{"run_id"},
		),
		invalid: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "invalid_candidates", Help: "Candidates without valid fitness or with a penalty vector."},
			[]string{"run_id"},
		),
		diversity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "fingerprint_diversity", Help: "Distinct configurations in the population."},
			[]string{"run_id"},
		),
		best: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "best_objective", Help: "Best value per objective axis."},
			[]string{"run_id", "axis"},
		),
		anchored: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "anchored_selections_total", Help: "Generations whose selection anchored per-axis bests."},
			[]string{"strategy"},
		),
	}
	r.Registry.MustRegister(
		r.evaluations,
		r.evaluationDuration,
		r.generations,
		r.generation,
		r.frontSize,
		r.invalid,
		r.diversity,
		r.best,
		r.anchored,
	)
	if runtime {
		r.Registry.MustRegister(collectors.NewGoCollector())
		r.Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

func (r *Recorder) ObserveEvaluation(strategy string, elapsed time.Duration, penalized, cached bool) {
	result := "ok"
	switch {
	case cached:
		result = "cached"
	case penalized:
		result = "penalized"
	}
	r.evaluations.WithLabelValues(strategy, result).Inc()
	if !cached {
		r.evaluationDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	}
}

func (r *Recorder) ObserveGeneration(runID, strategy string, diag model.GenerationDiagnostics) {
	r.generations.WithLabelValues(strategy).Inc()
	r.generation.WithLabelValues(runID).Set(float64(diag.Generation))
	r.frontSize.WithLabelValues(runID).Set(float64(diag.FrontSize))
	r.invalid.WithLabelValues(runID).Set(float64(diag.InvalidCount + diag.PenalizedCount))
	r.diversity.WithLabelValues(runID).Set(float64(diag.FingerprintDiversity))
	for _, obj := range diag.Objectives {
		r.best.WithLabelValues(runID, strconv.Itoa(obj.Axis)).Set(obj.Best)
	}
	if diag.Anchored {
		r.anchored.WithLabelValues(strategy).Inc()
	}
}

// Forget drops the per-run series of runID.
func (r *Recorder) Forget(runID string) {
	r.generation.DeleteLabelValues(runID)
	r.frontSize.DeleteLabelValues(runID)
	r.invalid.DeleteLabelValues(runID)
	r.diversity.DeleteLabelValues(runID)
	r.best.DeletePartialMatch(prometheus.Labels{"run_id": runID})
}
