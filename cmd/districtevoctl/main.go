package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"districtevo/internal/metrics"
	"districtevo/internal/model"
	"districtevo/internal/oracle"
	"districtevo/internal/refdata"
	"districtevo/internal/stats"
	"districtevo/internal/storage"
	api "districtevo/pkg/districtevo"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
)

var stdout io.Writer = os.Stdout

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "front":
		return runFront(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "validate":
		return runValidate(ctx, args[1:])
	case "strategies":
		return runStrategies(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command %q", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite|postgres")
	dsn := fs.String("dsn", "", "sqlite path or postgres dsn")
	samplePath := fs.String("sample-district", "", "write a sample district file to this path")
	configPath := fs.String("write-config", "", "write the default run config to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{
		StoreKind:    *storeKind,
		DSN:          *dsn,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "initialized store=%s\n", *storeKind)

	if *samplePath != "" {
		if err := writeSampleDistrict(*samplePath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote sample district to %s\n", filepath.Clean(*samplePath))
	}
	if *configPath != "" {
		if err := os.WriteFile(*configPath, defaultsYAML, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote default config to %s\n", filepath.Clean(*configPath))
	}
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config path (YAML, or JSON by extension)")
	districtPath := fs.String("district", "", "district file (YAML or JSON)")
	strategy := fs.String("strategy", "", "evaluation strategy (see `strategies`)")
	population := fs.Int("pop", 0, "population size")
	generations := fs.Int("gens", 0, "generation count")
	seed := fs.Int64("seed", 0, "rng seed")
	workers := fs.Int("workers", 0, "evaluation worker count")
	cxProb := fs.Float64("cx-prob", 0, "crossover probability")
	mutProb := fs.Float64("mut-prob", 0, "mutation probability")
	attrProb := fs.Float64("attr-prob", 0, "per-attribute mutation probability")
	participants := fs.Int("participants", 0, "crossover participant count")
	hofSize := fs.Int("hof-size", 0, "hall of fame size")
	minGens := fs.Int("min-gens", 0, "generations before convergence checks")
	stdBreak := fs.Float64("std-break", 0, "convergence threshold on the best-fitness std-dev")
	selectionName := fs.String("selection", "", "selection strategy: anchored|nsga2")
	anchorFraction := fs.Float64("anchor-fraction", 0, "offspring fraction below which anchored selection keeps per-axis bests")
	postprocessorName := fs.String("fitness-postprocessor", "", "fitness postprocessor: sanitize|none")
	countPolicy := fs.String("mutation-count", "", "mutation count policy: const|building_linear|random")
	countParam := fs.Float64("mutation-count-param", 0, "mutation count policy parameter")
	countMax := fs.Int("mutation-count-max", 0, "maximum mutations per candidate")
	noLHN := fs.Bool("no-lhn", false, "disable local heating network mutations")
	allowBoilerLHN := fs.Bool("allow-boiler-lhn", false, "allow boiler-only feeders in networks")
	rate := fs.Float64("rate", 0, "evaluation rate limit per second (0 disables)")
	mcRuns := fs.Int("mc-runs", 0, "Monte-Carlo runs per evaluation")
	failureTolerance := fs.Float64("failure-tolerance", 0, "tolerated share of failed Monte-Carlo runs")
	storeKind := fs.String("store", "", "store backend: memory|sqlite|postgres")
	dsn := fs.String("dsn", "", "sqlite path or postgres dsn")
	cacheKind := fs.String("cache", "", "evaluation cache: none|memory|redis")
	redisURL := fs.String("redis-url", "", "redis url for cache=redis")
	logLevel := fs.String("log-level", "", "log level")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		return err
	}
	err = overrideFromFlags(&cfg, setFlags, map[string]any{
		"district":              *districtPath,
		"strategy":              *strategy,
		"pop":                   *population,
		"gens":                  *generations,
		"seed":                  *seed,
		"workers":               *workers,
		"cx-prob":               *cxProb,
		"mut-prob":              *mutProb,
		"attr-prob":             *attrProb,
		"participants":          *participants,
		"hof-size":              *hofSize,
		"min-gens":              *minGens,
		"std-break":             *stdBreak,
		"selection":             *selectionName,
		"anchor-fraction":       *anchorFraction,
		"fitness-postprocessor": *postprocessorName,
		"mutation-count":        *countPolicy,
		"mutation-count-param":  *countParam,
		"mutation-count-max":    *countMax,
		"no-lhn":                *noLHN,
		"allow-boiler-lhn":      *allowBoilerLHN,
		"rate":                  *rate,
		"mc-runs":               *mcRuns,
		"failure-tolerance":     *failureTolerance,
		"store":                 *storeKind,
		"dsn":                   *dsn,
		"cache":                 *cacheKind,
		"redis-url":             *redisURL,
		"log-level":             *logLevel,
	})
	if err != nil {
		return err
	}
	if cfg.District == "" {
		return errors.New("run requires --district or a config with district")
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	opts, err := cfg.options(log)
	if err != nil {
		return err
	}

	if *metricsAddr != "" {
		recorder := metrics.NewRecorder(true)
		opts.Recorder = recorder
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           metricsHandler(recorder),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.WithField("addr", *metricsAddr).Info("serving metrics")
	}

	client, err := api.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, cfg.request())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run completed run_id=%s strategy=%s pop=%d gens=%d seed=%d converged=%t\n",
		summary.RunID, summary.Strategy, cfg.Population, summary.Generations, cfg.Seed, summary.Converged)
	for i, best := range summary.BestByGeneration {
		fmt.Fprintf(stdout, "generation=%d best=%s\n", i, formatVector(best))
	}
	fmt.Fprintf(stdout, "front_size=%d\n", len(summary.Front))
	fmt.Fprintf(stdout, "artifacts_dir=%s\n", filepath.Clean(summary.ArtifactsDir))
	return nil
}

func metricsHandler(recorder *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.Registry, promhttp.HandlerOpts{}))
	return mux
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := readClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	items, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s district=%s strategy=%s seed=%d pop=%d gens=%d converged=%t front_size=%d final_best=%s\n",
			item.RunID,
			item.CreatedAtUTC,
			item.District,
			item.Strategy,
			item.Seed,
			item.Population,
			item.Generations,
			item.Converged,
			item.FrontSize,
			formatVector(item.FinalBest),
		)
	}
	return nil
}

func runFront(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("front", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max front members (0 lists all)")
	csvOut := fs.Bool("csv", false, "emit the front as CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := readClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	records, err := client.Front(ctx, api.FrontRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *csvOut {
		return stats.EncodeFront(stdout, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "front is empty")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(stdout, "rank=%d candidate=%s fingerprint=%s fitness=%s subnets=%d connected=%d\n",
			r.Rank,
			r.Candidate.ID,
			r.Fingerprint,
			formatVector(r.Candidate.Fitness.Values),
			len(r.Candidate.LHN),
			connectedCount(r.Candidate),
		)
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 50, "max lineage records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := readClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	records, err := client.Lineage(ctx, api.LineageRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintf(stdout, "generation=%d candidate=%s parent=%s operation=%s fingerprint=%s\n",
			r.Generation, r.CandidateID, r.ParentID, r.Operation, r.Fingerprint)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max generations (0 lists all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := readClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	diagnostics, err := client.Diagnostics(ctx, api.DiagnosticsRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	for _, d := range diagnostics {
		best := make([]float64, 0, len(d.Objectives))
		for _, obj := range d.Objectives {
			best = append(best, obj.Best)
		}
		fmt.Fprintf(stdout, "generation=%d best=%s front_size=%d invalid=%d penalized=%d evaluations=%d cache_hits=%d diversity=%d mean_subnets=%.2f anchored=%t\n",
			d.Generation,
			formatVector(best),
			d.FrontSize,
			d.InvalidCount,
			d.PenalizedCount,
			d.Evaluations,
			d.CacheHits,
			d.FingerprintDiversity,
			d.MeanSubnets,
			d.Anchored,
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := readClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	exported, err := client.Export(ctx, api.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := readClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	report, err := client.Report(ctx, api.ReportRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}

	cfg := report.Config
	fmt.Fprintf(stdout, "run_id=%s district=%s strategy=%s population=%d generations=%d seed=%d mutation_count=%s with_lhn=%t\n",
		report.RunID, cfg.District, cfg.Strategy, cfg.PopulationSize, cfg.Generations, cfg.Seed, cfg.MutationCount, cfg.WithLHN)
	if n := len(report.Generations); n > 0 {
		last := report.Generations[n-1]
		hits := 0
		for _, g := range report.Generations {
			hits += g.CacheHits
		}
		fmt.Fprintf(stdout, "generations_recorded=%d final_best_annuity=%.2f final_best_emissions=%.2f cache_hits=%d\n",
			n, last.BestAnnuity, last.BestEmissions, hits)
	}
	for _, row := range report.Front {
		fmt.Fprintf(stdout, "rank=%d candidate=%s annuity=%.2f emissions=%.2f flexibility=%.2f subnets=%d connected=%d\n",
			row.Rank, row.CandidateID, row.Annuity, row.Emissions, row.Flexibility, row.Subnets, row.Connected)
	}
	parts := make([]string, 0, len(report.Components))
	for _, comp := range model.Components() {
		if n := report.Components[comp]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", comp, n))
		}
	}
	fmt.Fprintf(stdout, "components %s\n", strings.Join(parts, " "))
	return nil
}

func runValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	districtPath := fs.String("district", "", "district file (YAML or JSON)")
	allowBoilerLHN := fs.Bool("allow-boiler-lhn", false, "allow boiler-only feeders in networks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *districtPath == "" {
		return errors.New("validate requires --district")
	}

	client, err := readClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	report, err := client.Validate(ctx, api.ValidateRequest{DistrictPath: *districtPath, AllowBoilerLHN: *allowBoilerLHN})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "district=%s buildings=%d subnets=%d violations=%d\n",
		report.District, report.Buildings, report.Subnets, len(report.Violations))
	for _, v := range report.Violations {
		fmt.Fprintf(stdout, "step=%s building=%d subnet=%d\n", v.Step, v.Building, v.Subnet)
	}
	if !report.Valid() {
		return fmt.Errorf("district %s has %d violations", report.District, len(report.Violations))
	}
	return nil
}

func runStrategies(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ContinueOnError)
	operators := fs.Bool("operators", false, "list mutation operators usable in weights.modify instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *operators {
		for _, name := range api.MutationOperators() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}
	names := make([]string, 0)
	for _, s := range oracle.Strategies() {
		names = append(names, string(s))
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

// readClient opens a memory-backed client; read commands fall back to the
// artifact files under artifactsDir.
func readClient() (*api.Client, error) {
	return api.New(api.Options{
		StoreKind:    "memory",
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
}

func writeSampleDistrict(path string) error {
	district := sampleDistrict()
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(district, "", "  ")
	} else {
		data, err = yaml.Marshal(district)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// sampleDistrict is a six-building street with boiler-only supply.
func sampleDistrict() refdata.District {
	district := refdata.District{Name: "sample", ScaleMaximaToPeak: true}
	for i := 0; i < 6; i++ {
		load := 12000.0 + 4000*float64(i%3)
		peak := 8000.0 + 2000*float64(i%3)
		district.Buildings = append(district.Buildings, refdata.BuildingSpec{
			ID:             model.BuildingID(i),
			Position:       refdata.Position{X: float64(i) * 25, Y: float64(i%2) * 15},
			PVArea:         40,
			HeatLoad:       &load,
			PeakSpacePower: &peak,
			Esys:           model.EsysConfig{Boi: 30000},
		})
	}
	return district
}

func connectedCount(rec model.CandidateRecord) int {
	n := 0
	for _, subnet := range rec.LHN {
		n += len(subnet)
	}
	return n
}

func formatVector(values []float64) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%.6g", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: districtevoctl <init|run|runs|front|lineage|diagnostics|export|report|validate|strategies> [flags]", msg)
}
