package districtevo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"districtevo/internal/esys"
	"districtevo/internal/evalcache"
	"districtevo/internal/evo"
	"districtevo/internal/model"
	"districtevo/internal/oracle"
	"districtevo/internal/refdata"
	"districtevo/internal/repair"
	"districtevo/internal/stats"
	"districtevo/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "districtevo.db"
)

type Options struct {
	StoreKind     string
	DSN           string
	ArtifactsDir  string
	ExportsDir    string
	CacheKind     string
	RedisURL      string
	CacheCapacity int
	CacheTTL      time.Duration
	Recorder      evo.Recorder
	Log           *logrus.Logger
}

type Client struct {
	store    storage.Store
	cache    evalcache.Cache
	recorder evo.Recorder
	log      *logrus.Logger
	ready    bool

	storeKind     string
	cacheKind     string
	redisURL      string
	cacheCapacity int
	cacheTTL      time.Duration
	artifactsDir  string
	exportsDir    string
}

type RunRequest struct {
	DistrictPath string
	// District takes precedence over DistrictPath.
	District *refdata.District

	Strategy             string
	Population           int
	Generations          int
	Seed                 int64
	Workers              int
	CrossoverProb        float64
	MutationProb         float64
	AttributeProb        float64
	Participants         int
	HallOfFameSize       int
	MinGenerations       int
	StdBreak             float64
	Selection            string
	AnchorFraction       float64
	FitnessPostprocessor string
	MutationCount        string
	MutationCountParam   float64
	MutationCountMax     int
	DisableLHN           bool
	AllowBoilerLHN       bool
	EvaluationsPerSecond float64
	MCRuns               int
	FailureTolerance     float64

	Weights *evo.MutationWeights
	LHN     *evo.LHNSettings
	Esys    *esys.Settings
	// Oracle replaces the synthetic cost model.
	Oracle oracle.Oracle
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	Strategy         string
	BestByGeneration [][]float64
	Generations      int
	Converged        bool
	Front            []model.HallOfFameRecord
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	District     string
	Strategy     string
	Seed         int64
	Population   int
	Generations  int
	Converged    bool
	FrontSize    int
	FinalBest    []float64
}

type FrontRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type LineageRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ReportRequest struct {
	RunID  string
	Latest bool
}

// RunReport is read back from the files a run wrote to its artifacts
// directory. Components counts, per component, the front buildings that
// install it.
type RunReport struct {
	RunID       string
	Config      stats.RunConfig
	Front       []stats.FrontRow
	Generations []stats.GenerationRow
	Components  map[model.Component]int
}

type ValidateRequest struct {
	DistrictPath   string
	District       *refdata.District
	AllowBoilerLHN bool
}

type ValidationReport struct {
	District   string
	Buildings  int
	Subnets    int
	Violations []repair.Violation
}

func (r ValidationReport) Valid() bool {
	return len(r.Violations) == 0
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dsn := opts.DSN
	if dsn == "" && storeKind == "sqlite" {
		dsn = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = 4096
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	store, err := storage.NewStore(storeKind, dsn)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		recorder:      opts.Recorder,
		log:           log,
		storeKind:     storeKind,
		cacheKind:     opts.CacheKind,
		redisURL:      opts.RedisURL,
		cacheCapacity: opts.CacheCapacity,
		cacheTTL:      opts.CacheTTL,
		artifactsDir:  artifactsDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	var cacheErr error
	if c.cache != nil {
		cacheErr = c.cache.Close()
	}
	return errors.Join(storage.CloseIfSupported(c.store), cacheErr)
}

// Init prepares the store and the evaluation cache. It is idempotent.
func (c *Client) Init(ctx context.Context) error {
	if c.ready {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init %s store: %w", c.storeKind, err)
	}
	cache, err := evalcache.New(ctx, c.cacheKind, c.redisURL, c.cacheCapacity, c.cacheTTL)
	if err != nil {
		return err
	}
	c.cache = cache
	c.ready = true
	return nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	applyRunDefaults(&req)
	strategy, err := oracle.ParseStrategy(req.Strategy)
	if err != nil {
		return RunSummary{}, err
	}
	district, err := loadDistrict(req.DistrictPath, req.District)
	if err != nil {
		return RunSummary{}, err
	}
	ref, err := district.Reference()
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()
	log := c.log
	if req.Oracle == nil && !ref.HasHeatLoads() {
		log.WithField("district", district.Name).Warn("district has no heat loads, synthetic model uses defaults")
	}
	rng := rand.New(rand.NewSource(req.Seed))

	settings := esys.DefaultSettings()
	if req.Esys != nil {
		settings = *req.Esys
	}
	gen := esys.NewGenerator(ref, settings, log)
	repairer := repair.New(gen, !req.AllowBoilerLHN, log)
	options, err := esys.NewOptionSet(esys.DefaultStandAlone(), esys.DefaultNetwork(), gen.Settings.Tech, rng)
	if err != nil {
		return RunSummary{}, err
	}
	lhn := evo.DefaultLHNSettings()
	if req.LHN != nil {
		lhn = *req.LHN
	}
	weights := evo.DefaultMutationWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}
	env := &evo.Env{Gen: gen, Repair: repairer, Options: options, LHN: lhn, Log: log}
	engine, err := evo.NewMutationEngine(env, rng, weights, req.AttributeProb, !req.DisableLHN)
	if err != nil {
		return RunSummary{}, err
	}
	selector, err := selectionFromName(req.Selection, req.AnchorFraction)
	if err != nil {
		return RunSummary{}, err
	}
	postprocessor, err := postprocessorFromName(req.FitnessPostprocessor)
	if err != nil {
		return RunSummary{}, err
	}
	countPolicy, err := evo.ParseMutationCount(req.MutationCount, req.MutationCountParam, req.MutationCountMax)
	if err != nil {
		return RunSummary{}, err
	}
	evaluator := req.Oracle
	if evaluator == nil {
		evaluator = oracle.NewSynthetic(req.MCRuns, req.FailureTolerance)
	}
	scope, err := cacheScope(runID, district, evaluator, req.Seed)
	if err != nil {
		return RunSummary{}, err
	}

	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		RunID:                runID,
		Strategy:             strategy,
		Oracle:               evaluator,
		Reference:            ref,
		Mutation:             engine,
		Crossover:            &evo.Crossover{Repair: repairer, Rand: rand.New(rand.NewSource(req.Seed + 1000)), Log: log},
		Repair:               repairer,
		Selector:             selector,
		Postprocessor:        postprocessor,
		MutationCount:        countPolicy,
		Sink:                 c.store,
		Recorder:             c.recorder,
		Cache:                c.cache,
		CacheScope:           scope,
		Log:                  log,
		PopulationSize:       req.Population,
		Generations:          req.Generations,
		Workers:              req.Workers,
		Seed:                 req.Seed,
		CrossoverProb:        req.CrossoverProb,
		MutationProb:         req.MutationProb,
		Participants:         req.Participants,
		HallOfFameSize:       req.HallOfFameSize,
		MinGenerations:       req.MinGenerations,
		StdBreak:             req.StdBreak,
		EvaluationsPerSecond: req.EvaluationsPerSecond,
	})
	if err != nil {
		return RunSummary{}, err
	}

	initial := district.InitialCandidate("initial")
	if fixed := repairer.Run(initial, rng); len(fixed) > 0 {
		log.WithFields(logrus.Fields{
			"district":   district.Name,
			"violations": len(fixed),
		}).Warn("initial district state repaired before seeding")
	}

	started := time.Now().UTC()
	log.WithFields(logrus.Fields{
		"run_id":      runID,
		"strategy":    strategy,
		"population":  req.Population,
		"generations": req.Generations,
	}).Info("starting optimization run")

	population, err := monitor.SeedPopulation(ctx, initial)
	if err != nil {
		return RunSummary{}, err
	}
	result, err := monitor.Run(ctx, population)
	if err != nil {
		return RunSummary{}, err
	}
	finished := time.Now().UTC()

	front := evo.HallOfFameRecords(result.HallOfFame)
	summary := model.RunSummary{
		RunID:          runID,
		Strategy:       string(strategy),
		District:       district.Name,
		Seed:           req.Seed,
		PopulationSize: req.Population,
		Generations:    len(result.BestByGeneration) - 1,
		Converged:      result.Converged,
		FrontSize:      len(front),
		StartedAt:      started,
		FinishedAt:     finished,
	}
	if err := c.persist(ctx, summary, result, front); err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:                runID,
			District:             district.Name,
			Strategy:             string(strategy),
			PopulationSize:       req.Population,
			Generations:          req.Generations,
			Seed:                 req.Seed,
			Workers:              req.Workers,
			CrossoverProb:        req.CrossoverProb,
			MutationProb:         req.MutationProb,
			MutationCount:        countPolicy.Name(),
			Participants:         req.Participants,
			HallOfFameSize:       req.HallOfFameSize,
			MinGenerations:       req.MinGenerations,
			StdBreak:             req.StdBreak,
			AnchorFraction:       req.AnchorFraction,
			WithLHN:              !req.DisableLHN,
			EvaluationsPerSecond: req.EvaluationsPerSecond,
			Cache:                c.cacheKind,
			Store:                c.storeKind,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		HallOfFame:            front,
		Lineage:               result.Lineage,
		Converged:             result.Converged,
		Baseline:              statsBaseline(result.Baseline),
	})
	if err != nil {
		return RunSummary{}, err
	}

	var finalBest []float64
	if n := len(result.BestByGeneration); n > 0 {
		finalBest = append([]float64(nil), result.BestByGeneration[n-1]...)
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:          runID,
		District:       district.Name,
		Strategy:       string(strategy),
		PopulationSize: req.Population,
		Generations:    summary.Generations,
		Seed:           req.Seed,
		Workers:        req.Workers,
		Converged:      result.Converged,
		FrontSize:      len(front),
		FinalBest:      finalBest,
		CreatedAtUTC:   finished.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	log.WithFields(logrus.Fields{
		"run_id":      runID,
		"generations": summary.Generations,
		"converged":   result.Converged,
		"front_size":  len(front),
	}).Info("optimization run finished")

	return RunSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		Strategy:         string(strategy),
		BestByGeneration: result.BestByGeneration,
		Generations:      summary.Generations,
		Converged:        result.Converged,
		Front:            front,
	}, nil
}

func (c *Client) persist(ctx context.Context, summary model.RunSummary, result evo.RunResult, front []model.HallOfFameRecord) error {
	if err := c.store.SaveRun(ctx, summary); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, summary.RunID, result.GenerationDiagnostics); err != nil {
		return fmt.Errorf("save diagnostics: %w", err)
	}
	if err := c.store.SaveHallOfFame(ctx, summary.RunID, front); err != nil {
		return fmt.Errorf("save hall of fame: %w", err)
	}
	if err := c.store.SaveLineage(ctx, summary.RunID, result.Lineage); err != nil {
		return fmt.Errorf("save lineage: %w", err)
	}
	return nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			District:     e.District,
			Strategy:     e.Strategy,
			Seed:         e.Seed,
			Population:   e.PopulationSize,
			Generations:  e.Generations,
			Converged:    e.Converged,
			FrontSize:    e.FrontSize,
			FinalBest:    e.FinalBest,
		})
	}
	return out, nil
}

// Front returns the hall of fame of a run. Runs whose store was not kept
// (the memory backend) are read back from their artifacts.
func (c *Client) Front(ctx context.Context, req FrontRequest) ([]model.HallOfFameRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "front")
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	front, ok, err := c.store.GetHallOfFame(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		front, ok, err = stats.ReadHallOfFame(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("hall of fame not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(front) > req.Limit {
		front = front[:req.Limit]
	}
	return front, nil
}

func (c *Client) Lineage(ctx context.Context, req LineageRequest) ([]model.LineageRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "lineage")
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		lineage, ok, err = stats.ReadLineage(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(lineage) > req.Limit {
		lineage = lineage[:req.Limit]
	}
	return lineage, nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	return diagnostics, nil
}

// Generation returns the stored population snapshot of one generation; a
// negative generation selects the latest one.
func (c *Client) Generation(ctx context.Context, runID string, generation int) (model.GenerationSnapshot, error) {
	if runID == "" {
		return model.GenerationSnapshot{}, errors.New("run id is required")
	}
	if err := c.Init(ctx); err != nil {
		return model.GenerationSnapshot{}, err
	}
	var (
		snapshot model.GenerationSnapshot
		ok       bool
		err      error
	)
	if generation < 0 {
		snapshot, ok, err = c.store.LatestGeneration(ctx, runID)
	} else {
		snapshot, ok, err = c.store.GetGeneration(ctx, runID, generation)
	}
	if err != nil {
		return model.GenerationSnapshot{}, err
	}
	if !ok {
		return model.GenerationSnapshot{}, fmt.Errorf("generation %d not found for run id: %s", generation, runID)
	}
	return snapshot, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Report summarizes a finished run from its artifact files.
func (c *Client) Report(ctx context.Context, req ReportRequest) (RunReport, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "report")
	if err != nil {
		return RunReport{}, err
	}
	cfg, ok, err := stats.ReadRunConfig(c.artifactsDir, runID)
	if err != nil {
		return RunReport{}, err
	}
	if !ok {
		return RunReport{}, fmt.Errorf("run config not found for run id: %s", runID)
	}
	front, err := stats.ReadFrontCSV(stats.FrontCSVPath(c.artifactsDir, runID))
	if err != nil {
		return RunReport{}, fmt.Errorf("reading front of run %s: %w", runID, err)
	}
	generations, err := stats.ReadGenerationsCSV(stats.GenerationsCSVPath(c.artifactsDir, runID))
	if err != nil {
		return RunReport{}, fmt.Errorf("reading generations of run %s: %w", runID, err)
	}
	records, err := c.Front(ctx, FrontRequest{RunID: runID})
	if err != nil {
		return RunReport{}, err
	}

	components := make(map[model.Component]int)
	for _, rec := range records {
		candidate := model.FromRecord(rec.Candidate)
		for _, id := range candidate.BuildingIDs() {
			building, _ := candidate.Config(id)
			for _, comp := range building.ActiveComponents() {
				components[comp]++
			}
		}
	}
	return RunReport{
		RunID:       runID,
		Config:      cfg,
		Front:       front,
		Generations: generations,
		Components:  components,
	}, nil
}

// Validate reports the rule violations of a district's initial state
// without changing it.
func (c *Client) Validate(_ context.Context, req ValidateRequest) (ValidationReport, error) {
	district, err := loadDistrict(req.DistrictPath, req.District)
	if err != nil {
		return ValidationReport{}, err
	}
	ref, err := district.Reference()
	if err != nil {
		return ValidationReport{}, err
	}
	gen := esys.NewGenerator(ref, esys.DefaultSettings(), c.log)
	repairer := repair.New(gen, !req.AllowBoilerLHN, c.log)
	initial := district.InitialCandidate("initial")
	return ValidationReport{
		District:   district.Name,
		Buildings:  len(district.Buildings),
		Subnets:    len(district.LHN),
		Violations: repairer.Validate(initial),
	}, nil
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func applyRunDefaults(req *RunRequest) {
	if req.Strategy == "" {
		req.Strategy = string(oracle.RefAnnCO2)
	}
	if req.Population <= 0 {
		req.Population = 50
	}
	if req.Generations <= 0 {
		req.Generations = 100
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if req.CrossoverProb == 0 {
		req.CrossoverProb = 0.7
	}
	if req.MutationProb == 0 {
		req.MutationProb = 0.6
	}
	if req.AttributeProb == 0 {
		req.AttributeProb = 0.3
	}
	if req.Participants <= 0 {
		req.Participants = 4
	}
	if req.HallOfFameSize <= 0 {
		req.HallOfFameSize = 4
	}
	if req.MinGenerations <= 0 {
		req.MinGenerations = 30
	}
	if req.StdBreak == 0 {
		req.StdBreak = 0.001
	}
	if req.Selection == "" {
		req.Selection = "anchored"
	}
	if req.AnchorFraction == 0 {
		req.AnchorFraction = 0.8
	}
	if req.MutationCount == "" {
		req.MutationCount = "const"
	}
	if req.MutationCountParam == 0 {
		req.MutationCountParam = 1
	}
	if req.MutationCountMax <= 0 {
		req.MutationCountMax = 4
	}
	if req.MCRuns <= 0 {
		req.MCRuns = 20
	}
	if req.FailureTolerance == 0 {
		req.FailureTolerance = 0.05
	}
}

func loadDistrict(path string, district *refdata.District) (refdata.District, error) {
	if district != nil {
		return *district, nil
	}
	if path == "" {
		return refdata.District{}, errors.New("district file is required")
	}
	return refdata.LoadDistrict(path)
}

// MutationOperators lists the operator names accepted as keys of the
// modify weights.
func MutationOperators() []string {
	return evo.MutationOperatorNames()
}

// cacheScope keys cached objective vectors by everything they depend on.
// The synthetic model is fully described by its settings; any other oracle
// is opaque, so its entries stay private to the run.
func cacheScope(runID string, district refdata.District, evaluator oracle.Oracle, seed int64) (string, error) {
	identity := any(runID)
	if synthetic, ok := evaluator.(*oracle.Synthetic); ok {
		identity = synthetic
	}
	return evalcache.Scope(district, identity, seed)
}

func selectionFromName(name string, fraction float64) (evo.Selector, error) {
	switch name {
	case "anchored":
		if fraction <= 0 || fraction > 1 {
			return nil, fmt.Errorf("anchor fraction must be in (0, 1]")
		}
		return evo.AnchoredSelector{Fraction: fraction}, nil
	case "nsga2":
		return evo.NSGA2Selector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", name)
	}
}

func postprocessorFromName(name string) (evo.FitnessPostprocessor, error) {
	switch name {
	case "", "sanitize":
		return evo.SanitizePostprocessor{}, nil
	case "none":
		return evo.NoopFitnessPostprocessor{}, nil
	default:
		return nil, fmt.Errorf("unsupported fitness postprocessor: %s", name)
	}
}

func statsBaseline(base *oracle.Baseline) *stats.Baseline {
	if base == nil {
		return nil
	}
	return &stats.Baseline{Annuity: base.Annuity, Emissions: base.Emissions}
}
