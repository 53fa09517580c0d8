package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"districtevo/internal/esys"
	"districtevo/internal/evo"
	api "districtevo/pkg/districtevo"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type runConfig struct {
	District             string               `json:"district" yaml:"district"`
	Strategy             string               `json:"strategy" yaml:"strategy"`
	Population           int                  `json:"population" yaml:"population"`
	Generations          int                  `json:"generations" yaml:"generations"`
	Seed                 int64                `json:"seed" yaml:"seed"`
	Workers              int                  `json:"workers" yaml:"workers"`
	CrossoverProb        float64              `json:"crossover_prob" yaml:"crossover_prob"`
	MutationProb         float64              `json:"mutation_prob" yaml:"mutation_prob"`
	AttributeProb        float64              `json:"attribute_prob" yaml:"attribute_prob"`
	Participants         int                  `json:"participants" yaml:"participants"`
	HallOfFameSize       int                  `json:"hall_of_fame_size" yaml:"hall_of_fame_size"`
	MinGenerations       int                  `json:"min_generations" yaml:"min_generations"`
	StdBreak             float64              `json:"std_break" yaml:"std_break"`
	Selection            string               `json:"selection" yaml:"selection"`
	AnchorFraction       float64              `json:"anchor_fraction" yaml:"anchor_fraction"`
	FitnessPostprocessor string               `json:"fitness_postprocessor" yaml:"fitness_postprocessor"`
	MutationCount        mutationCountConfig  `json:"mutation_count" yaml:"mutation_count"`
	DisableLHN           bool                 `json:"disable_lhn" yaml:"disable_lhn"`
	AllowBoilerLHN       bool                 `json:"allow_boiler_lhn" yaml:"allow_boiler_lhn"`
	EvaluationsPerSecond float64              `json:"evaluations_per_second" yaml:"evaluations_per_second"`
	Oracle               oracleConfig         `json:"oracle" yaml:"oracle"`
	Weights              *evo.MutationWeights `json:"weights,omitempty" yaml:"weights,omitempty"`
	LHN                  *evo.LHNSettings     `json:"lhn,omitempty" yaml:"lhn,omitempty"`
	Esys                 *esys.Settings       `json:"esys,omitempty" yaml:"esys,omitempty"`
	Store                storeConfig          `json:"store" yaml:"store"`
	Cache                cacheConfig          `json:"cache" yaml:"cache"`
	LogLevel             string               `json:"log_level" yaml:"log_level"`
}

type mutationCountConfig struct {
	Policy string  `json:"policy" yaml:"policy"`
	Param  float64 `json:"param" yaml:"param"`
	Max    int     `json:"max" yaml:"max"`
}

type oracleConfig struct {
	MCRuns           int     `json:"mc_runs" yaml:"mc_runs"`
	FailureTolerance float64 `json:"failure_tolerance" yaml:"failure_tolerance"`
}

type storeConfig struct {
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`
}

type cacheConfig struct {
	Kind     string `json:"kind" yaml:"kind"`
	RedisURL string `json:"redis_url" yaml:"redis_url"`
	Capacity int    `json:"capacity" yaml:"capacity"`
	TTL      string `json:"ttl" yaml:"ttl"`
}

// loadRunConfig starts from the embedded defaults and overlays the file at
// path, if any. Files ending in .json are decoded as JSON, anything else as
// YAML.
func loadRunConfig(path string) (runConfig, error) {
	var cfg runConfig
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return runConfig{}, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, fmt.Errorf("reading config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return runConfig{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func (c runConfig) request() api.RunRequest {
	return api.RunRequest{
		DistrictPath:         c.District,
		Strategy:             c.Strategy,
		Population:           c.Population,
		Generations:          c.Generations,
		Seed:                 c.Seed,
		Workers:              c.Workers,
		CrossoverProb:        c.CrossoverProb,
		MutationProb:         c.MutationProb,
		AttributeProb:        c.AttributeProb,
		Participants:         c.Participants,
		HallOfFameSize:       c.HallOfFameSize,
		MinGenerations:       c.MinGenerations,
		StdBreak:             c.StdBreak,
		Selection:            c.Selection,
		AnchorFraction:       c.AnchorFraction,
		FitnessPostprocessor: c.FitnessPostprocessor,
		MutationCount:        c.MutationCount.Policy,
		MutationCountParam:   c.MutationCount.Param,
		MutationCountMax:     c.MutationCount.Max,
		DisableLHN:           c.DisableLHN,
		AllowBoilerLHN:       c.AllowBoilerLHN,
		EvaluationsPerSecond: c.EvaluationsPerSecond,
		MCRuns:               c.Oracle.MCRuns,
		FailureTolerance:     c.Oracle.FailureTolerance,
		Weights:              c.Weights,
		LHN:                  c.LHN,
		Esys:                 c.Esys,
	}
}

func (c runConfig) options(log *logrus.Logger) (api.Options, error) {
	var ttl time.Duration
	if c.Cache.TTL != "" {
		d, err := time.ParseDuration(c.Cache.TTL)
		if err != nil {
			return api.Options{}, fmt.Errorf("cache ttl: %w", err)
		}
		ttl = d
	}
	return api.Options{
		StoreKind:     c.Store.Kind,
		DSN:           c.Store.DSN,
		ArtifactsDir:  artifactsDir,
		ExportsDir:    exportsDir,
		CacheKind:     c.Cache.Kind,
		RedisURL:      c.Cache.RedisURL,
		CacheCapacity: c.Cache.Capacity,
		CacheTTL:      ttl,
		Log:           log,
	}, nil
}

func (c runConfig) validate() error {
	if c.Population <= 0 {
		return fmt.Errorf("population must be > 0")
	}
	if c.Generations <= 0 {
		return fmt.Errorf("generations must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	for name, p := range map[string]float64{
		"crossover_prob": c.CrossoverProb,
		"mutation_prob":  c.MutationProb,
		"attribute_prob": c.AttributeProb,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be in [0, 1]", name)
		}
	}
	if c.EvaluationsPerSecond < 0 {
		return fmt.Errorf("evaluations_per_second must be >= 0")
	}
	return nil
}

// overrideFromFlags copies explicitly set flags onto cfg.
func overrideFromFlags(cfg *runConfig, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "district":
			cfg.District = v.(string)
		case "strategy":
			cfg.Strategy = v.(string)
		case "pop":
			cfg.Population = v.(int)
		case "gens":
			cfg.Generations = v.(int)
		case "seed":
			cfg.Seed = v.(int64)
		case "workers":
			cfg.Workers = v.(int)
		case "cx-prob":
			cfg.CrossoverProb = v.(float64)
		case "mut-prob":
			cfg.MutationProb = v.(float64)
		case "attr-prob":
			cfg.AttributeProb = v.(float64)
		case "participants":
			cfg.Participants = v.(int)
		case "hof-size":
			cfg.HallOfFameSize = v.(int)
		case "min-gens":
			cfg.MinGenerations = v.(int)
		case "std-break":
			cfg.StdBreak = v.(float64)
		case "selection":
			cfg.Selection = v.(string)
		case "anchor-fraction":
			cfg.AnchorFraction = v.(float64)
		case "fitness-postprocessor":
			cfg.FitnessPostprocessor = v.(string)
		case "mutation-count":
			cfg.MutationCount.Policy = v.(string)
		case "mutation-count-param":
			cfg.MutationCount.Param = v.(float64)
		case "mutation-count-max":
			cfg.MutationCount.Max = v.(int)
		case "no-lhn":
			cfg.DisableLHN = v.(bool)
		case "allow-boiler-lhn":
			cfg.AllowBoilerLHN = v.(bool)
		case "rate":
			cfg.EvaluationsPerSecond = v.(float64)
		case "mc-runs":
			cfg.Oracle.MCRuns = v.(int)
		case "failure-tolerance":
			cfg.Oracle.FailureTolerance = v.(float64)
		case "store":
			cfg.Store.Kind = v.(string)
		case "dsn":
			cfg.Store.DSN = v.(string)
		case "cache":
			cfg.Cache.Kind = v.(string)
		case "redis-url":
			cfg.Cache.RedisURL = v.(string)
		case "log-level":
			cfg.LogLevel = v.(string)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

func newLogger(level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if level == "" {
		return log, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	return log, nil
}
