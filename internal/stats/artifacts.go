package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"districtevo/internal/model"
)

const runIndexFile = "run_index.json"

const (
	configFile         = "config.json"
	fitnessHistoryFile = "fitness_history.json"
	hallOfFameFile     = "hall_of_fame.json"
	lineageFile        = "lineage.json"
	diagnosticsFile    = "generation_diagnostics.json"
	frontCSVFile       = "pareto_front.csv"
	generationsCSVFile = "generations.csv"
	buildingsCSVFile   = "front_buildings.csv"
)

type RunConfig struct {
	RunID                string  `json:"run_id"`
	District             string  `json:"district"`
	Strategy             string  `json:"strategy"`
	PopulationSize       int     `json:"population_size"`
	Generations          int     `json:"generations"`
	Seed                 int64   `json:"seed"`
	Workers              int     `json:"workers"`
	CrossoverProb        float64 `json:"crossover_prob"`
	MutationProb         float64 `json:"mutation_prob"`
	MutationCount        string  `json:"mutation_count"`
	Participants         int     `json:"participants"`
	HallOfFameSize       int     `json:"hall_of_fame_size"`
	MinGenerations       int     `json:"min_generations"`
	StdBreak             float64 `json:"std_break"`
	AnchorFraction       float64 `json:"anchor_fraction"`
	WithLHN              bool    `json:"with_lhn"`
	EvaluationsPerSecond float64 `json:"evaluations_per_second,omitempty"`
	Cache                string  `json:"cache,omitempty"`
	Store                string  `json:"store,omitempty"`
}

type Baseline struct {
	Annuity   float64 `json:"annuity"`
	Emissions float64 `json:"emissions"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	BestByGeneration      [][]float64                   `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	HallOfFame            []model.HallOfFameRecord      `json:"hall_of_fame"`
	Lineage               []model.LineageRecord         `json:"lineage"`
	Converged             bool                          `json:"converged"`
	Baseline              *Baseline                     `json:"baseline,omitempty"`
}

type RunIndexEntry struct {
	RunID          string    `json:"run_id"`
	District       string    `json:"district"`
	Strategy       string    `json:"strategy"`
	PopulationSize int       `json:"population_size"`
	Generations    int       `json:"generations"`
	Seed           int64     `json:"seed"`
	Workers        int       `json:"workers"`
	Converged      bool      `json:"converged"`
	FrontSize      int       `json:"front_size"`
	FinalBest      []float64 `json:"final_best,omitempty"`
	CreatedAtUTC   string    `json:"created_at_utc"`
}

// WriteRunArtifacts writes the JSON artifacts and the CSV exports of one run
// under baseDir/<run id> and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := WriteRunConfig(baseDir, artifacts.Config.RunID, artifacts.Config); err != nil {
		return "", err
	}
	history := map[string]any{
		"best_by_generation": artifacts.BestByGeneration,
		"converged":          artifacts.Converged,
	}
	if artifacts.Baseline != nil {
		history["baseline"] = artifacts.Baseline
	}
	if err := writeJSON(filepath.Join(runDir, fitnessHistoryFile), history); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, hallOfFameFile), nonNilRecords(artifacts.HallOfFame)); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, lineageFile), nonNilLineage(artifacts.Lineage)); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, diagnosticsFile), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}

	if err := WriteFrontCSV(filepath.Join(runDir, frontCSVFile), artifacts.HallOfFame); err != nil {
		return "", err
	}
	if err := WriteBuildingsCSV(filepath.Join(runDir, buildingsCSVFile), artifacts.HallOfFame); err != nil {
		return "", err
	}
	if err := WriteGenerationsCSV(filepath.Join(runDir, generationsCSVFile), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := entries[order[a]], entries[order[b]]
		if ea.CreatedAtUTC == eb.CreatedAtUTC {
			// Later appends win ties.
			return order[a] > order[b]
		}
		return ea.CreatedAtUTC > eb.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(entries))
	for _, idx := range order {
		sorted = append(sorted, entries[idx])
	}
	return sorted, nil
}

// ExportRunArtifacts copies the artifacts of runID into outDir/<run id>.
// Missing CSV exports are skipped.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, fitnessHistoryFile, hallOfFameFile, lineageFile, diagnosticsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{frontCSVFile, buildingsCSVFile, generationsCSVFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

// FrontCSVPath is the pareto_front.csv of a run under baseDir.
func FrontCSVPath(baseDir, runID string) string {
	return filepath.Join(baseDir, runID, frontCSVFile)
}

func GenerationsCSVPath(baseDir, runID string) string {
	return filepath.Join(baseDir, runID, generationsCSVFile)
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	if err != nil || !ok {
		return RunConfig{}, ok, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = runID
	}
	if cfg.RunID != runID {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, runID)
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func ReadHallOfFame(baseDir, runID string) ([]model.HallOfFameRecord, bool, error) {
	var records []model.HallOfFameRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, hallOfFameFile), &records)
	if err != nil || !ok {
		return nil, ok, err
	}
	return records, true, nil
}

func ReadLineage(baseDir, runID string) ([]model.LineageRecord, bool, error) {
	var lineage []model.LineageRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, lineageFile), &lineage)
	if err != nil || !ok {
		return nil, ok, err
	}
	return lineage, true, nil
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, diagnosticsFile), &diagnostics)
	if err != nil || !ok {
		return nil, ok, err
	}
	return diagnostics, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func nonNilRecords(records []model.HallOfFameRecord) []model.HallOfFameRecord {
	if records == nil {
		return []model.HallOfFameRecord{}
	}
	return records
}

func nonNilLineage(records []model.LineageRecord) []model.LineageRecord {
	if records == nil {
		return []model.LineageRecord{}
	}
	return records
}
