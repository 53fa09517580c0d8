package stats

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"districtevo/internal/model"
)

// FrontRow is one hall of fame member in pareto_front.csv. Flexibility is
// zero for two-objective strategies.
type FrontRow struct {
	Rank        int     `csv:"rank"`
	CandidateID string  `csv:"candidate_id"`
	Fingerprint string  `csv:"fingerprint"`
	Axes        int     `csv:"axes"`
	Annuity     float64 `csv:"annuity"`
	Emissions   float64 `csv:"emissions"`
	Flexibility float64 `csv:"flexibility"`
	Buildings   int     `csv:"buildings"`
	Subnets     int     `csv:"subnets"`
	Connected   int     `csv:"connected"`
}

// BuildingRow is the energy system of one building of one front member.
// Subnet is -1 for stand-alone buildings.
type BuildingRow struct {
	Rank        int    `csv:"rank"`
	CandidateID string `csv:"candidate_id"`
	BuildingID  int    `csv:"building_id"`
	Subnet      int    `csv:"subnet"`
	model.EsysConfig
}

type GenerationRow struct {
	Generation      int     `csv:"generation"`
	Evaluations     int     `csv:"evaluations"`
	CacheHits       int     `csv:"cache_hits"`
	Invalid         int     `csv:"invalid"`
	Penalized       int     `csv:"penalized"`
	FrontSize       int     `csv:"front_size"`
	Diversity       int     `csv:"fingerprint_diversity"`
	MeanSubnets     float64 `csv:"mean_subnets"`
	MeanConnected   float64 `csv:"mean_connected"`
	Anchored        bool    `csv:"anchored"`
	BestAnnuity     float64 `csv:"best_annuity"`
	MeanAnnuity     float64 `csv:"mean_annuity"`
	StdAnnuity      float64 `csv:"std_annuity"`
	BestEmissions   float64 `csv:"best_emissions"`
	MeanEmissions   float64 `csv:"mean_emissions"`
	StdEmissions    float64 `csv:"std_emissions"`
	BestFlexibility float64 `csv:"best_flexibility"`
	MeanFlexibility float64 `csv:"mean_flexibility"`
	StdFlexibility  float64 `csv:"std_flexibility"`
}

func FrontRows(records []model.HallOfFameRecord) []FrontRow {
	rows := make([]FrontRow, 0, len(records))
	for _, rec := range records {
		row := FrontRow{
			Rank:        rec.Rank,
			CandidateID: rec.Candidate.ID,
			Fingerprint: rec.Fingerprint,
			Axes:        len(rec.Candidate.Fitness.Values),
			Buildings:   len(rec.Candidate.Buildings),
			Subnets:     len(rec.Candidate.LHN),
		}
		for _, subnet := range rec.Candidate.LHN {
			row.Connected += len(subnet)
		}
		values := rec.Candidate.Fitness.Values
		if len(values) > 0 {
			row.Annuity = values[0]
		}
		if len(values) > 1 {
			row.Emissions = values[1]
		}
		if len(values) > 2 {
			row.Flexibility = values[2]
		}
		rows = append(rows, row)
	}
	return rows
}

func BuildingRows(records []model.HallOfFameRecord) []BuildingRow {
	var rows []BuildingRow
	for _, rec := range records {
		subnetOf := make(map[model.BuildingID]int)
		for idx, subnet := range rec.Candidate.LHN {
			for _, id := range subnet {
				subnetOf[id] = idx
			}
		}
		for _, b := range rec.Candidate.Buildings {
			subnet, ok := subnetOf[b.ID]
			if !ok {
				subnet = -1
			}
			rows = append(rows, BuildingRow{
				Rank:        rec.Rank,
				CandidateID: rec.Candidate.ID,
				BuildingID:  int(b.ID),
				Subnet:      subnet,
				EsysConfig:  b.Esys,
			})
		}
	}
	if rows == nil {
		rows = []BuildingRow{}
	}
	return rows
}

func GenerationRows(diagnostics []model.GenerationDiagnostics) []GenerationRow {
	rows := make([]GenerationRow, 0, len(diagnostics))
	for _, d := range diagnostics {
		row := GenerationRow{
			Generation:    d.Generation,
			Evaluations:   d.Evaluations,
			CacheHits:     d.CacheHits,
			Invalid:       d.InvalidCount,
			Penalized:     d.PenalizedCount,
			FrontSize:     d.FrontSize,
			Diversity:     d.FingerprintDiversity,
			MeanSubnets:   d.MeanSubnets,
			MeanConnected: d.MeanConnected,
			Anchored:      d.Anchored,
		}
		for _, obj := range d.Objectives {
			switch obj.Axis {
			case 0:
				row.BestAnnuity, row.MeanAnnuity, row.StdAnnuity = obj.Best, obj.Mean, obj.Std
			case 1:
				row.BestEmissions, row.MeanEmissions, row.StdEmissions = obj.Best, obj.Mean, obj.Std
			case 2:
				row.BestFlexibility, row.MeanFlexibility, row.StdFlexibility = obj.Best, obj.Mean, obj.Std
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// EncodeFront writes the front as CSV, header included.
func EncodeFront(w io.Writer, records []model.HallOfFameRecord) error {
	if err := gocsv.Marshal(FrontRows(records), w); err != nil {
		return fmt.Errorf("writing pareto front: %w", err)
	}
	return nil
}

func WriteFrontCSV(path string, records []model.HallOfFameRecord) error {
	return writeCSV(path, FrontRows(records))
}

func WriteBuildingsCSV(path string, records []model.HallOfFameRecord) error {
	return writeCSV(path, BuildingRows(records))
}

func WriteGenerationsCSV(path string, diagnostics []model.GenerationDiagnostics) error {
	return writeCSV(path, GenerationRows(diagnostics))
}

func ReadFrontCSV(path string) ([]FrontRow, error) {
	var rows []FrontRow
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func ReadGenerationsCSV(path string) ([]GenerationRow, error) {
	var rows []GenerationRow
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func writeCSV(path string, rows any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer file.Close()
	if err := gocsv.Marshal(rows, file); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Sync()
}

func readCSV(path string, out any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := gocsv.UnmarshalFile(file, out); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
