package model

import (
	"sort"
	"time"
)

type BuildingRecord struct {
	ID   BuildingID `json:"id"`
	Esys EsysConfig `json:"esys"`
}

// CandidateRecord is the persisted form of a Candidate.
type CandidateRecord struct {
	ID        string           `json:"id"`
	Buildings []BuildingRecord `json:"buildings"`
	LHN       [][]BuildingID   `json:"lhn"`
	Fitness   Fitness          `json:"fitness"`
}

func (c *Candidate) Record() CandidateRecord {
	rec := CandidateRecord{
		ID:        c.ID,
		Buildings: make([]BuildingRecord, 0, len(c.Buildings)),
		LHN:       make([][]BuildingID, 0, len(c.LHN)),
		Fitness:   c.Fitness.Clone(),
	}
	for _, id := range c.BuildingIDs() {
		rec.Buildings = append(rec.Buildings, BuildingRecord{ID: id, Esys: c.Buildings[id]})
	}
	for _, subnet := range c.LHN {
		rec.LHN = append(rec.LHN, append([]BuildingID(nil), subnet...))
	}
	return rec
}

func FromRecord(rec CandidateRecord) *Candidate {
	buildings := make(map[BuildingID]EsysConfig, len(rec.Buildings))
	for _, b := range rec.Buildings {
		buildings[b.ID] = b.Esys
	}
	lhn := make(Topology, 0, len(rec.LHN))
	for _, subnet := range rec.LHN {
		lhn = append(lhn, Subnet(subnet))
	}
	c := NewCandidate(rec.ID, buildings, lhn)
	c.Fitness = rec.Fitness.Clone()
	return c
}

// GenerationSnapshot is the population of one generation of one run.
type GenerationSnapshot struct {
	VersionedRecord
	RunID      string            `json:"run_id"`
	Generation int               `json:"generation"`
	Strategy   string            `json:"strategy"`
	Population []CandidateRecord `json:"population"`
}

// ObjectiveStats summarizes one objective axis over the valid candidates of
// a generation.
type ObjectiveStats struct {
	Axis      int       `json:"axis"`
	Direction Direction `json:"direction"`
	Min       float64   `json:"min"`
	Mean      float64   `json:"mean"`
	Max       float64   `json:"max"`
	Std       float64   `json:"std"`
	Best      float64   `json:"best"`
}

type GenerationDiagnostics struct {
	Generation           int              `json:"generation"`
	Objectives           []ObjectiveStats `json:"objectives"`
	InvalidCount         int              `json:"invalid_count"`
	PenalizedCount       int              `json:"penalized_count"`
	FrontSize            int              `json:"front_size"`
	Evaluations          int              `json:"evaluations"`
	CacheHits            int              `json:"cache_hits"`
	FingerprintDiversity int              `json:"fingerprint_diversity"`
	MeanSubnets          float64          `json:"mean_subnets"`
	MeanConnected        float64          `json:"mean_connected"`
	Anchored             bool             `json:"anchored"`
}

type HallOfFameRecord struct {
	VersionedRecord
	Rank        int             `json:"rank"`
	Fingerprint string          `json:"fingerprint"`
	Candidate   CandidateRecord `json:"candidate"`
}

type LineageRecord struct {
	VersionedRecord
	CandidateID string `json:"candidate_id"`
	ParentID    string `json:"parent_id"`
	Generation  int    `json:"generation"`
	Operation   string `json:"operation"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// RunSummary indexes one optimization run.
type RunSummary struct {
	VersionedRecord
	RunID          string    `json:"run_id"`
	Strategy       string    `json:"strategy"`
	District       string    `json:"district,omitempty"`
	Seed           int64     `json:"seed"`
	PopulationSize int       `json:"population_size"`
	Generations    int       `json:"generations"`
	Converged      bool      `json:"converged"`
	FrontSize      int       `json:"front_size"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// SortedBuildingIDs returns a sorted copy of ids.
func SortedBuildingIDs(ids []BuildingID) []BuildingID {
	out := append([]BuildingID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
