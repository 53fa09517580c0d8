package evo

import "districtevo/internal/model"

// TopologySummary counts the structural features of a candidate.
type TopologySummary struct {
	Buildings  int                     `json:"buildings"`
	Subnets    int                     `json:"subnets"`
	Connected  int                     `json:"connected"`
	Feeders    int                     `json:"feeders"`
	Components map[model.Component]int `json:"components,omitempty"`
}

type CandidateSignature struct {
	Fingerprint string          `json:"fingerprint"`
	Summary     TopologySummary `json:"summary"`
}

func ComputeSignature(c *model.Candidate) CandidateSignature {
	summary := TopologySummary{
		Buildings:  len(c.Buildings),
		Subnets:    len(c.LHN),
		Connected:  len(c.ConnectedIDs()),
		Components: make(map[model.Component]int),
	}
	for i := range c.LHN {
		summary.Feeders += len(c.Feeders(i))
	}
	for _, cfg := range c.Buildings {
		for _, comp := range cfg.ActiveComponents() {
			summary.Components[comp]++
		}
	}
	return CandidateSignature{Fingerprint: c.Fingerprint(), Summary: summary}
}
