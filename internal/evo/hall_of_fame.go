package evo

import (
	"districtevo/internal/model"
	"districtevo/internal/oracle"
)

// HallOfFame keeps up to size non-dominated candidates seen during a run.
// Penalized and duplicate configurations are never admitted; when the front
// outgrows size the most crowded members are dropped.
type HallOfFame struct {
	size     int
	strategy oracle.Strategy
	members  []*model.Candidate
}

func NewHallOfFame(size int, strategy oracle.Strategy) *HallOfFame {
	return &HallOfFame{size: size, strategy: strategy}
}

func (h *HallOfFame) Update(pop []*model.Candidate) {
	if h.size <= 0 {
		return
	}
	seen := make(map[string]bool, len(h.members)+len(pop))
	pool := make([]*model.Candidate, 0, len(h.members)+len(pop))
	for _, c := range h.members {
		seen[c.Fingerprint()] = true
		pool = append(pool, c)
	}
	for _, c := range pop {
		if !c.Fitness.Valid || h.strategy.IsPenalty(c.Fitness.Values) {
			continue
		}
		fp := c.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		pool = append(pool, c.Clone())
	}
	front := FirstFront(pool)
	if len(front) > h.size {
		front = SelectNSGA2(front, h.size)
	}
	h.members = front
}

func (h *HallOfFame) Len() int {
	return len(h.members)
}

// Members returns clones of the current members.
func (h *HallOfFame) Members() []*model.Candidate {
	out := make([]*model.Candidate, len(h.members))
	for i, c := range h.members {
		out[i] = c.Clone()
	}
	return out
}

// HallOfFameRecords converts front members to records ranked by position.
func HallOfFameRecords(members []*model.Candidate) []model.HallOfFameRecord {
	out := make([]model.HallOfFameRecord, len(members))
	for i, c := range members {
		out[i] = model.HallOfFameRecord{
			Rank:        i,
			Fingerprint: c.Fingerprint(),
			Candidate:   c.Record(),
		}
	}
	return out
}
