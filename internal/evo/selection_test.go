package evo

import (
	"fmt"
	"math"
	"testing"

	"districtevo/internal/model"
)

func TestSortNondominatedPutsInvalidLast(t *testing.T) {
	invalid := scored("d", 0, 0)
	invalid.InvalidateFitness()
	pool := []*model.Candidate{scored("a", 1, 1), scored("b", 2, 2), scored("c", 0, 3), invalid}

	fronts := SortNondominated(pool)
	want := [][]int{{0, 2}, {1}, {3}}
	if len(fronts) != len(want) {
		t.Fatalf("fronts=%v want=%v", fronts, want)
	}
	for i := range want {
		if len(fronts[i]) != len(want[i]) {
			t.Fatalf("fronts=%v want=%v", fronts, want)
		}
		for j := range want[i] {
			if fronts[i][j] != want[i][j] {
				t.Fatalf("fronts=%v want=%v", fronts, want)
			}
		}
	}
	if got := FirstFront([]*model.Candidate{invalid}); got != nil {
		t.Fatalf("invalid-only pool has no first front, got %v", got)
	}
}

func TestCrowdingDistanceBoundariesAreInfinite(t *testing.T) {
	pool := []*model.Candidate{scored("a", 0, 2), scored("b", 1, 1), scored("c", 2, 0)}
	dist := CrowdingDistance(pool, []int{0, 1, 2})
	if !math.IsInf(dist[0], 1) || !math.IsInf(dist[2], 1) {
		t.Fatalf("expected infinite boundaries, got %v", dist)
	}
	if dist[1] != 2 {
		t.Fatalf("expected middle distance 2, got %v", dist[1])
	}
}

func TestSelectNSGA2PrefersSpreadOnLastFront(t *testing.T) {
	pool := []*model.Candidate{
		scored("a", 0, 4), scored("b", 1, 3), scored("c", 1.1, 2.9), scored("d", 4, 0), scored("e", 5, 5),
	}
	chosen := SelectNSGA2(pool, 3)
	ids := map[string]bool{}
	for _, c := range chosen {
		ids[c.ID] = true
	}
	if !ids["a"] || !ids["d"] || ids["e"] {
		t.Fatalf("unexpected selection: %v", ids)
	}
}

func lineFront(n int) []*model.Candidate {
	out := make([]*model.Candidate, n)
	for i := range out {
		out[i] = scored(string(rune('A'+i)), float64(i), float64(n-1-i))
	}
	return out
}

func TestAnchoredSelectorKeepsPerAxisBest(t *testing.T) {
	parents := lineFront(10)
	offspring := []*model.Candidate{scored("x", 20, 20), scored("y", 21, 21)}

	sel, err := AnchoredSelector{Fraction: 0.8}.Select(newRand(1), parents, offspring, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !sel.Anchored || sel.Anchors != 8 {
		t.Fatalf("expected 8 anchors, got %+v", sel)
	}
	if len(sel.Population) != 10 {
		t.Fatalf("expected 10 survivors, got %d", len(sel.Population))
	}
	ids := map[string]bool{}
	for _, c := range sel.Population {
		ids[c.ID] = true
	}
	if !ids["A"] || !ids["J"] {
		t.Fatalf("per-axis best members lost: %v", ids)
	}
}

func TestAnchoredSelectorFiresAtOffspringLimit(t *testing.T) {
	cases := []struct {
		fraction float64
		n        int
		anchors  int
	}{
		{fraction: 0.8, n: 10, anchors: 8},
		{fraction: 0.9, n: 10, anchors: 9},
		{fraction: 0.7, n: 10, anchors: 7},
		{fraction: 0.6, n: 5, anchors: 3},
	}
	for _, tc := range cases {
		limit := tc.n - tc.anchors
		offspring := make([]*model.Candidate, 0, limit+1)
		for i := 0; i <= limit; i++ {
			offspring = append(offspring, scored(fmt.Sprintf("o%d", i), float64(30+i), float64(30+i)))
		}

		sel, err := AnchoredSelector{Fraction: tc.fraction}.Select(newRand(3), lineFront(tc.n), offspring[:limit], tc.n)
		if err != nil {
			t.Fatalf("fraction %v: select: %v", tc.fraction, err)
		}
		if !sel.Anchored || sel.Anchors != tc.anchors {
			t.Fatalf("fraction %v with %d offspring: expected %d anchors, got %+v", tc.fraction, limit, tc.anchors, sel)
		}

		sel, err = AnchoredSelector{Fraction: tc.fraction}.Select(newRand(3), lineFront(tc.n), offspring, tc.n)
		if err != nil {
			t.Fatalf("fraction %v: select: %v", tc.fraction, err)
		}
		if sel.Anchored {
			t.Fatalf("fraction %v with %d offspring: anchoring must not fire", tc.fraction, limit+1)
		}
	}
}

func TestAnchoredSelectorTopsUpFromParents(t *testing.T) {
	parents := lineFront(10)
	offspring := []*model.Candidate{scored("x", 20, 20)}

	sel, err := AnchoredSelector{Fraction: 0.8}.Select(newRand(2), parents, offspring, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(sel.Population) != 10 || sel.ToppedUp != 1 {
		t.Fatalf("expected one top-up to reach 10, got len=%d topped=%d", len(sel.Population), sel.ToppedUp)
	}
}

func TestAnchoredSelectorFallsBackWithManyOffspring(t *testing.T) {
	parents := lineFront(10)
	offspring := []*model.Candidate{
		scored("v", 20, 20), scored("w", 21, 21), scored("x", 22, 22), scored("y", 23, 23), scored("z", 24, 24),
	}
	sel, err := AnchoredSelector{Fraction: 0.8}.Select(newRand(1), parents, offspring, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Anchored {
		t.Fatal("anchoring must not apply with many offspring")
	}
	for _, c := range sel.Population {
		if c.Fitness.Values[0] >= 20 {
			t.Fatalf("dominated offspring %s survived", c.ID)
		}
	}
	if _, err := (AnchoredSelector{Fraction: 1.5}).Select(newRand(1), parents, offspring, 10); err == nil {
		t.Fatal("expected fraction error")
	}
}
