package storage

import (
	"context"
	"testing"
	"time"

	"districtevo/internal/model"
)

func testSnapshot(runID string, generation int) model.GenerationSnapshot {
	c := model.NewCandidate("g1-i0", map[model.BuildingID]model.EsysConfig{
		1: {Boi: 20000, PV: 12},
		2: {},
	}, model.Topology{{1, 2}})
	c.Fitness = model.NewFitness([]float64{1200, 3.5}, []model.Direction{model.Minimize, model.Minimize})
	return model.GenerationSnapshot{
		RunID:      runID,
		Generation: generation,
		Strategy:   "ann_and_co2_ref_test",
		Population: []model.CandidateRecord{c.Record()},
	}
}

// exerciseStore runs the same round trips against any backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	for gen := 0; gen < 3; gen++ {
		if err := store.SaveGeneration(ctx, testSnapshot("run-1", gen)); err != nil {
			t.Fatalf("save generation %d: %v", gen, err)
		}
	}
	snapshot, ok, err := store.GetGeneration(ctx, "run-1", 1)
	if err != nil || !ok {
		t.Fatalf("get generation: ok=%v err=%v", ok, err)
	}
	if snapshot.SchemaVersion != CurrentSchemaVersion || len(snapshot.Population) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	restored := model.FromRecord(snapshot.Population[0])
	if !restored.IsConnected(2) || restored.Fitness.Values[0] != 1200 {
		t.Fatalf("candidate not restored: %+v", restored)
	}
	latest, ok, err := store.LatestGeneration(ctx, "run-1")
	if err != nil || !ok || latest.Generation != 2 {
		t.Fatalf("latest generation: gen=%d ok=%v err=%v", latest.Generation, ok, err)
	}
	if _, ok, err := store.GetGeneration(ctx, "run-1", 7); err != nil || ok {
		t.Fatalf("expected missing generation, ok=%v err=%v", ok, err)
	}

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-b", "run-a"} {
		summary := model.RunSummary{RunID: id, Strategy: "ann_and_co2_ref_test", Generations: 10 + i, StartedAt: started.Add(time.Duration(i) * time.Hour)}
		if err := store.SaveRun(ctx, summary); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-b" || runs[1].Generations != 11 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if run, ok, err := store.GetRun(ctx, "run-a"); err != nil || !ok || !run.StartedAt.Equal(started.Add(time.Hour)) {
		t.Fatalf("get run: %+v ok=%v err=%v", run, ok, err)
	}

	diagnostics := []model.GenerationDiagnostics{{Generation: 0, Evaluations: 8}, {Generation: 1, FrontSize: 3}}
	if err := store.SaveGenerationDiagnostics(ctx, "run-1", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	gotDiag, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil || !ok || len(gotDiag) != 2 || gotDiag[1].FrontSize != 3 {
		t.Fatalf("diagnostics: %+v ok=%v err=%v", gotDiag, ok, err)
	}

	hof := []model.HallOfFameRecord{{Rank: 0, Fingerprint: "abc", Candidate: testSnapshot("run-1", 0).Population[0]}}
	if err := store.SaveHallOfFame(ctx, "run-1", hof); err != nil {
		t.Fatalf("save hall of fame: %v", err)
	}
	gotHOF, ok, err := store.GetHallOfFame(ctx, "run-1")
	if err != nil || !ok || len(gotHOF) != 1 || gotHOF[0].Fingerprint != "abc" {
		t.Fatalf("hall of fame: %+v ok=%v err=%v", gotHOF, ok, err)
	}

	lineage := []model.LineageRecord{{CandidateID: "g1-i0", ParentID: "g0-i3", Generation: 1, Operation: "cx(esys)"}}
	if err := store.SaveLineage(ctx, "run-1", lineage); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	gotLineage, ok, err := store.GetLineage(ctx, "run-1")
	if err != nil || !ok || len(gotLineage) != 1 || gotLineage[0].ParentID != "g0-i3" {
		t.Fatalf("lineage: %+v ok=%v err=%v", gotLineage, ok, err)
	}
	if _, ok, err := store.GetLineage(ctx, "run-unknown"); err != nil || ok {
		t.Fatalf("expected missing lineage, ok=%v err=%v", ok, err)
	}
}
