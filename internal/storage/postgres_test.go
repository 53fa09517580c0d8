package storage

import (
	"context"
	"os"
	"testing"
)

func TestPostgresStoreRoundTrips(t *testing.T) {
	dsn := os.Getenv("DISTRICTEVO_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DISTRICTEVO_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store := NewPostgresStore(dsn)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	for _, table := range []string{"generations", "runs", "diagnostics", "hall_of_fame", "lineage"} {
		if err := store.exec(ctx, `DELETE FROM `+table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
	exerciseStore(t, store)
}
