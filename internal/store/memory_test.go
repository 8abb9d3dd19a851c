package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/shiptrack/internal/core"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seedManifest(t *testing.T, s *Memory, id string) {
	t.Helper()
	if err := s.SaveManifest(context.Background(), core.ManifestInfo{ID: id, Source: "manifest.csv", CreatedAt: base}); err != nil {
		t.Fatalf("SaveManifest() error: %v", err)
	}
}

func runAt(id, manifestID string, offset time.Duration) core.RunRecord {
	return core.RunRecord{
		ID:         id,
		ManifestID: manifestID,
		Status:     core.RunCompleted,
		StartedAt:  base.Add(offset),
		FinishedAt: base.Add(offset + time.Second),
	}
}

func TestMemory_ListRunsNewestFirst(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedManifest(t, s, "m1")

	for _, r := range []core.RunRecord{
		runAt("r1", "m1", 0),
		runAt("r3", "m1", 2*time.Minute),
		runAt("r2", "m1", time.Minute),
	} {
		if err := s.SaveRun(ctx, r, nil); err != nil {
			t.Fatalf("SaveRun(%s) error: %v", r.ID, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all", 0, []string{"r3", "r2", "r1"}},
		{"negative means all", -1, []string{"r3", "r2", "r1"}},
		{"limited", 2, []string{"r3", "r2"}},
		{"limit above count", 10, []string{"r3", "r2", "r1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListRuns(ctx, "m1", tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, r := range runs {
				got = append(got, r.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("run order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemory_ListRunsUnknownManifest(t *testing.T) {
	runs, err := NewMemory().ListRuns(context.Background(), "nope", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("ListRuns() = %v, want empty", runs)
	}
}

func TestMemory_SaveRunUnknownManifest(t *testing.T) {
	err := NewMemory().SaveRun(context.Background(), runAt("r1", "ghost", 0), nil)
	if !errors.Is(err, core.ErrManifestNotFound) {
		t.Errorf("SaveRun() error = %v, want ErrManifestNotFound", err)
	}
}

func TestMemory_RunResults(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedManifest(t, s, "m1")

	results := []core.ShipmentRecord{
		{ID: 1, TrackingNumber: "MSCU1234567", Carrier: "MSC", State: core.StateResolved, Status: "In Transit"},
		{ID: 2, TrackingNumber: "098-12345678", Carrier: "Unknown", State: core.StateFailed, Status: core.StatusNetworkError},
	}
	if err := s.SaveRun(ctx, runAt("r1", "m1", 0), results); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's slice must not reach the stored snapshot.
	results[0].Status = "Delivered"

	got, err := s.RunResults(ctx, "r1")
	if err != nil {
		t.Fatalf("RunResults() error: %v", err)
	}
	if got[0].Status != "In Transit" || len(got) != 2 {
		t.Errorf("RunResults() = %+v", got)
	}

	got[1].Status = "changed"
	again, _ := s.RunResults(ctx, "r1")
	if again[1].Status != core.StatusNetworkError {
		t.Errorf("RunResults() returned shared storage")
	}

	if _, err := s.RunResults(ctx, "missing"); !errors.Is(err, core.ErrRunNotFound) {
		t.Errorf("RunResults(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestMemory_ContextCancelled(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.SaveManifest(ctx, core.ManifestInfo{ID: "m1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("SaveManifest() error = %v, want context.Canceled", err)
	}
	if err := s.SaveRun(ctx, runAt("r1", "m1", 0), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("SaveRun() error = %v, want context.Canceled", err)
	}
	if _, err := s.ListRuns(ctx, "m1", 0); !errors.Is(err, context.Canceled) {
		t.Errorf("ListRuns() error = %v, want context.Canceled", err)
	}
	if _, err := s.RunResults(ctx, "r1"); !errors.Is(err, context.Canceled) {
		t.Errorf("RunResults() error = %v, want context.Canceled", err)
	}
}

func TestMemory_SaveRunDuplicate(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seedManifest(t, s, "m1")

	results := []core.ShipmentRecord{{ID: 1, TrackingNumber: "MSCU1234567"}}
	if err := s.SaveRun(ctx, runAt("r1", "m1", 0), results); err != nil {
		t.Fatalf("SaveRun() error: %v", err)
	}

	err := s.SaveRun(ctx, runAt("r1", "m1", time.Minute), nil)
	if !errors.Is(err, core.ErrRunExists) {
		t.Fatalf("SaveRun() again error = %v, want ErrRunExists", err)
	}

	runs, _ := s.ListRuns(ctx, "m1", 0)
	if len(runs) != 1 {
		t.Errorf("len(runs) = %d, want 1", len(runs))
	}
	got, _ := s.RunResults(ctx, "r1")
	if len(got) != 1 {
		t.Errorf("results overwritten: %v", got)
	}
}
