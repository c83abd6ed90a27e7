package recorder

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/seenimoa/chartscout/internal/config"
	"github.com/seenimoa/chartscout/pkg/models"
)

func testRun(id string, started time.Time, codes ...string) *models.RunResult {
	run := &models.RunResult{
		ID:         id,
		Preset:     "classic",
		Market:     models.MarketKOSPI,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Theme:      &models.MarketTheme{Text: "반도체 강세"},
		Report:     models.ScreenReport{ListingRows: 100, Retained: 10, Sampled: 5, Evaluated: 5},
	}
	for _, c := range codes {
		run.Candidates = append(run.Candidates, models.Candidate{
			Instrument:  models.Instrument{Code: c, Name: "n" + c, Close: 5000, Volume: 1000, ChangePct: 4},
			VolumeRatio: 2.5,
		})
		run.Analyses = append(run.Analyses, models.Analysis{Code: c, Text: "관망"})
	}
	return run
}

func TestSQLiteRecordAndRecent(t *testing.T) {
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "sub", "runs.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rec.Close()

	ctx := context.Background()
	base := time.Date(2026, 2, 11, 15, 40, 0, 0, time.UTC)
	if err := rec.Record(ctx, testRun("r1", base, "005930", "000660")); err != nil {
		t.Fatalf("Record r1: %v", err)
	}
	if err := rec.Record(ctx, testRun("r2", base.Add(24*time.Hour))); err != nil {
		t.Fatalf("Record r2: %v", err)
	}

	got, err := rec.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d runs, want 2", len(got))
	}
	if got[0].ID != "r2" || got[1].ID != "r1" {
		t.Errorf("order = %s, %s; want newest first", got[0].ID, got[1].ID)
	}
	if !slices.Equal(got[1].Candidates, []string{"005930", "000660"}) {
		t.Errorf("candidates = %v", got[1].Candidates)
	}
	if len(got[0].Candidates) != 0 {
		t.Errorf("empty run candidates = %v", got[0].Candidates)
	}
	if got[1].Market != models.MarketKOSPI || got[1].Sampled != 5 || !got[1].StartedAt.Equal(base) {
		t.Errorf("summary = %+v", got[1])
	}

	limited, err := rec.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Recent(1) = %v, %v", limited, err)
	}
}

func TestSQLiteDuplicateID(t *testing.T) {
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "runs.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rec.Close()

	ctx := context.Background()
	run := testRun("dup", time.Now(), "005930")
	if err := rec.Record(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := rec.Record(ctx, run); err == nil {
		t.Error("second insert with the same id should fail")
	}
	got, _ := rec.Recent(ctx, 10)
	if len(got) != 1 || len(got[0].Candidates) != 1 {
		t.Errorf("failed insert leaked rows: %+v", got)
	}
}

func TestOpen(t *testing.T) {
	r, err := Open(config.RecorderConfig{Driver: "none"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(*NoopRecorder); !ok {
		t.Errorf("got %T, want *NoopRecorder", r)
	}
	if runs, err := r.Recent(context.Background(), 5); err != nil || runs != nil {
		t.Errorf("noop Recent = %v, %v", runs, err)
	}

	r, err = Open(config.RecorderConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	if _, err := Open(config.RecorderConfig{Driver: "postgres"}, nil); err == nil {
		t.Error("unknown driver should fail")
	}
}
