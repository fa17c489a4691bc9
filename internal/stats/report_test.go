package stats

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/octomike/sp-experiment/internal/model"
	"github.com/octomike/sp-experiment/internal/store"
)

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "sp.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	recs := sessionLog()
	sum, trials, err := Summarize(recs)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	var ids []string
	for i := 0; i < 3; i++ {
		sum.Subject = "01"
		sum.Path = fmt.Sprintf("/data/sub-01_run-%d.tsv", i)
		sum.ImportedAt = time.Unix(0, 0).Add(time.Duration(i) * time.Minute)
		id, err := st.ImportSession(ctx, sum, trials, recs)
		if err != nil {
			t.Fatalf("import session: %v", err)
		}
		ids = append(ids, id)
	}

	report, err := BuildReport(ctx, st, model.StatsConfig{Subject: "01", Last: 2})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if len(report.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(report.Sessions))
	}
	if report.Sessions[0].ID != ids[1] || report.Sessions[1].ID != ids[2] {
		t.Fatalf("unexpected session ids: %+v", report.Sessions)
	}
	if len(report.Trials) != 4 {
		t.Fatalf("expected 4 trials, got %d", len(report.Trials))
	}
	if got := report.TrialsOf(ids[2]); len(got) != 2 || got[1].Trial != 1 {
		t.Fatalf("unexpected trials for last session: %+v", got)
	}
}
