package stats

import (
	"context"

	"github.com/octomike/sp-experiment/internal/model"
)

// Source lists catalogued sessions and their trials.
type Source interface {
	ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionSummary, error)
	TrialSummaries(ctx context.Context, sessionIDs []string) ([]model.TrialSummary, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Sessions []model.SessionSummary
	Trials   []model.TrialSummary
}

// BuildReport loads the filtered sessions and their trials.
func BuildReport(ctx context.Context, st Source, cfg model.StatsConfig) (Report, error) {
	sessions, err := st.ListSessions(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	trials, err := st.TrialSummaries(ctx, sessionIDs(sessions))
	if err != nil {
		return Report{}, err
	}
	return Report{Sessions: sessions, Trials: trials}, nil
}

// TrialsOf returns the trials belonging to one session.
func (r Report) TrialsOf(sessionID string) []model.TrialSummary {
	var out []model.TrialSummary
	for _, t := range r.Trials {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out
}

func sessionIDs(sessions []model.SessionSummary) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}
