// Package eventlog writes and reads the tab-separated experiment event log.
//
// The log is append-only: a header row followed by one row per event.
// Missing values are the literal token n/a.
package eventlog

import (
	"strconv"

	"github.com/octomike/sp-experiment/internal/action"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/trigger"
)

// NA is the missing-value token.
const NA = "n/a"

// Header lists the log columns in file order.
var Header = []string{
	"onset", "duration", "trial", "action_type", "action", "outcome", "response_time", "event_value",
	"mag0_1", "prob0_1", "mag0_2", "prob0_2", "mag1_1", "prob1_1", "mag1_2", "prob1_2",
	"version", "reset",
}

// Record is one persisted row.
type Record struct {
	Seq          int // 1-based row number, not a column
	Onset        *float64
	Duration     float64 // seconds
	Trial        *int
	Action       *action.Action
	Outcome      *float64
	ResponseTime *float64
	Trigger      trigger.Trigger
	Columns      *payoff.Columns
	Version      string
	Reset        bool
}

// InTrial reports whether r belongs to trial.
func (r Record) InTrial(trial int) bool {
	return r.Trial != nil && *r.Trial == trial
}

// Fields renders r in Header order.
func (r Record) Fields() []string {
	fields := make([]string, 0, len(Header))
	fields = append(fields,
		formatOptFloat(r.Onset),
		formatFloat(r.Duration),
		formatOptInt(r.Trial),
	)
	if r.Action != nil {
		fields = append(fields, string(r.Action.Type), strconv.Itoa(r.Action.Index))
	} else {
		fields = append(fields, NA, NA)
	}
	fields = append(fields, formatOptFloat(r.Outcome), formatOptFloat(r.ResponseTime))
	if r.Trigger == trigger.None {
		fields = append(fields, NA)
	} else {
		fields = append(fields, strconv.Itoa(int(r.Trigger)))
	}
	for i := 0; i < len(payoff.ColumnNames); i++ {
		if r.Columns == nil {
			fields = append(fields, NA)
			continue
		}
		fields = append(fields, payoff.Format(r.Columns[i]))
	}
	reset := "0"
	if r.Reset {
		reset = "1"
	}
	return append(fields, r.Version, reset)
}

// Ptr returns a pointer to v, for optional fields.
func Ptr[T any](v T) *T {
	return &v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return NA
	}
	return formatFloat(*v)
}

func formatOptInt(v *int) string {
	if v == nil {
		return NA
	}
	return strconv.Itoa(*v)
}
