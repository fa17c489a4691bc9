// Package model defines shared data structures.
package model

import "time"

// Version is stamped on every log row.
const Version = "0.2.0"

// ExperimentConfig defines the resolved settings of a session.
type ExperimentConfig struct {
	Subject            string
	DataDir            string
	FPS                int
	MaxSamplesOverall  int
	MaxSamplesPerTrial int
	TriggerPort        string
	TriggerBaud        int
	Seed               int64
	ResponseTimeout    time.Duration
	MessageFrames      int
	MaskMinMs          int
	MaskMaxMs          int
	OutcomeFrames      int
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Subject     string
	Since       *time.Time
	Last        int
	CurveWindow int
}

// SessionSummary describes one imported log.
type SessionSummary struct {
	ID             string
	Subject        string
	Path           string
	ImportedAt     time.Time
	Version        string
	Trials         int
	Samples        int
	Resets         int
	PrematureStops int
	ForcedStops    int
	TotalReward    float64
	MeanRT         float64 // seconds, over all responses
	Duration       float64 // seconds from first to last onset
}

// TrialSummary describes the completed attempt of one trial.
type TrialSummary struct {
	SessionID     string
	Trial         int
	Samples       int
	Resets        int
	FinalOption   int
	FinalOutcome  float64
	ExpectedValue [2]float64
	ChoseBetter   bool // final option has the higher expected value
}
