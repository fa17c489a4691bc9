package session

// FeedbackKind identifies a stimulus.
type FeedbackKind int

const (
	Welcome FeedbackKind = iota
	Message
	Fixation
	Mask
	SampleOutcome
	FinalFixation
	FinalOutcome
	BlockFeedback
	Goodbye
)

const (
	welcomeText       = "Welcome to the Sampling Paradigm task. Press any key to start."
	newTrialText      = "A new trial has started"
	prematureStopText = "Take at least one sample before your final choice."
	forcedStopText    = "You have reached the maximum number of samples."
	finalChoiceText   = "Please make your final choice."
	resetText         = "Too slow. The trial starts again."
	goodbyeText       = "This task is over. Press any key to quit."
)

// Feedback is one stimulus. Frames is how long it is meant to stay up.
type Feedback struct {
	Kind   FeedbackKind
	Trial  int
	Text   string
	Option int
	Value  float64
	Frames int

	onset func() error
}

// Present marks the stimulus as on screen. For a ScheduledDisplay this
// stamps the onset of the stimulus row, sends its trigger and writes it.
// It is a no-op for stimuli without a row and for stimuli already logged.
func (f Feedback) Present() error {
	if f.onset == nil {
		return nil
	}
	return f.onset()
}

type nopDisplay struct{}

func (nopDisplay) Show(Feedback) {}
