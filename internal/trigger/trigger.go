// Package trigger defines the TTL trigger codes sent to the EEG amplifier.
//
// The codes are a contract between the live session, the event log, and
// the EEG marker stream. They never change meaning across versions.
package trigger

import "sort"

// Trigger is a single TTL byte. The zero value means no trigger fired.
type Trigger byte

// Trigger codes.
const (
	None Trigger = 0

	// Crop points for the EEG recording.
	BeginExperiment Trigger = 1
	EndExperiment   Trigger = 2

	NewTrial    Trigger = 3
	SampleOnset Trigger = 4 // fixation stim of a new sample

	// Choice inquiry while sampling.
	LeftChoice  Trigger = 5
	RightChoice Trigger = 6
	FinalChoice Trigger = 7 // participant asked to stop sampling

	MaskOutcome Trigger = 8
	ShowOutcome Trigger = 9

	NewFinalChoice   Trigger = 10
	FinalChoiceOnset Trigger = 11

	// Choice inquiry during the final choice.
	LeftFinalChoice  Trigger = 12
	RightFinalChoice Trigger = 13

	MaskFinalOutcome Trigger = 14
	ShowFinalOutcome Trigger = 15

	// Trial reset: ignore all markers of the trial before this one.
	Error Trigger = 16

	ForcedStop    Trigger = 17 // sampling past the per-trial maximum
	PrematureStop Trigger = 18 // stop before the first sample
	BlockFeedback Trigger = 19
)

var names = map[Trigger]string{
	BeginExperiment:  "trig_begin_experiment",
	EndExperiment:    "trig_end_experiment",
	NewTrial:         "trig_new_trl",
	SampleOnset:      "trig_sample_onset",
	LeftChoice:       "trig_left_choice",
	RightChoice:      "trig_right_choice",
	FinalChoice:      "trig_final_choice",
	MaskOutcome:      "trig_mask_outcome",
	ShowOutcome:      "trig_show_outcome",
	NewFinalChoice:   "trig_new_final_choice",
	FinalChoiceOnset: "trig_final_choice_onset",
	LeftFinalChoice:  "trig_left_final_choice",
	RightFinalChoice: "trig_right_final_choice",
	MaskFinalOutcome: "trig_mask_final_outcome",
	ShowFinalOutcome: "trig_show_final_outcome",
	Error:            "trig_error",
	ForcedStop:       "trig_forced_stop",
	PrematureStop:    "trig_premature_stop",
	BlockFeedback:    "trig_block_feedback",
}

var byName = func() map[string]Trigger {
	m := make(map[string]Trigger, len(names))
	for t, name := range names {
		m[name] = t
	}
	return m
}()

// String returns the semantic name, or "none" for the zero trigger.
func (t Trigger) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	if t == None {
		return "none"
	}
	return "unknown"
}

// Byte returns the value put on the wire.
func (t Trigger) Byte() byte {
	return byte(t)
}

// Valid reports whether t is one of the registered codes.
func (t Trigger) Valid() bool {
	_, ok := names[t]
	return ok
}

// Decode maps a received byte to its trigger.
func Decode(b byte) (Trigger, bool) {
	t := Trigger(b)
	if !t.Valid() {
		return None, false
	}
	return t, true
}

// Lookup finds a trigger by its semantic name.
func Lookup(name string) (Trigger, bool) {
	t, ok := byName[name]
	return t, ok
}

// All returns every registered trigger in code order.
func All() []Trigger {
	out := make([]Trigger, 0, len(names))
	for t := range names {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
