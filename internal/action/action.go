// Package action maps raw participant action codes to the stored
// (action_type, action) pair and back.
package action

import (
	"fmt"

	sperrors "github.com/octomike/sp-experiment/internal/errors"
)

// Code is a raw action code as produced by the input collaborator.
type Code int

// Raw action codes.
const (
	SampleLeft      Code = 0
	SampleRight     Code = 1
	Stop            Code = 2
	FinalLeft       Code = 3
	FinalRight      Code = 4
	ForcedStopLeft  Code = 5
	ForcedStopRight Code = 6
	PrematureStop   Code = 7
)

// Type is the action_type column.
type Type string

// Action types.
const (
	TypeSample        Type = "sample"
	TypeStop          Type = "stop"
	TypeFinalChoice   Type = "final_choice"
	TypeForcedStop    Type = "forced_stop"
	TypePrematureStop Type = "premature_stop"
)

// Action is the stored form: the type plus an option-like index.
// Index alone is ambiguous; always carry both.
type Action struct {
	Type  Type
	Index int
}

// Encode normalizes a raw code.
func Encode(c Code) (Action, error) {
	switch c {
	case SampleLeft, SampleRight:
		return Action{Type: TypeSample, Index: int(c)}, nil
	case Stop:
		return Action{Type: TypeStop, Index: int(c)}, nil
	case FinalLeft, FinalRight:
		return Action{Type: TypeFinalChoice, Index: int(c - FinalLeft)}, nil
	case ForcedStopLeft, ForcedStopRight:
		return Action{Type: TypeForcedStop, Index: int(c - ForcedStopLeft)}, nil
	case PrematureStop:
		return Action{Type: TypePrematureStop, Index: 2}, nil
	}
	return Action{}, sperrors.Newf(sperrors.EEncoding, "unknown action code %d", c)
}

// Code recovers the raw code.
func (a Action) Code() (Code, error) {
	switch a.Type {
	case TypeSample:
		if a.Index == 0 || a.Index == 1 {
			return Code(a.Index), nil
		}
	case TypeStop:
		if a.Index == 2 {
			return Stop, nil
		}
	case TypeFinalChoice:
		if a.Index == 0 || a.Index == 1 {
			return FinalLeft + Code(a.Index), nil
		}
	case TypeForcedStop:
		if a.Index == 0 || a.Index == 1 {
			return ForcedStopLeft + Code(a.Index), nil
		}
	case TypePrematureStop:
		if a.Index == 2 {
			return PrematureStop, nil
		}
	}
	return 0, sperrors.Newf(sperrors.EEncoding, "invalid action %s/%d", a.Type, a.Index)
}

// Side returns the key label of the stored index.
func (a Action) Side() (Side, error) {
	return SideOf(a.Index)
}

func (a Action) String() string {
	return fmt.Sprintf("%s/%d", a.Type, a.Index)
}

// ParseType validates an action_type column value.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeSample, TypeStop, TypeFinalChoice, TypeForcedStop, TypePrematureStop:
		return t, nil
	}
	return "", sperrors.Newf(sperrors.EReplayData, "unknown action_type %q", s)
}

// Side is a response key.
type Side string

// Response keys.
const (
	Left  Side = "left"
	Right Side = "right"
	Down  Side = "down"
)

var sides = map[int]Side{0: Left, 1: Right, 2: Down}

// SideOf maps a stored index to its key.
func SideOf(index int) (Side, error) {
	s, ok := sides[index]
	if !ok {
		return "", sperrors.Newf(sperrors.EReplayData, "no key for action index %d", index)
	}
	return s, nil
}

// Option returns 0 for left and 1 for right.
func (s Side) Option() (int, bool) {
	switch s {
	case Left:
		return 0, true
	case Right:
		return 1, true
	}
	return 0, false
}
