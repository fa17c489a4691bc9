package action

import (
	"testing"

	sperrors "github.com/octomike/sp-experiment/internal/errors"
)

func TestEncodeDecodeAllCodes(t *testing.T) {
	tests := []struct {
		code Code
		want Action
	}{
		{SampleLeft, Action{TypeSample, 0}},
		{SampleRight, Action{TypeSample, 1}},
		{Stop, Action{TypeStop, 2}},
		{FinalLeft, Action{TypeFinalChoice, 0}},
		{FinalRight, Action{TypeFinalChoice, 1}},
		{ForcedStopLeft, Action{TypeForcedStop, 0}},
		{ForcedStopRight, Action{TypeForcedStop, 1}},
		{PrematureStop, Action{TypePrematureStop, 2}},
	}
	for _, tt := range tests {
		got, err := Encode(tt.code)
		if err != nil {
			t.Fatalf("Encode(%d) error: %v", tt.code, err)
		}
		if got != tt.want {
			t.Errorf("Encode(%d) = %v, want %v", tt.code, got, tt.want)
		}
		back, err := got.Code()
		if err != nil {
			t.Fatalf("Code() of %v error: %v", got, err)
		}
		if back != tt.code {
			t.Errorf("round trip of %d gave %d", tt.code, back)
		}
	}
}

func TestEncodeRejectsUnknown(t *testing.T) {
	for _, c := range []Code{-1, 8} {
		if _, err := Encode(c); !sperrors.Is(err, sperrors.EEncoding) {
			t.Fatalf("Encode(%d) expected E_ENCODING, got %v", c, err)
		}
	}
}

func TestCodeRejectsMismatchedIndex(t *testing.T) {
	for _, a := range []Action{{TypeStop, 0}, {TypeSample, 2}, {TypePrematureStop, 1}, {"bogus", 0}} {
		if _, err := a.Code(); err == nil {
			t.Fatalf("expected error for %v", a)
		}
	}
}

func TestSides(t *testing.T) {
	for index, want := range map[int]Side{0: Left, 1: Right, 2: Down} {
		got, err := SideOf(index)
		if err != nil || got != want {
			t.Fatalf("SideOf(%d) = %q, %v", index, got, err)
		}
	}
	if _, err := SideOf(3); err == nil {
		t.Fatalf("expected error for index 3")
	}
	if opt, ok := Right.Option(); !ok || opt != 1 {
		t.Fatalf("Right.Option() = %d, %v", opt, ok)
	}
	if _, ok := Down.Option(); ok {
		t.Fatalf("Down has no option")
	}
}

func TestParseType(t *testing.T) {
	if got, err := ParseType("forced_stop"); err != nil || got != TypeForcedStop {
		t.Fatalf("ParseType = %q, %v", got, err)
	}
	if _, err := ParseType("n/a"); !sperrors.Is(err, sperrors.EReplayData) {
		t.Fatalf("expected E_REPLAY_DATA, got %v", err)
	}
}
