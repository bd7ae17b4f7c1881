package types

import (
	"errors"
	"testing"
)

func TestPackageStateTransition(t *testing.T) {
	tests := []struct {
		from PackageState
		to   PackageState
		ok   bool
	}{
		{StatePending, StateStaged, true},
		{StatePending, StateFailed, true},
		{StatePending, StateBuilding, false},
		{StateStaged, StateBuilding, true},
		{StateStaged, StateSucceeded, false},
		{StateBuilding, StateSucceeded, true},
		{StateBuilding, StateFailed, true},
		{StateSucceeded, StateFailed, false},
		{StateFailed, StateBuilding, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.to {
					t.Fatalf("state = %s, want %s", got, tt.to)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if got != tt.from {
				t.Fatalf("state changed to %s on rejected transition", got)
			}
		})
	}
}

func TestPackageStateIsTerminal(t *testing.T) {
	for _, s := range []PackageState{StateSucceeded, StateFailed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []PackageState{StatePending, StateStaged, StateBuilding} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
