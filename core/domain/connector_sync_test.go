package domain

import "testing"

// TestSyncStateTransitions checks the legality table for control inputs.
func TestSyncStateTransitions(t *testing.T) {
	tests := []struct {
		name      string
		state     SyncState
		canStart  bool
		canPause  bool
		canResume bool
	}{
		{name: "not started", state: SyncNotStarted, canStart: true},
		{name: "empty state behaves as not started", state: SyncState(""), canStart: true},
		{name: "running rejects start, allows pause", state: SyncRunning, canPause: true},
		{name: "paused rejects start, allows resume", state: SyncPaused, canResume: true},
		{name: "completed allows start", state: SyncCompleted, canStart: true},
		{name: "failed allows start", state: SyncFailed, canStart: true},
		{name: "stopped allows start", state: SyncStopped, canStart: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.CanStart(); got != tt.canStart {
				t.Errorf("CanStart() = %v, want %v", got, tt.canStart)
			}
			if got := tt.state.CanPause(); got != tt.canPause {
				t.Errorf("CanPause() = %v, want %v", got, tt.canPause)
			}
			if got := tt.state.CanResume(); got != tt.canResume {
				t.Errorf("CanResume() = %v, want %v", got, tt.canResume)
			}
		})
	}
}

func TestSyncStateIsValid(t *testing.T) {
	valid := []SyncState{SyncNotStarted, SyncRunning, SyncPaused, SyncCompleted, SyncFailed, SyncStopped}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("IsValid(%s) = false, want true", s)
		}
	}
	if SyncState("SLEEPING").IsValid() {
		t.Error("IsValid(SLEEPING) = true, want false")
	}
}

// TestPersonKey checks that fallback principal keys are stable across
// casing and whitespace variants of the same email.
func TestPersonKey(t *testing.T) {
	a := PersonKey("Ext@Partner.com")
	b := PersonKey("  ext@partner.com ")
	if a != b {
		t.Errorf("PersonKey not stable across casing: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("PersonKey length = %d, want 64 hex chars", len(a))
	}
	if PersonKey("other@partner.com") == a {
		t.Error("distinct emails produced the same person key")
	}
}
