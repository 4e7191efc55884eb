package conversation

import (
	"testing"

	"github.com/loomrun/loom/pkg/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from models.ConversationStatus
		to   models.ConversationStatus
		want bool
	}{
		{models.StatusActive, models.StatusActiveProcessing, true},
		{models.StatusActive, models.StatusCancelled, true},
		{models.StatusActive, models.StatusPaused, false},
		{models.StatusActive, models.StatusCompleted, false},

		{models.StatusActiveProcessing, models.StatusCompleted, true},
		{models.StatusActiveProcessing, models.StatusActiveProcessing, true},
		{models.StatusActiveProcessing, models.StatusPaused, true},
		{models.StatusActiveProcessing, models.StatusCancelled, true},
		{models.StatusActiveProcessing, models.StatusFailed, true},
		{models.StatusActiveProcessing, models.StatusActive, false},

		{models.StatusPaused, models.StatusActiveProcessing, true},
		{models.StatusPaused, models.StatusCancelled, true},
		{models.StatusPaused, models.StatusFailed, true},
		{models.StatusPaused, models.StatusCompleted, false},

		{models.StatusCompleted, models.StatusActiveProcessing, false},
		{models.StatusCompleted, models.StatusFailed, false},
		{models.StatusFailed, models.StatusActive, false},
		{models.StatusCancelled, models.StatusActiveProcessing, false},
	}

	for _, tt := range tests {
		got := CanTransition(tt.from, tt.to)
		if got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransition_TerminalStatesAreAbsorbing(t *testing.T) {
	terminal := []models.ConversationStatus{models.StatusCompleted, models.StatusFailed, models.StatusCancelled}
	all := []models.ConversationStatus{
		models.StatusActive, models.StatusActiveProcessing, models.StatusPaused,
		models.StatusCompleted, models.StatusFailed, models.StatusCancelled,
	}
	for _, from := range terminal {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("CanTransition(%s, %s) = true, want false: terminal states must be absorbing", from, to)
			}
		}
	}
}
