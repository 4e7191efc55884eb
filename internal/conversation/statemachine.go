// Package conversation implements the Turn Processor and the Conversation
// State Machine: the single-writer loop that drives a conversation through
// one model turn, dispatches its tool calls, and advances its persisted
// status, plus the state-transition rules that loop and the HTTP layer
// both enforce.
package conversation

import "github.com/loomrun/loom/pkg/models"

// CanTransition reports whether moving a Conversation's status from from to
// to is an allowed transition. Terminal states are absorbing: no transition
// out of completed, failed, or cancelled is ever allowed.
func CanTransition(from, to models.ConversationStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == models.StatusCancelled {
		switch from {
		case models.StatusActive, models.StatusActiveProcessing, models.StatusPaused:
			return true
		default:
			return false
		}
	}
	if to == models.StatusFailed {
		return true
	}
	switch from {
	case models.StatusActive:
		return to == models.StatusActiveProcessing
	case models.StatusActiveProcessing:
		return to == models.StatusCompleted || to == models.StatusActiveProcessing || to == models.StatusPaused
	case models.StatusPaused:
		return to == models.StatusActiveProcessing
	default:
		return false
	}
}
