package lifecycle

import "milestone-escrow-backend/internal/models"

// transitions is the milestone state machine. Paid is terminal; Archived is
// soft-terminal and reversible via ArchivedFrom.
var transitions = map[string][]string{
	models.StatusOpen:             {models.StatusAwaitingReview, models.StatusArchived},
	models.StatusAwaitingReview:   {models.StatusChangesRequested, models.StatusCompleted, models.StatusArchived},
	models.StatusChangesRequested: {models.StatusAwaitingReview, models.StatusArchived},
	models.StatusCompleted:        {models.StatusPaid, models.StatusArchived},
	models.StatusPaid:             {},
	models.StatusArchived:         {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
