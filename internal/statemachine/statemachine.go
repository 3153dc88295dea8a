// Package statemachine defines the legal claim lifecycle transitions.
package statemachine

import (
	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

// Guard carries the claim facts a transition may depend on.
type Guard struct {
	DocumentCount int
	PhotoCount    int

	// Assessment outcome, consulted on the PROCESSING fan-out.
	AssessmentDone      bool
	FraudDetected       bool
	RequiresHumanReview bool
}

// forward is the set of normal lifecycle edges. Reset-to-DRAFT is handled
// separately because it is an administrative edge, not part of the forward flow.
var forward = map[models.ClaimStatus][]models.ClaimStatus{
	models.StatusDraft:       {models.StatusSubmitted},
	models.StatusSubmitted:   {models.StatusProcessing},
	models.StatusProcessing:  {models.StatusAIReview, models.StatusHumanReview},
	models.StatusAIReview:    {models.StatusApproved, models.StatusRejected},
	models.StatusHumanReview: {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:    {models.StatusSettled},
}

// CanTransition reports whether moving a claim from one status to another is
// legal under the given guard facts. It is pure; callers persist the result.
func CanTransition(from, to models.ClaimStatus, g Guard) bool {
	if to == models.StatusDraft {
		return canReset(from)
	}
	ok := false
	for _, next := range forward[from] {
		if next == to {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	switch {
	case from == models.StatusDraft && to == models.StatusSubmitted:
		return g.DocumentCount > 0 && g.PhotoCount > 0
	case from == models.StatusProcessing && to == models.StatusAIReview:
		return g.AssessmentDone && !g.FraudDetected && !g.RequiresHumanReview
	case from == models.StatusProcessing && to == models.StatusHumanReview:
		// Reached both when the assessment flags the claim and when the
		// assessment itself failed, so no guard beyond the edge.
		return true
	}
	return true
}

// canReset reports whether a claim may be administratively reset to DRAFT.
// Settled claims are immutable; everything else may be reopened for editing.
func canReset(from models.ClaimStatus) bool {
	return from != models.StatusSettled && from != models.StatusDraft
}

// IsTerminal reports whether a status ends the normal forward flow.
func IsTerminal(s models.ClaimStatus) bool {
	return s == models.StatusSettled || s == models.StatusRejected
}

// NextAfterAssessment returns the review status a claim moves to once its
// assessment has been persisted.
func NextAfterAssessment(fraudDetected, requiresHumanReview bool) models.ClaimStatus {
	if fraudDetected || requiresHumanReview {
		return models.StatusHumanReview
	}
	return models.StatusAIReview
}
