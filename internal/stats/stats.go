// Package stats derives per-user claim aggregates.
package stats

import (
	"context"

	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

// Lister is the slice of the claim store the aggregator needs.
type Lister interface {
	ListByUser(ctx context.Context, userID string, limit int32) ([]models.Claim, error)
}

// Stats is the aggregate view of one user's claims.
type Stats struct {
	Total          int                        `json:"total"`
	ByStatus       map[models.ClaimStatus]int `json:"by_status"`
	ByType         map[models.ClaimType]int   `json:"by_type"`
	TotalRequested float64                    `json:"total_requested"`
	TotalApproved  float64                    `json:"total_approved"`
	TotalSettled   float64                    `json:"total_settled"`
}

// Aggregator recomputes Stats from the store on every call. There is no
// cached aggregate to drift out of sync.
type Aggregator struct {
	Claims Lister
}

const scanLimit = 1000

// Compute scans the user's claims once and derives all aggregates.
func (a *Aggregator) Compute(ctx context.Context, userID string) (Stats, error) {
	claims, err := a.Claims.ListByUser(ctx, userID, scanLimit)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		ByStatus: make(map[models.ClaimStatus]int, len(models.AllStatuses)),
		ByType:   make(map[models.ClaimType]int, len(models.AllClaimTypes)),
	}
	for _, st := range models.AllStatuses {
		s.ByStatus[st] = 0
	}
	for _, t := range models.AllClaimTypes {
		s.ByType[t] = 0
	}

	for i := range claims {
		c := &claims[i]
		s.Total++
		s.ByStatus[c.Status]++
		s.ByType[c.Type]++
		s.TotalRequested += c.RequestedAmount
		if c.ApprovedAmount != nil {
			s.TotalApproved += *c.ApprovedAmount
			if c.Status == models.StatusSettled {
				s.TotalSettled += *c.ApprovedAmount
			}
		}
	}
	return s, nil
}
