// Package assessment wraps the external AI assessment engine.
//
// The engine runs a multi-agent pipeline (document, damage, fraud and
// settlement agents) and can take minutes to answer, so the call carries a
// long timeout. The client never surfaces an engine error to its caller: any
// transport or remote failure is translated into a conservative-default
// Result that routes the claim to human review.
package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

// DefaultTimeout bounds one assessment call end to end.
const DefaultTimeout = 3 * time.Minute

// Result is the tagged outcome of an assessment call. Failed marks the
// conservative-default variant produced when the engine could not be reached
// or answered with an error; the embedded assessment is still well formed.
type Result struct {
	Assessment models.AIAssessment
	Failed     bool
	FailureErr error // underlying cause when Failed, for logging only
}

// Client calls the assessment engine over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client with the default timeout applied.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
	}
}

// Assess submits a claim snapshot to the engine and returns its structured
// result. It never returns an error: failures come back as a failed Result
// with zero confidence, maximum risk and the human-review flag set.
func (c *Client) Assess(ctx context.Context, claim *models.Claim) Result {
	start := time.Now()
	payload, err := json.Marshal(snapshotFromClaim(claim))
	if err != nil {
		return failedResult(start, fmt.Errorf("encode snapshot: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/assess", bytes.NewReader(payload))
	if err != nil {
		return failedResult(start, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return failedResult(start, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return failedResult(start, fmt.Errorf("engine returned %d", resp.StatusCode))
	}

	var wire wireAssessment
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return failedResult(start, fmt.Errorf("decode response: %w", err))
	}

	a := assessmentFromWire(wire)
	a.ProcessingTimeMS = time.Since(start).Milliseconds()
	return Result{Assessment: a}
}

// failedResult builds the safe-default assessment: the orchestrator always
// has something well formed to persist, and the claim lands in human review.
func failedResult(start time.Time, cause error) Result {
	log.Printf("assessment: engine call failed: %v", cause)
	marker, _ := json.Marshal(map[string]string{"error": cause.Error()})
	return Result{
		Failed:     true,
		FailureErr: cause,
		Assessment: models.AIAssessment{
			ConfidenceScore:     0,
			RiskScore:           100,
			RecommendedAmount:   0,
			RequiresHumanReview: true,
			DocumentReport:      marker,
			DamageReport:        marker,
			FraudReport:         marker,
			SettlementReport:    marker,
			ProcessingTimeMS:    time.Since(start).Milliseconds(),
		},
	}
}
