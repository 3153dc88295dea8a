package assessment

import (
	"encoding/json"
	"time"

	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }

// snapshot is the flattened claim view the engine expects. Field names follow
// the engine's snake_case contract; the mapping lives here and nowhere else.
type snapshot struct {
	ClaimID         string   `json:"claim_id"`
	ClaimType       string   `json:"claim_type"`
	RequestedAmount float64  `json:"requested_amount"`
	Description     string   `json:"description"`
	DocumentURLs    []string `json:"document_urls"`
	DamagePhotoURLs []string `json:"damage_photo_urls"`
	IncidentDate    string   `json:"incident_date"`
	Location        string   `json:"location"`
}

// wireAssessment mirrors the engine's response shape.
type wireAssessment struct {
	ConfidenceScore     float64           `json:"confidence_score"`
	RiskScore           float64           `json:"risk_score"`
	RecommendedAmount   float64           `json:"recommended_amount"`
	FraudDetected       bool              `json:"fraud_detected"`
	FraudReason         string            `json:"fraud_reason"`
	RequiresHumanReview bool              `json:"requires_human_review"`
	DocumentReport      json.RawMessage   `json:"document_report"`
	DamageReport        json.RawMessage   `json:"damage_report"`
	FraudReport         json.RawMessage   `json:"fraud_report"`
	SettlementReport    json.RawMessage   `json:"settlement_report"`
	Metadata            map[string]string `json:"metadata"`
}

// snapshotFromClaim flattens a claim for the engine, defaulting incident date
// to "now" and location to "unknown" when the claim never recorded them.
func snapshotFromClaim(c *models.Claim) snapshot {
	s := snapshot{
		ClaimID:         c.ClaimID,
		ClaimType:       string(c.Type),
		RequestedAmount: c.RequestedAmount,
		Description:     c.Description,
		DocumentURLs:    c.DocumentURLs,
		DamagePhotoURLs: c.DamagePhotoURLs,
		IncidentDate:    c.IncidentDate,
		Location:        c.Location,
	}
	if s.IncidentDate == "" {
		s.IncidentDate = nowISO()
	}
	if s.Location == "" {
		s.Location = "unknown"
	}
	return s
}

func assessmentFromWire(w wireAssessment) models.AIAssessment {
	return models.AIAssessment{
		ConfidenceScore:     w.ConfidenceScore,
		RiskScore:           w.RiskScore,
		RecommendedAmount:   w.RecommendedAmount,
		FraudDetected:       w.FraudDetected,
		FraudReason:         w.FraudReason,
		RequiresHumanReview: w.RequiresHumanReview,
		DocumentReport:      w.DocumentReport,
		DamageReport:        w.DamageReport,
		FraudReport:         w.FraudReport,
		SettlementReport:    w.SettlementReport,
		Metadata:            w.Metadata,
	}
}
