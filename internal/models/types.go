// Package models defines the data models used in the application.
package models

import "encoding/json"

// ClaimStatus represents the lifecycle status of an insurance claim.
type ClaimStatus string

// Possible values for ClaimStatus
const (
	StatusDraft       ClaimStatus = "DRAFT"
	StatusSubmitted   ClaimStatus = "SUBMITTED"
	StatusProcessing  ClaimStatus = "PROCESSING"
	StatusAIReview    ClaimStatus = "AI_REVIEW"
	StatusHumanReview ClaimStatus = "HUMAN_REVIEW"
	StatusApproved    ClaimStatus = "APPROVED"
	StatusRejected    ClaimStatus = "REJECTED"
	StatusSettled     ClaimStatus = "SETTLED"
)

// AllStatuses lists every lifecycle status, in forward order.
var AllStatuses = []ClaimStatus{
	StatusDraft, StatusSubmitted, StatusProcessing, StatusAIReview,
	StatusHumanReview, StatusApproved, StatusRejected, StatusSettled,
}

// ClaimType represents the category of loss a claim covers.
type ClaimType string

// Possible values for ClaimType
const (
	TypeAuto   ClaimType = "auto"
	TypeHome   ClaimType = "home"
	TypeHealth ClaimType = "health"
)

// AllClaimTypes lists every supported claim type.
var AllClaimTypes = []ClaimType{TypeAuto, TypeHome, TypeHealth}

// ProcessingStep is one entry of the append-only audit trail on a claim.
type ProcessingStep struct {
	Step        string `dynamodbav:"step" json:"step"`
	CompletedAt string `dynamodbav:"completed_at" json:"completed_at"` // ISO8601
	Details     string `dynamodbav:"details,omitempty" json:"details,omitempty"`
}

// AIAssessment is the structured result of the external AI evaluation,
// embedded in its claim. Sub-agent reports are opaque to this service.
type AIAssessment struct {
	ConfidenceScore     float64 `dynamodbav:"confidence_score" json:"confidence_score"`
	RiskScore           float64 `dynamodbav:"risk_score" json:"risk_score"` // 0-100
	RecommendedAmount   float64 `dynamodbav:"recommended_amount" json:"recommended_amount"`
	FraudDetected       bool    `dynamodbav:"fraud_detected" json:"fraud_detected"`
	FraudReason         string  `dynamodbav:"fraud_reason,omitempty" json:"fraud_reason,omitempty"`
	RequiresHumanReview bool    `dynamodbav:"requires_human_review" json:"requires_human_review"`

	DocumentReport   json.RawMessage `dynamodbav:"document_report,omitempty" json:"document_report,omitempty"`
	DamageReport     json.RawMessage `dynamodbav:"damage_report,omitempty" json:"damage_report,omitempty"`
	FraudReport      json.RawMessage `dynamodbav:"fraud_report,omitempty" json:"fraud_report,omitempty"`
	SettlementReport json.RawMessage `dynamodbav:"settlement_report,omitempty" json:"settlement_report,omitempty"`

	ProcessingTimeMS int64             `dynamodbav:"processing_time_ms" json:"processing_time_ms"`
	Metadata         map[string]string `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
}

// TxHash returns the ledger transaction hash recorded by the assessment
// engine itself, if it anchored the record, or "" when it did not.
func (a *AIAssessment) TxHash() string {
	if a == nil {
		return ""
	}
	return a.Metadata["tx_hash"]
}

// Claim represents an insurance claim and its full processing history.
type Claim struct {
	// DynamoDB keys
	PK string `dynamodbav:"PK" json:"-"` // USER#<sub>
	SK string `dynamodbav:"SK" json:"-"` // CLAIM#<claimID> (ULID)

	ClaimID string    `dynamodbav:"claim_id" json:"claim_id"`
	UserID  string    `dynamodbav:"user_id" json:"user_id"`
	Type    ClaimType `dynamodbav:"type" json:"type"`

	RequestedAmount float64 `dynamodbav:"requested_amount" json:"requested_amount"`
	Description     string  `dynamodbav:"description" json:"description"`
	IncidentDate    string  `dynamodbav:"incident_date,omitempty" json:"incident_date,omitempty"` // ISO8601
	Location        string  `dynamodbav:"location,omitempty" json:"location,omitempty"`

	DocumentURLs    []string `dynamodbav:"document_urls,omitempty" json:"document_urls,omitempty"`
	DamagePhotoURLs []string `dynamodbav:"damage_photo_urls,omitempty" json:"damage_photo_urls,omitempty"`

	Status ClaimStatus `dynamodbav:"status" json:"status"`

	AIAssessment    *AIAssessment `dynamodbav:"ai_assessment,omitempty" json:"ai_assessment,omitempty"`
	ApprovedAmount  *float64      `dynamodbav:"approved_amount,omitempty" json:"approved_amount,omitempty"`
	RejectionReason string        `dynamodbav:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	ApprovedAt      string        `dynamodbav:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedAt      string        `dynamodbav:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	SettledAt       string        `dynamodbav:"settled_at,omitempty" json:"settled_at,omitempty"`

	BlockchainTxHash string `dynamodbav:"blockchain_tx_hash,omitempty" json:"blockchain_tx_hash,omitempty"`
	ApprovalTxHash   string `dynamodbav:"approval_tx_hash,omitempty" json:"approval_tx_hash,omitempty"`
	SettlementTxHash string `dynamodbav:"settlement_tx_hash,omitempty" json:"settlement_tx_hash,omitempty"`

	ProcessingSteps []ProcessingStep `dynamodbav:"processing_steps,omitempty" json:"processing_steps,omitempty"`

	CreatedAt string `dynamodbav:"created_at" json:"created_at"` // ISO8601
	UpdatedAt string `dynamodbav:"updated_at" json:"updated_at"` // ISO8601
}

// HasEvidence reports whether the claim carries at least one document and
// one damage photo, the minimum required before submission.
func (c *Claim) HasEvidence() bool {
	return len(c.DocumentURLs) > 0 && len(c.DamagePhotoURLs) > 0
}

// UserClaims represents the JWT claims extracted from the user's authentication token.
type UserClaims struct {
	Sub   string
	Email string
}
