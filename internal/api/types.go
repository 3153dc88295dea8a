// Package api contains types for the API requests and responses.
package api

import (
	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
	"github.com/kylejryan/insurance-claims-pipeline/internal/stats"
)

// CreateClaimRequest is the payload for opening a new DRAFT claim.
type CreateClaimRequest struct {
	Type            string  `json:"type"`
	RequestedAmount float64 `json:"requested_amount"`
	Description     string  `json:"description"`
	IncidentDate    string  `json:"incident_date,omitempty"`
	Location        string  `json:"location,omitempty"`
}

// PresignRequest is the payload for generating a presigned evidence upload URL.
type PresignRequest struct {
	ClaimID     string `json:"claim_id"`
	Kind        string `json:"kind"` // documents | photos
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// PresignResponse carries the presigned S3 upload URL and related info.
type PresignResponse struct {
	ClaimID       string            `json:"claim_id"`
	S3Key         string            `json:"s3_key"`
	PresignedURL  string            `json:"presigned_url"`
	ExpiresIn     int               `json:"expires_in"`
	ContentType   string            `json:"content_type"`
	UploadHeaders map[string]string `json:"upload_headers"`
}

// ApproveRequest is the payload for approving a reviewed claim.
type ApproveRequest struct {
	ClaimID        string  `json:"claim_id"`
	UserID         string  `json:"user_id"`
	ApprovedAmount float64 `json:"approved_amount"`
}

// RejectRequest is the payload for rejecting a claim.
type RejectRequest struct {
	ClaimID string `json:"claim_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
}

// SettleRequest is the payload for settling an approved claim.
type SettleRequest struct {
	ClaimID string `json:"claim_id"`
	UserID  string `json:"user_id"`
}

// ClaimListResponse is the dashboard payload: claims plus derived aggregates.
type ClaimListResponse struct {
	Claims []models.Claim `json:"claims"`
	Stats  stats.Stats    `json:"stats"`
}
