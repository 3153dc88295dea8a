// Package notify pushes claim events to users in real time.
//
// Delivery is best effort and at-most-once: every publish path logs and
// swallows its own failures so a dropped notification can never affect claim
// state or an in-flight request.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

// EventKind discriminates the four push event types.
type EventKind string

// Possible values for EventKind
const (
	KindStatusUpdate   EventKind = "status_update"
	KindProgressUpdate EventKind = "progress_update"
	KindLedgerTx       EventKind = "ledger_tx"
	KindFraudAlert     EventKind = "fraud_alert"
)

// Event is one push message addressed to a single user.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	UserID    string         `json:"-"`
	ClaimID   string         `json:"claim_id"`
	Payload   map[string]any `json:"payload"`
	Timestamp string         `json:"timestamp"` // ISO8601
}

// Publisher is the orchestrator's outbound notification boundary. All
// methods are fire-and-forget; implementations must not block on delivery
// failures or report them to the caller.
type Publisher interface {
	PublishStatus(userID, claimID string, status models.ClaimStatus, note string)
	PublishProgress(userID, claimID string, percent int, message string)
	PublishLedgerTx(userID, claimID, txHash, operation string)
	PublishFraudAlert(userID, claimID, reason string)
}

func newEvent(kind EventKind, userID, claimID string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		ClaimID:   claimID,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Nop is a Publisher that drops every event. Useful in tests and for
// entrypoints that have no push channel configured.
type Nop struct{}

func (Nop) PublishStatus(string, string, models.ClaimStatus, string) {}
func (Nop) PublishProgress(string, string, int, string)              {}
func (Nop) PublishLedgerTx(string, string, string, string)           {}
func (Nop) PublishFraudAlert(string, string, string)                 {}
