package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/kylejryan/insurance-claims-pipeline/internal/assessment"
	"github.com/kylejryan/insurance-claims-pipeline/internal/ddb"
	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

// memStore is an in-memory Store with the same partial-update semantics as
// the DynamoDB repo.
type memStore struct {
	mu     sync.Mutex
	claims map[string]*models.Claim
}

func newMemStore(claims ...*models.Claim) *memStore {
	s := &memStore{claims: make(map[string]*models.Claim)}
	for _, c := range claims {
		cp := *c
		s.claims[c.ClaimID] = &cp
	}
	return s
}

func (s *memStore) Get(_ context.Context, userID, claimID string) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.UserID != userID {
		return nil, ddb.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) Update(_ context.Context, userID, claimID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.UserID != userID {
		return ddb.ErrNotFound
	}
	for name, v := range fields {
		switch name {
		case "status":
			c.Status = v.(models.ClaimStatus)
		case "ai_assessment":
			a := v.(models.AIAssessment)
			c.AIAssessment = &a
		case "approved_amount":
			amt := v.(float64)
			c.ApprovedAmount = &amt
		case "rejection_reason":
			c.RejectionReason = v.(string)
		case "approved_at":
			c.ApprovedAt = v.(string)
		case "rejected_at":
			c.RejectedAt = v.(string)
		case "settled_at":
			c.SettledAt = v.(string)
		case "blockchain_tx_hash":
			c.BlockchainTxHash = v.(string)
		case "approval_tx_hash":
			c.ApprovalTxHash = v.(string)
		case "settlement_tx_hash":
			c.SettlementTxHash = v.(string)
		default:
			return fmt.Errorf("memStore: unknown field %q", name)
		}
	}
	return nil
}

func (s *memStore) AppendEvidence(_ context.Context, userID, claimID, attr, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.UserID != userID {
		return ddb.ErrNotFound
	}
	switch attr {
	case "document_urls":
		c.DocumentURLs = append(c.DocumentURLs, url)
	case "damage_photo_urls":
		c.DamagePhotoURLs = append(c.DamagePhotoURLs, url)
	default:
		return fmt.Errorf("memStore: unknown evidence attribute %q", attr)
	}
	return nil
}

func (s *memStore) AppendStep(_ context.Context, userID, claimID string, step models.ProcessingStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.UserID != userID {
		return ddb.ErrNotFound
	}
	c.ProcessingSteps = append(c.ProcessingSteps, step)
	return nil
}

func (s *memStore) ResetToDraft(_ context.Context, userID, claimID string, step models.ProcessingStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.UserID != userID {
		return ddb.ErrNotFound
	}
	c.Status = models.StatusDraft
	c.AIAssessment = nil
	c.ApprovedAmount = nil
	c.RejectionReason = ""
	c.ApprovedAt, c.RejectedAt, c.SettledAt = "", "", ""
	c.BlockchainTxHash, c.ApprovalTxHash, c.SettlementTxHash = "", "", ""
	c.ProcessingSteps = append(c.ProcessingSteps, step)
	return nil
}

// fakeAssessor returns a canned result and counts calls.
type fakeAssessor struct {
	mu     sync.Mutex
	result assessment.Result
	calls  int
}

func (f *fakeAssessor) Assess(context.Context, *models.Claim) assessment.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

func (f *fakeAssessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// gatedAssessor blocks inside Assess until released, so tests can interleave
// other operations with an in-flight pipeline run.
type gatedAssessor struct {
	started chan struct{}
	release chan struct{}
	result  assessment.Result
}

func newGatedAssessor(result assessment.Result) *gatedAssessor {
	return &gatedAssessor{
		started: make(chan struct{}),
		release: make(chan struct{}),
		result:  result,
	}
}

func (g *gatedAssessor) Assess(context.Context, *models.Claim) assessment.Result {
	close(g.started)
	<-g.release
	return g.result
}

// fakeLedger counts calls and fails on demand.
type fakeLedger struct {
	mu sync.Mutex

	submitCalls, approveCalls, rejectCalls, settleCalls int

	approveErr error
	settleErr  error
}

func (f *fakeLedger) SubmitAndRecord(context.Context, *models.Claim, models.AIAssessment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	return fmt.Sprintf("0xanchor%d", f.submitCalls), nil
}

func (f *fakeLedger) Approve(context.Context, string, float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveCalls++
	if f.approveErr != nil {
		return "", f.approveErr
	}
	return "0xapprove", nil
}

func (f *fakeLedger) Reject(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectCalls++
	return "0xreject", nil
}

func (f *fakeLedger) Settle(context.Context, string, float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls++
	if f.settleErr != nil {
		return "", f.settleErr
	}
	return "0xsettle", nil
}

// recordedEvent is one captured notification.
type recordedEvent struct {
	kind    string
	claimID string
	status  models.ClaimStatus
	note    string
	percent int
	txHash  string
	reason  string
}

// fakeNotifier captures every published event.
type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeNotifier) PublishStatus(_, claimID string, status models.ClaimStatus, note string) {
	f.record(recordedEvent{kind: "status", claimID: claimID, status: status, note: note})
}

func (f *fakeNotifier) PublishProgress(_, claimID string, percent int, _ string) {
	f.record(recordedEvent{kind: "progress", claimID: claimID, percent: percent})
}

func (f *fakeNotifier) PublishLedgerTx(_, claimID, txHash, _ string) {
	f.record(recordedEvent{kind: "ledger_tx", claimID: claimID, txHash: txHash})
}

func (f *fakeNotifier) PublishFraudAlert(_, claimID, reason string) {
	f.record(recordedEvent{kind: "fraud_alert", claimID: claimID, reason: reason})
}

func (f *fakeNotifier) record(ev recordedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeNotifier) byKind(kind string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, ev := range f.events {
		if ev.kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
