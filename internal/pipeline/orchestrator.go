// Package pipeline drives claims through their lifecycle, coordinating the
// claim store, the AI assessment engine, the ledger and the notification
// channel behind synchronous, predictable operations.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kylejryan/insurance-claims-pipeline/internal/assessment"
	"github.com/kylejryan/insurance-claims-pipeline/internal/ddb"
	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
	"github.com/kylejryan/insurance-claims-pipeline/internal/notify"
	"github.com/kylejryan/insurance-claims-pipeline/internal/statemachine"
)

// MaxApprovalFactor caps an approval at 1.5x the requested amount.
const MaxApprovalFactor = 1.5

// Store is the claim persistence boundary, implemented by ddb.Repo.
type Store interface {
	Get(ctx context.Context, userID, claimID string) (*models.Claim, error)
	Update(ctx context.Context, userID, claimID string, fields map[string]any) error
	AppendStep(ctx context.Context, userID, claimID string, step models.ProcessingStep) error
	AppendEvidence(ctx context.Context, userID, claimID, attr, url string) error
	ResetToDraft(ctx context.Context, userID, claimID string, step models.ProcessingStep) error
}

// Assessor is the AI assessment boundary, implemented by assessment.Client.
type Assessor interface {
	Assess(ctx context.Context, claim *models.Claim) assessment.Result
}

// Ledger is the on-chain boundary, implemented by ledger.Client.
type Ledger interface {
	SubmitAndRecord(ctx context.Context, claim *models.Claim, a models.AIAssessment) (string, error)
	Approve(ctx context.Context, claimID string, amount float64) (string, error)
	Reject(ctx context.Context, claimID, reason string) (string, error)
	Settle(ctx context.Context, claimID string, amount float64) (string, error)
}

// AdminNotifier fans submission notices out to back-office tooling.
type AdminNotifier interface {
	ClaimSubmitted(ctx context.Context, userID, claimID string, claimType string, amount float64)
}

type nopAdmin struct{}

func (nopAdmin) ClaimSubmitted(context.Context, string, string, string, float64) {}

// Orchestrator owns every claim state transition. It holds no claim state
// between operations: each one re-reads the store before mutating.
type Orchestrator struct {
	Store    Store
	Assessor Assessor
	Ledger   Ledger
	Notify   notify.Publisher
	Admin    AdminNotifier

	// AssessTimeout bounds the async pipeline's assessment call.
	AssessTimeout time.Duration

	locks keyedMutex

	mu     sync.Mutex
	active map[string]bool // claim ids with a pipeline run in flight
	wg     sync.WaitGroup
}

// New wires an Orchestrator with defaults for the optional collaborators.
func New(store Store, assessor Assessor, ledger Ledger, pub notify.Publisher) *Orchestrator {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &Orchestrator{
		Store:         store,
		Assessor:      assessor,
		Ledger:        ledger,
		Notify:        pub,
		Admin:         nopAdmin{},
		AssessTimeout: assessment.DefaultTimeout,
	}
}

// Wait blocks until every in-flight processing pipeline has finished. Lambda
// entrypoints call it before returning so detached work is not frozen.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// SubmitForProcessing moves a DRAFT claim to SUBMITTED and launches the
// assessment pipeline in the background. The caller gets the updated claim
// immediately and never waits on the engine.
func (o *Orchestrator) SubmitForProcessing(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	unlock := o.locks.lock(claimID)
	defer unlock()

	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, validationf("claim %s does not belong to caller", claimID)
	}
	guard := statemachine.Guard{
		DocumentCount: len(c.DocumentURLs),
		PhotoCount:    len(c.DamagePhotoURLs),
	}
	if !statemachine.CanTransition(c.Status, models.StatusSubmitted, guard) {
		if c.Status != models.StatusDraft {
			return nil, validationf("cannot submit claim in status %s", c.Status)
		}
		return nil, validationf("claim needs at least one document and one damage photo before submission")
	}

	if err := o.Store.Update(ctx, userID, claimID, map[string]any{
		"status": models.StatusSubmitted,
	}); err != nil {
		return nil, err
	}
	o.appendStep(ctx, userID, claimID, "submitted", "claim submitted for processing")

	o.Notify.PublishStatus(userID, claimID, models.StatusSubmitted, "")
	o.Admin.ClaimSubmitted(ctx, userID, claimID, string(c.Type), c.RequestedAmount)

	o.launchProcessing(userID, claimID)

	c.Status = models.StatusSubmitted
	return c, nil
}

// RecordEvidence persists one uploaded evidence object on its claim. Claims
// accept evidence only while editable (DRAFT or SUBMITTED); presigned URLs
// outlive the editable window, so an upload landing later is dropped here. A
// late damage photo on a SUBMITTED claim re-triggers the assessment pipeline.
func (o *Orchestrator) RecordEvidence(ctx context.Context, userID, claimID, attr, url string) error {
	unlock := o.locks.lock(claimID)
	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		unlock()
		return err
	}
	if c.Status != models.StatusDraft && c.Status != models.StatusSubmitted {
		unlock()
		log.Printf("pipeline: claim %s is %s, dropping late evidence %s", claimID, c.Status, url)
		return nil
	}
	if err := o.Store.AppendEvidence(ctx, userID, claimID, attr, url); err != nil {
		unlock()
		return err
	}
	relaunch := c.Status == models.StatusSubmitted && attr == "damage_photo_urls"
	unlock()

	if relaunch {
		o.launchProcessing(userID, claimID)
	}
	return nil
}

// launchProcessing spawns the async pipeline for a claim unless one is
// already in flight. The goroutine carries its own error boundary: whatever
// happens, the claim cannot stay stuck in PROCESSING.
func (o *Orchestrator) launchProcessing(userID, claimID string) {
	o.mu.Lock()
	if o.active == nil {
		o.active = make(map[string]bool)
	}
	if o.active[claimID] {
		o.mu.Unlock()
		log.Printf("pipeline: run already in flight for %s, skipping", claimID)
		return
	}
	o.active[claimID] = true
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.active, claimID)
			o.mu.Unlock()
		}()

		// Detached from the triggering request on purpose.
		ctx, cancel := context.WithTimeout(context.Background(), o.AssessTimeout+time.Minute)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("pipeline: panic processing %s: %v", claimID, r)
				o.fallbackToHumanReview(ctx, userID, claimID, fmt.Sprintf("panic: %v", r))
			}
		}()

		if err := o.runProcessing(ctx, userID, claimID); err != nil {
			log.Printf("pipeline: processing %s failed: %v", claimID, err)
			o.fallbackToHumanReview(ctx, userID, claimID, err.Error())
		}
	}()
}

// runProcessing is the AI pipeline: PROCESSING, assess, persist the result,
// route to AI_REVIEW or HUMAN_REVIEW, record an engine-side ledger anchor if
// one came back.
func (o *Orchestrator) runProcessing(ctx context.Context, userID, claimID string) error {
	unlock := o.locks.lock(claimID)
	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		unlock()
		return err
	}
	if c.Status != models.StatusSubmitted {
		unlock()
		log.Printf("pipeline: claim %s is %s, not SUBMITTED; skipping run", claimID, c.Status)
		return nil
	}
	if err := o.Store.Update(ctx, userID, claimID, map[string]any{
		"status": models.StatusProcessing,
	}); err != nil {
		unlock()
		return err
	}
	unlock()

	o.Notify.PublishStatus(userID, claimID, models.StatusProcessing, "")
	o.Notify.PublishProgress(userID, claimID, 25, "AI assessment started")

	assessCtx, cancel := context.WithTimeout(ctx, o.AssessTimeout)
	res := o.Assessor.Assess(assessCtx, c)
	cancel()

	o.Notify.PublishProgress(userID, claimID, 90, "AI assessment finished")

	next := statemachine.NextAfterAssessment(res.Assessment.FraudDetected, res.Assessment.RequiresHumanReview)
	details := fmt.Sprintf("confidence %.0f%%, risk %.0f", res.Assessment.ConfidenceScore, res.Assessment.RiskScore)
	note := ""
	if res.Failed {
		next = models.StatusHumanReview
		details = "assessment engine unavailable, routed to manual review"
		note = "processing failed, needs manual review"
	}

	unlock = o.locks.lock(claimID)
	defer unlock()
	cur, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		return err
	}
	// An administrative reset can land while the engine is working. The
	// re-read claim owns the truth: persist only onto PROCESSING.
	if cur.Status != models.StatusProcessing {
		log.Printf("pipeline: claim %s is %s, discarding assessment result", claimID, cur.Status)
		return nil
	}
	fields := map[string]any{
		"status":        next,
		"ai_assessment": res.Assessment,
	}
	txHash := res.Assessment.TxHash()
	if txHash != "" {
		fields["blockchain_tx_hash"] = txHash
	}
	if err := o.Store.Update(ctx, userID, claimID, fields); err != nil {
		return err
	}
	o.appendStep(ctx, userID, claimID, "ai_assessment", details)

	o.Notify.PublishStatus(userID, claimID, next, note)
	if txHash != "" {
		o.Notify.PublishLedgerTx(userID, claimID, txHash, "submit")
	}
	if res.Assessment.FraudDetected {
		o.Notify.PublishFraudAlert(userID, claimID, res.Assessment.FraudReason)
	}
	return nil
}

// fallbackToHumanReview is the pipeline's failure path: a claim still in
// PROCESSING lands in HUMAN_REVIEW with a well-formed degraded assessment
// rather than staying stuck. Claims moved elsewhere in the meantime (reset,
// administrative reject) are left alone.
func (o *Orchestrator) fallbackToHumanReview(ctx context.Context, userID, claimID, reason string) {
	unlock := o.locks.lock(claimID)
	defer unlock()

	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		log.Printf("pipeline: fallback read for %s: %v", claimID, err)
		return
	}
	if c.Status != models.StatusProcessing {
		log.Printf("pipeline: claim %s is %s, skipping human-review fallback", claimID, c.Status)
		return
	}
	fields := map[string]any{"status": models.StatusHumanReview}
	if c.AIAssessment == nil {
		fields["ai_assessment"] = models.AIAssessment{
			RiskScore:           100,
			RequiresHumanReview: true,
		}
	}
	if err := o.Store.Update(ctx, userID, claimID, fields); err != nil {
		log.Printf("pipeline: fallback persist for %s: %v", claimID, err)
		return
	}
	o.appendStep(ctx, userID, claimID, "processing_failed", reason)
	o.Notify.PublishStatus(userID, claimID, models.StatusHumanReview, "processing failed, needs manual review")
}

// AnchorClaim idempotently records a claim and its assessment on the ledger.
// Used by reviewers to backfill an anchor when the assessment engine did not
// provide one. Ledger failures here are logged, never fatal to the claim.
func (o *Orchestrator) AnchorClaim(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	unlock := o.locks.lock(claimID)
	defer unlock()

	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if c.AIAssessment == nil {
		return nil, validationf("claim %s has no assessment to anchor", claimID)
	}
	txHash, err := o.Ledger.SubmitAndRecord(ctx, c, *c.AIAssessment)
	if err != nil {
		log.Printf("pipeline: anchor %s: %v", claimID, err)
		return c, nil
	}
	if err := o.Store.Update(ctx, userID, claimID, map[string]any{
		"blockchain_tx_hash": txHash,
	}); err != nil {
		return nil, err
	}
	o.appendStep(ctx, userID, claimID, "ledger_anchor", "claim anchored on ledger")
	o.Notify.PublishLedgerTx(userID, claimID, txHash, "submit")
	c.BlockchainTxHash = txHash
	return c, nil
}

// ApproveClaim approves a reviewed claim for the given amount. The amount is
// bounded to 1.5x the requested amount. A ledger approval is attempted only
// when the claim was anchored; its failure does not roll the approval back.
func (o *Orchestrator) ApproveClaim(ctx context.Context, userID, claimID string, amount float64) (*models.Claim, error) {
	unlock := o.locks.lock(claimID)
	defer unlock()

	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if !statemachine.CanTransition(c.Status, models.StatusApproved, statemachine.Guard{}) {
		return nil, validationf("cannot approve claim in status %s", c.Status)
	}
	if amount <= 0 || amount > c.RequestedAmount*MaxApprovalFactor {
		return nil, validationf("approved amount %.2f out of bounds (0, %.2f]", amount, c.RequestedAmount*MaxApprovalFactor)
	}

	now := ddb.NowISO()
	if err := o.Store.Update(ctx, userID, claimID, map[string]any{
		"status":          models.StatusApproved,
		"approved_amount": amount,
		"approved_at":     now,
	}); err != nil {
		return nil, err
	}
	o.appendStep(ctx, userID, claimID, "approved", fmt.Sprintf("approved for %.2f", amount))
	o.Notify.PublishStatus(userID, claimID, models.StatusApproved, "")

	if c.BlockchainTxHash != "" {
		txHash, lerr := o.Ledger.Approve(ctx, claimID, amount)
		if lerr != nil {
			// The store remains the system of record; the claim stays approved.
			log.Printf("pipeline: ledger approve for %s: %v", claimID, lerr)
		} else if uerr := o.Store.Update(ctx, userID, claimID, map[string]any{
			"approval_tx_hash": txHash,
		}); uerr != nil {
			log.Printf("pipeline: persist approval tx for %s: %v", claimID, uerr)
		} else {
			o.Notify.PublishLedgerTx(userID, claimID, txHash, "approve")
			c.ApprovalTxHash = txHash
		}
	}

	c.Status = models.StatusApproved
	c.ApprovedAmount = &amount
	c.ApprovedAt = now
	return c, nil
}

// RejectClaim rejects a claim with a reason. Deliberately permissive on
// status so administrators can override any non-settled claim.
func (o *Orchestrator) RejectClaim(ctx context.Context, userID, claimID, reason string) (*models.Claim, error) {
	unlock := o.locks.lock(claimID)
	defer unlock()

	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}

	now := ddb.NowISO()
	if err := o.Store.Update(ctx, userID, claimID, map[string]any{
		"status":           models.StatusRejected,
		"rejection_reason": reason,
		"rejected_at":      now,
	}); err != nil {
		return nil, err
	}
	o.appendStep(ctx, userID, claimID, "rejected", reason)
	o.Notify.PublishStatus(userID, claimID, models.StatusRejected, reason)

	if c.BlockchainTxHash != "" {
		if txHash, lerr := o.Ledger.Reject(ctx, claimID, reason); lerr != nil {
			log.Printf("pipeline: ledger reject for %s: %v", claimID, lerr)
		} else {
			o.Notify.PublishLedgerTx(userID, claimID, txHash, "reject")
		}
	}

	c.Status = models.StatusRejected
	c.RejectionReason = reason
	c.RejectedAt = now
	return c, nil
}

// SettleClaim pays out an approved claim. Settlement moves money, so the
// ledger write must confirm before the transition is recorded: a ledger
// failure aborts and the claim stays APPROVED.
func (o *Orchestrator) SettleClaim(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	unlock := o.locks.lock(claimID)
	defer unlock()

	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if !statemachine.CanTransition(c.Status, models.StatusSettled, statemachine.Guard{}) {
		return nil, validationf("cannot settle claim in status %s", c.Status)
	}
	amount := c.RequestedAmount
	if c.ApprovedAmount != nil {
		amount = *c.ApprovedAmount
	}

	txHash, err := o.Ledger.Settle(ctx, claimID, amount)
	if err != nil {
		return nil, fmt.Errorf("settlement not confirmed by ledger: %w", err)
	}

	now := ddb.NowISO()
	if err := o.Store.Update(ctx, userID, claimID, map[string]any{
		"status":             models.StatusSettled,
		"settlement_tx_hash": txHash,
		"settled_at":         now,
	}); err != nil {
		return nil, err
	}
	o.appendStep(ctx, userID, claimID, "settled", fmt.Sprintf("settled for %.2f", amount))
	o.Notify.PublishStatus(userID, claimID, models.StatusSettled, "")
	o.Notify.PublishLedgerTx(userID, claimID, txHash, "settle")

	c.Status = models.StatusSettled
	c.SettlementTxHash = txHash
	c.SettledAt = now
	return c, nil
}

// ResetToDraft administratively reopens a claim for editing, clearing every
// outcome and ledger field so a re-submission runs an independent lifecycle.
func (o *Orchestrator) ResetToDraft(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	unlock := o.locks.lock(claimID)
	defer unlock()

	c, err := o.Store.Get(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if !statemachine.CanTransition(c.Status, models.StatusDraft, statemachine.Guard{}) {
		return nil, validationf("cannot reset claim in status %s", c.Status)
	}
	step := models.ProcessingStep{
		Step:        "reset",
		CompletedAt: ddb.NowISO(),
		Details:     fmt.Sprintf("reset to draft from %s", c.Status),
	}
	if err := o.Store.ResetToDraft(ctx, userID, claimID, step); err != nil {
		return nil, err
	}
	o.Notify.PublishStatus(userID, claimID, models.StatusDraft, "claim reopened for editing")
	return o.Store.Get(ctx, userID, claimID)
}

// appendStep records an audit entry; audit failures are logged, never fatal.
func (o *Orchestrator) appendStep(ctx context.Context, userID, claimID, step, details string) {
	err := o.Store.AppendStep(ctx, userID, claimID, models.ProcessingStep{
		Step:        step,
		CompletedAt: ddb.NowISO(),
		Details:     details,
	})
	if err != nil {
		log.Printf("pipeline: append audit step %q for %s: %v", step, claimID, err)
	}
}
