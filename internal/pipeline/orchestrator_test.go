package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/insurance-claims-pipeline/internal/assessment"
	"github.com/kylejryan/insurance-claims-pipeline/internal/ddb"
	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

func draftClaim(withEvidence bool) *models.Claim {
	c := &models.Claim{
		ClaimID:         "01J5TESTCLAIM0000000000000",
		UserID:          "user-1",
		Type:            models.TypeAuto,
		RequestedAmount: 1000,
		Description:     "rear-ended at a stop light",
		Status:          models.StatusDraft,
	}
	if withEvidence {
		c.DocumentURLs = []string{"https://bucket/doc-1.pdf", "https://bucket/doc-2.pdf"}
		c.DamagePhotoURLs = []string{"https://bucket/photo-1.jpg"}
	}
	return c
}

func cleanResult() assessment.Result {
	return assessment.Result{Assessment: models.AIAssessment{
		ConfidenceScore:   92,
		RiskScore:         20,
		RecommendedAmount: 900,
	}}
}

func newOrchestrator(store Store, a Assessor, l Ledger, n *fakeNotifier) *Orchestrator {
	o := New(store, a, l, n)
	o.AssessTimeout = time.Second
	return o
}

func TestSubmitRequiresEvidence(t *testing.T) {
	for name, claim := range map[string]*models.Claim{
		"no documents": {ClaimID: "c1", UserID: "user-1", Status: models.StatusDraft,
			DamagePhotoURLs: []string{"p.jpg"}},
		"no photos": {ClaimID: "c1", UserID: "user-1", Status: models.StatusDraft,
			DocumentURLs: []string{"d.pdf"}},
	} {
		t.Run(name, func(t *testing.T) {
			store := newMemStore(claim)
			assessor := &fakeAssessor{result: cleanResult()}
			notifier := &fakeNotifier{}
			o := newOrchestrator(store, assessor, &fakeLedger{}, notifier)

			_, err := o.SubmitForProcessing(context.Background(), "user-1", "c1")
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			o.Wait()
			got, _ := store.Get(context.Background(), "user-1", "c1")
			assert.Equal(t, models.StatusDraft, got.Status)
			assert.Empty(t, notifier.events, "no notification on failed submit")
			assert.Zero(t, assessor.callCount(), "pipeline must not launch")
		})
	}
}

func TestSubmitRejectsWrongStatus(t *testing.T) {
	claim := draftClaim(true)
	claim.Status = models.StatusApproved
	store := newMemStore(claim)
	o := newOrchestrator(store, &fakeAssessor{result: cleanResult()}, &fakeLedger{}, &fakeNotifier{})

	_, err := o.SubmitForProcessing(context.Background(), "user-1", claim.ClaimID)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestSubmitRejectsForeignClaim(t *testing.T) {
	store := newMemStore(draftClaim(true))
	o := newOrchestrator(store, &fakeAssessor{result: cleanResult()}, &fakeLedger{}, &fakeNotifier{})

	_, err := o.SubmitForProcessing(context.Background(), "someone-else", draftClaim(true).ClaimID)
	require.ErrorIs(t, err, ddb.ErrNotFound)
}

func TestSubmitRunsPipelineToAIReview(t *testing.T) {
	claim := draftClaim(true)
	store := newMemStore(claim)
	notifier := &fakeNotifier{}
	o := newOrchestrator(store, &fakeAssessor{result: cleanResult()}, &fakeLedger{}, notifier)

	out, err := o.SubmitForProcessing(context.Background(), "user-1", claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, out.Status, "caller sees SUBMITTED immediately")

	o.Wait()

	got, err := store.Get(context.Background(), "user-1", claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAIReview, got.Status)
	require.NotNil(t, got.AIAssessment)
	assert.Equal(t, float64(20), got.AIAssessment.RiskScore)
	assert.Empty(t, got.BlockchainTxHash, "no anchor when the engine provided none")

	progress := notifier.byKind("progress")
	require.Len(t, progress, 2)
	assert.Less(t, progress[0].percent, progress[1].percent)

	var steps []string
	for _, s := range got.ProcessingSteps {
		steps = append(steps, s.Step)
	}
	assert.Contains(t, steps, "submitted")
	assert.Contains(t, steps, "ai_assessment")
}

func TestPipelinePersistsEngineAnchor(t *testing.T) {
	claim := draftClaim(true)
	store := newMemStore(claim)
	notifier := &fakeNotifier{}
	res := cleanResult()
	res.Assessment.Metadata = map[string]string{"tx_hash": "0xengine"}
	o := newOrchestrator(store, &fakeAssessor{result: res}, &fakeLedger{}, notifier)

	_, err := o.SubmitForProcessing(context.Background(), "user-1", claim.ClaimID)
	require.NoError(t, err)
	o.Wait()

	got, _ := store.Get(context.Background(), "user-1", claim.ClaimID)
	assert.Equal(t, "0xengine", got.BlockchainTxHash)
	require.Len(t, notifier.byKind("ledger_tx"), 1)
	assert.Equal(t, "0xengine", notifier.byKind("ledger_tx")[0].txHash)
}

func TestFraudRoutesToHumanReview(t *testing.T) {
	claim := draftClaim(true)
	store := newMemStore(claim)
	notifier := &fakeNotifier{}
	res := cleanResult()
	res.Assessment.FraudDetected = true
	res.Assessment.FraudReason = "duplicate photos across claims"
	o := newOrchestrator(store, &fakeAssessor{result: res}, &fakeLedger{}, notifier)

	_, err := o.SubmitForProcessing(context.Background(), "user-1", claim.ClaimID)
	require.NoError(t, err)
	o.Wait()

	got, _ := store.Get(context.Background(), "user-1", claim.ClaimID)
	assert.Equal(t, models.StatusHumanReview, got.Status)

	alerts := notifier.byKind("fraud_alert")
	require.Len(t, alerts, 1, "fraud alert emitted exactly once")
	assert.Equal(t, "duplicate photos across claims", alerts[0].reason)
}

func TestAssessmentFailureFallsBackToHumanReview(t *testing.T) {
	claim := draftClaim(true)
	store := newMemStore(claim)
	notifier := &fakeNotifier{}
	failed := assessment.Result{
		Failed: true,
		Assessment: models.AIAssessment{
			RiskScore:           100,
			RequiresHumanReview: true,
		},
	}
	o := newOrchestrator(store, &fakeAssessor{result: failed}, &fakeLedger{}, notifier)

	_, err := o.SubmitForProcessing(context.Background(), "user-1", claim.ClaimID)
	require.NoError(t, err)
	o.Wait()

	got, _ := store.Get(context.Background(), "user-1", claim.ClaimID)
	assert.Equal(t, models.StatusHumanReview, got.Status, "never stuck in PROCESSING")
	require.NotNil(t, got.AIAssessment, "degraded assessment still persisted")
	assert.Equal(t, float64(100), got.AIAssessment.RiskScore)
}

func TestApproveBounds(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		amount float64
		ok     bool
	}{
		{"recommended amount", 900, true},
		{"exactly 1.5x", 1500, true},
		{"above 1.5x", 1600, false},
		{"zero", 0, false},
		{"negative", -5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claim := draftClaim(true)
			claim.Status = models.StatusAIReview
			store := newMemStore(claim)
			o := newOrchestrator(store, &fakeAssessor{}, &fakeLedger{}, &fakeNotifier{})

			out, err := o.ApproveClaim(ctx, "user-1", claim.ClaimID, tc.amount)
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				got, _ := store.Get(ctx, "user-1", claim.ClaimID)
				assert.Equal(t, models.StatusAIReview, got.Status, "state unchanged on failure")
				assert.Nil(t, got.ApprovedAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.StatusApproved, out.Status)
			require.NotNil(t, out.ApprovedAmount)
			assert.Equal(t, tc.amount, *out.ApprovedAmount)
			assert.NotEmpty(t, out.ApprovedAt)
		})
	}
}

func TestApproveRequiresReviewStatus(t *testing.T) {
	for _, st := range []models.ClaimStatus{
		models.StatusDraft, models.StatusSubmitted, models.StatusProcessing,
		models.StatusApproved, models.StatusRejected, models.StatusSettled,
	} {
		claim := draftClaim(true)
		claim.Status = st
		store := newMemStore(claim)
		o := newOrchestrator(store, &fakeAssessor{}, &fakeLedger{}, &fakeNotifier{})

		_, err := o.ApproveClaim(context.Background(), "user-1", claim.ClaimID, 500)
		require.Error(t, err, "approve from %s must fail", st)
		assert.True(t, IsValidation(err))
	}
}

func TestApproveSkipsLedgerWithoutAnchor(t *testing.T) {
	claim := draftClaim(true)
	claim.Status = models.StatusHumanReview
	store := newMemStore(claim)
	ledger := &fakeLedger{}
	o := newOrchestrator(store, &fakeAssessor{}, ledger, &fakeNotifier{})

	_, err := o.ApproveClaim(context.Background(), "user-1", claim.ClaimID, 800)
	require.NoError(t, err)
	assert.Zero(t, ledger.approveCalls, "nothing on-chain to approve")
}

func TestApproveSurvivesLedgerFailure(t *testing.T) {
	claim := draftClaim(true)
	claim.Status = models.StatusAIReview
	claim.BlockchainTxHash = "0xanchor1"
	store := newMemStore(claim)
	ledger := &fakeLedger{approveErr: errors.New("gateway unreachable")}
	o := newOrchestrator(store, &fakeAssessor{}, ledger, &fakeNotifier{})

	out, err := o.ApproveClaim(context.Background(), "user-1", claim.ClaimID, 900)
	require.NoError(t, err, "ledger failure must not roll back the approval")
	assert.Equal(t, models.StatusApproved, out.Status)
	assert.Empty(t, out.ApprovalTxHash)
	assert.Equal(t, 1, ledger.approveCalls)
}

func TestApproveRecordsLedgerTx(t *testing.T) {
	claim := draftClaim(true)
	claim.Status = models.StatusAIReview
	claim.BlockchainTxHash = "0xanchor1"
	store := newMemStore(claim)
	o := newOrchestrator(store, &fakeAssessor{}, &fakeLedger{}, &fakeNotifier{})

	out, err := o.ApproveClaim(context.Background(), "user-1", claim.ClaimID, 900)
	require.NoError(t, err)
	assert.Equal(t, "0xapprove", out.ApprovalTxHash)
}

func TestRejectIsPermissive(t *testing.T) {
	for _, st := range []models.ClaimStatus{
		models.StatusDraft, models.StatusProcessing, models.StatusAIReview, models.StatusApproved,
	} {
		claim := draftClaim(true)
		claim.Status = st
		store := newMemStore(claim)
		o := newOrchestrator(store, &fakeAssessor{}, &fakeLedger{}, &fakeNotifier{})

		out, err := o.RejectClaim(context.Background(), "user-1", claim.ClaimID, "ineligible policy")
		require.NoError(t, err, "reject from %s is an administrative override", st)
		assert.Equal(t, models.StatusRejected, out.Status)
		assert.Equal(t, "ineligible policy", out.RejectionReason)
		assert.NotEmpty(t, out.RejectedAt)
	}
}

func TestSettleRequiresApproved(t *testing.T) {
	claim := draftClaim(true)
	claim.Status = models.StatusAIReview
	store := newMemStore(claim)
	ledger := &fakeLedger{}
	o := newOrchestrator(store, &fakeAssessor{}, ledger, &fakeNotifier{})

	_, err := o.SettleClaim(context.Background(), "user-1", claim.ClaimID)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Zero(t, ledger.settleCalls)
}

func TestSettleAbortsOnLedgerFailure(t *testing.T) {
	amt := 900.0
	claim := draftClaim(true)
	claim.Status = models.StatusApproved
	claim.ApprovedAmount = &amt
	store := newMemStore(claim)
	ledger := &fakeLedger{settleErr: errors.New("receipt timeout")}
	o := newOrchestrator(store, &fakeAssessor{}, ledger, &fakeNotifier{})

	_, err := o.SettleClaim(context.Background(), "user-1", claim.ClaimID)
	require.Error(t, err)
	assert.False(t, IsValidation(err), "ledger failure is not a caller mistake")

	got, _ := store.Get(context.Background(), "user-1", claim.ClaimID)
	assert.Equal(t, models.StatusApproved, got.Status, "transition aborted, not partially applied")
	assert.Empty(t, got.SettlementTxHash)
	assert.Empty(t, got.SettledAt)
}

func TestSettleHappyPath(t *testing.T) {
	amt := 900.0
	claim := draftClaim(true)
	claim.Status = models.StatusApproved
	claim.ApprovedAmount = &amt
	store := newMemStore(claim)
	notifier := &fakeNotifier{}
	o := newOrchestrator(store, &fakeAssessor{}, &fakeLedger{}, notifier)

	out, err := o.SettleClaim(context.Background(), "user-1", claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSettled, out.Status)
	assert.Equal(t, "0xsettle", out.SettlementTxHash)
	assert.NotEmpty(t, out.SettledAt)
	require.Len(t, notifier.byKind("ledger_tx"), 1)
}

func TestResetClearsOutcomeAndSupportsRelifecycle(t *testing.T) {
	ctx := context.Background()
	amt := 900.0
	claim := draftClaim(true)
	claim.Status = models.StatusApproved
	claim.ApprovedAmount = &amt
	claim.ApprovedAt = "2026-08-01T00:00:00Z"
	claim.BlockchainTxHash = "0xold"
	claim.ApprovalTxHash = "0xoldapprove"
	claim.AIAssessment = &models.AIAssessment{RiskScore: 20}
	store := newMemStore(claim)
	assessor := &fakeAssessor{result: cleanResult()}
	o := newOrchestrator(store, assessor, &fakeLedger{}, &fakeNotifier{})

	reset, err := o.ResetToDraft(ctx, "user-1", claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, reset.Status)
	assert.Nil(t, reset.AIAssessment)
	assert.Nil(t, reset.ApprovedAmount)
	assert.Empty(t, reset.ApprovedAt)
	assert.Empty(t, reset.BlockchainTxHash)
	assert.Empty(t, reset.ApprovalTxHash)
	assert.Equal(t, claim.DocumentURLs, reset.DocumentURLs, "evidence survives the reset")

	// Re-submission runs an independent lifecycle.
	_, err = o.SubmitForProcessing(ctx, "user-1", claim.ClaimID)
	require.NoError(t, err)
	o.Wait()

	got, _ := store.Get(ctx, "user-1", claim.ClaimID)
	assert.Equal(t, models.StatusAIReview, got.Status)
	assert.Nil(t, got.ApprovedAmount, "no leakage of the prior approval")
	assert.Equal(t, 1, assessor.callCount())
}

func TestResetRefusesSettled(t *testing.T) {
	claim := draftClaim(true)
	claim.Status = models.StatusSettled
	store := newMemStore(claim)
	o := newOrchestrator(store, &fakeAssessor{}, &fakeLedger{}, &fakeNotifier{})

	_, err := o.ResetToDraft(context.Background(), "user-1", claim.ClaimID)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestAnchorClaimBackfillsHash(t *testing.T) {
	claim := draftClaim(true)
	claim.Status = models.StatusAIReview
	claim.AIAssessment = &models.AIAssessment{RiskScore: 20}
	store := newMemStore(claim)
	ledger := &fakeLedger{}
	o := newOrchestrator(store, &fakeAssessor{}, ledger, &fakeNotifier{})

	out, err := o.AnchorClaim(context.Background(), "user-1", claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.submitCalls)
	assert.Equal(t, "0xanchor1", out.BlockchainTxHash)
}

func TestAnchorClaimRequiresAssessment(t *testing.T) {
	store := newMemStore(draftClaim(true))
	o := newOrchestrator(store, &fakeAssessor{}, &fakeLedger{}, &fakeNotifier{})

	_, err := o.AnchorClaim(context.Background(), "user-1", draftClaim(true).ClaimID)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestLatePhotoRetriggersOnlyWhenSubmitted(t *testing.T) {
	ctx := context.Background()
	claim := draftClaim(true)
	claim.Status = models.StatusSubmitted
	store := newMemStore(claim)
	assessor := &fakeAssessor{result: cleanResult()}
	o := newOrchestrator(store, assessor, &fakeLedger{}, &fakeNotifier{})

	require.NoError(t, o.RecordEvidence(ctx, "user-1", claim.ClaimID, "damage_photo_urls", "https://bucket/late.jpg"))
	o.Wait()
	assert.Equal(t, 1, assessor.callCount())

	got, _ := store.Get(ctx, "user-1", claim.ClaimID)
	assert.Contains(t, got.DamagePhotoURLs, "https://bucket/late.jpg")

	// Documents do not retrigger, and the claim has since left SUBMITTED.
	require.NoError(t, o.RecordEvidence(ctx, "user-1", claim.ClaimID, "document_urls", "https://bucket/late.pdf"))
	o.Wait()
	assert.Equal(t, 1, assessor.callCount())
}

func TestRecordEvidenceDropsAfterEditableWindow(t *testing.T) {
	ctx := context.Background()
	for _, st := range []models.ClaimStatus{
		models.StatusProcessing, models.StatusAIReview, models.StatusHumanReview,
		models.StatusApproved, models.StatusRejected, models.StatusSettled,
	} {
		claim := draftClaim(true)
		claim.Status = st
		store := newMemStore(claim)
		assessor := &fakeAssessor{result: cleanResult()}
		o := newOrchestrator(store, assessor, &fakeLedger{}, &fakeNotifier{})

		require.NoError(t, o.RecordEvidence(ctx, "user-1", claim.ClaimID, "damage_photo_urls", "https://bucket/stale.jpg"))
		o.Wait()

		got, _ := store.Get(ctx, "user-1", claim.ClaimID)
		assert.NotContains(t, got.DamagePhotoURLs, "https://bucket/stale.jpg", "upload against %s must be dropped", st)
		assert.Zero(t, assessor.callCount())
	}
}

func TestRecordEvidenceAppendsWhileDraft(t *testing.T) {
	ctx := context.Background()
	claim := draftClaim(false)
	store := newMemStore(claim)
	assessor := &fakeAssessor{result: cleanResult()}
	o := newOrchestrator(store, assessor, &fakeLedger{}, &fakeNotifier{})

	require.NoError(t, o.RecordEvidence(ctx, "user-1", claim.ClaimID, "document_urls", "https://bucket/doc.pdf"))
	o.Wait()

	got, _ := store.Get(ctx, "user-1", claim.ClaimID)
	assert.Equal(t, []string{"https://bucket/doc.pdf"}, got.DocumentURLs)
	assert.Zero(t, assessor.callCount(), "drafts never launch the pipeline")
}

func TestResetDuringProcessingDiscardsAssessment(t *testing.T) {
	ctx := context.Background()
	claim := draftClaim(true)
	store := newMemStore(claim)
	assessor := newGatedAssessor(cleanResult())
	o := newOrchestrator(store, assessor, &fakeLedger{}, &fakeNotifier{})

	_, err := o.SubmitForProcessing(ctx, "user-1", claim.ClaimID)
	require.NoError(t, err)
	<-assessor.started

	// The claim is PROCESSING while the engine works; reset it out from
	// under the run.
	reset, err := o.ResetToDraft(ctx, "user-1", claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, reset.Status)

	close(assessor.release)
	o.Wait()

	got, _ := store.Get(ctx, "user-1", claim.ClaimID)
	assert.Equal(t, models.StatusDraft, got.Status, "finished run must not resurrect the claim")
	assert.Nil(t, got.AIAssessment, "reset-cleared assessment must stay cleared")
}

func TestFallbackSkipsClaimsNoLongerProcessing(t *testing.T) {
	ctx := context.Background()
	claim := draftClaim(true)
	store := newMemStore(claim)
	o := newOrchestrator(store, &fakeAssessor{}, &fakeLedger{}, &fakeNotifier{})

	o.fallbackToHumanReview(ctx, "user-1", claim.ClaimID, "late failure")

	got, _ := store.Get(ctx, "user-1", claim.ClaimID)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Nil(t, got.AIAssessment)
}

// The end-to-end scenario: submit, assess clean, approve within bounds, settle.
func TestFullLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	claim := draftClaim(true)
	store := newMemStore(claim)
	notifier := &fakeNotifier{}
	res := cleanResult()
	res.Assessment.RecommendedAmount = 900
	o := newOrchestrator(store, &fakeAssessor{result: res}, &fakeLedger{}, notifier)

	out, err := o.SubmitForProcessing(ctx, "user-1", claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, out.Status)
	o.Wait()

	got, _ := store.Get(ctx, "user-1", claim.ClaimID)
	require.Equal(t, models.StatusAIReview, got.Status)

	_, err = o.ApproveClaim(ctx, "user-1", claim.ClaimID, 1600)
	require.Error(t, err, "1600 exceeds 1.5x of 1000")

	approved, err := o.ApproveClaim(ctx, "user-1", claim.ClaimID, 900)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	settled, err := o.SettleClaim(ctx, "user-1", claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSettled, settled.Status)

	statuses := notifier.byKind("status")
	var seen []models.ClaimStatus
	for _, ev := range statuses {
		seen = append(seen, ev.status)
	}
	assert.Equal(t, []models.ClaimStatus{
		models.StatusSubmitted, models.StatusProcessing, models.StatusAIReview,
		models.StatusApproved, models.StatusSettled,
	}, seen)
}
