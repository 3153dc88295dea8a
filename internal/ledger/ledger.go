// Package ledger wraps the on-chain claims contract behind an idempotent,
// receipt-confirmed client. Writes are considered successful only once the
// gateway reports a mined receipt for the transaction.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

// LedgerIDModulus bounds derived ledger identifiers to 8 decimal digits, the
// width of the contract's claim id field. Collisions are a known limitation.
const LedgerIDModulus = 100_000_000

// DefaultConfirmTimeout bounds one receipt confirmation wait.
const DefaultConfirmTimeout = 90 * time.Second

// ErrNotConfirmed is returned when a transaction never reached a mined
// receipt inside the confirmation window.
var ErrNotConfirmed = errors.New("ledger: transaction not confirmed")

// Receipt is the tagged outcome of one confirmed ledger write.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Confirmed   bool   `json:"confirmed"`
}

// chainClaim is the gateway's view of a submitted claim record.
type chainClaim struct {
	LedgerID uint64  `json:"ledger_id"`
	Exists   bool    `json:"exists"`
	Type     string  `json:"claim_type"`
	Amount   float64 `json:"amount"`
}

// Client talks JSON-RPC to the chain gateway in front of the claims contract.
type Client struct {
	GatewayURL     string
	HTTP           *http.Client
	ConfirmTimeout time.Duration
}

// New returns a Client with default timeouts applied.
func New(gatewayURL string) *Client {
	return &Client{
		GatewayURL:     gatewayURL,
		HTTP:           &http.Client{Timeout: 30 * time.Second},
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

// DeriveLedgerID maps an opaque claim id to the contract's fixed-width
// numeric identifier. FNV-1a reduced mod 10^8: stable across processes and
// languages, so the service and the contract agree on identity without a
// central allocator.
func DeriveLedgerID(claimID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(claimID))
	return h.Sum64() % LedgerIDModulus
}

// SubmitAndRecord anchors a claim and its assessment on-chain, idempotently.
// An existing record under the derived id skips the submission; the
// assessment write always runs. Returns the assessment transaction hash.
func (c *Client) SubmitAndRecord(ctx context.Context, claim *models.Claim, a models.AIAssessment) (string, error) {
	ledgerID := DeriveLedgerID(claim.ClaimID)

	existing, err := c.getClaim(ctx, ledgerID)
	if err != nil {
		return "", fmt.Errorf("ledger: existence check for %d: %w", ledgerID, err)
	}
	if !existing.Exists {
		evidence := ""
		if len(claim.DocumentURLs) > 0 {
			evidence = claim.DocumentURLs[0]
		}
		if _, err := c.write(ctx, "submitClaim", map[string]any{
			"ledger_id":  ledgerID,
			"claim_type": claim.Type,
			"amount":     claim.RequestedAmount,
			"evidence":   evidence,
		}); err != nil {
			return "", fmt.Errorf("ledger: submit %d: %w", ledgerID, err)
		}
	} else {
		log.Printf("ledger: record %d already on chain for claim %s, skipping submit", ledgerID, claim.ClaimID)
	}

	reports, _ := json.Marshal(map[string]json.RawMessage{
		"document":   a.DocumentReport,
		"damage":     a.DamageReport,
		"fraud":      a.FraudReport,
		"settlement": a.SettlementReport,
	})
	rcpt, err := c.write(ctx, "updateAssessment", map[string]any{
		"ledger_id":          ledgerID,
		"confidence_score":   a.ConfidenceScore,
		"risk_score":         a.RiskScore,
		"recommended_amount": a.RecommendedAmount,
		"fraud_detected":     a.FraudDetected,
		"reports":            json.RawMessage(reports),
	})
	if err != nil {
		// The claim stays anchored without a recorded assessment; the
		// contract has no claim-scoped transaction to roll back with.
		return "", fmt.Errorf("ledger: record assessment %d: %w", ledgerID, err)
	}
	return rcpt.TxHash, nil
}

// Approve records the approval on-chain, returning the transaction hash.
func (c *Client) Approve(ctx context.Context, claimID string, amount float64) (string, error) {
	return c.simpleWrite(ctx, "approveClaim", claimID, map[string]any{"amount": amount})
}

// Reject records the rejection on-chain, returning the transaction hash.
func (c *Client) Reject(ctx context.Context, claimID, reason string) (string, error) {
	return c.simpleWrite(ctx, "rejectClaim", claimID, map[string]any{"reason": reason})
}

// Settle records the settlement payout on-chain, returning the transaction
// hash. Settlement moves money, so callers must treat an error as fatal to
// the transition.
func (c *Client) Settle(ctx context.Context, claimID string, amount float64) (string, error) {
	return c.simpleWrite(ctx, "settleClaim", claimID, map[string]any{"amount": amount})
}

func (c *Client) simpleWrite(ctx context.Context, method, claimID string, params map[string]any) (string, error) {
	params["ledger_id"] = DeriveLedgerID(claimID)
	rcpt, err := c.write(ctx, method, params)
	if err != nil {
		return "", fmt.Errorf("ledger: %s: %w", method, err)
	}
	return rcpt.TxHash, nil
}

func (c *Client) getClaim(ctx context.Context, ledgerID uint64) (chainClaim, error) {
	var cc chainClaim
	err := c.call(ctx, "getClaim", map[string]any{"ledger_id": ledgerID}, &cc)
	return cc, err
}

// write submits one contract call and waits for its receipt.
func (c *Client) write(ctx context.Context, method string, params any) (Receipt, error) {
	var submitted struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.call(ctx, method, params, &submitted); err != nil {
		return Receipt{}, err
	}
	return c.waitForReceipt(ctx, submitted.TxHash)
}

// waitForReceipt polls getReceipt with exponential backoff until the
// transaction is mined or the confirmation window elapses.
func (c *Client) waitForReceipt(ctx context.Context, txHash string) (Receipt, error) {
	op := func() (Receipt, error) {
		var rcpt Receipt
		if err := c.call(ctx, "getReceipt", map[string]any{"tx_hash": txHash}, &rcpt); err != nil {
			var rpcErr *rpcRespError
			if errors.As(err, &rpcErr) {
				// The gateway rejected the transaction outright.
				return Receipt{}, backoff.Permanent(err)
			}
			return Receipt{}, err
		}
		if !rcpt.Confirmed {
			return Receipt{}, ErrNotConfirmed
		}
		return rcpt, nil
	}
	rcpt, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.ConfirmTimeout),
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("confirm %s: %w", txHash, err)
	}
	return rcpt, nil
}
