package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"

	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

const publishTimeout = 10 * time.Second

// WSPublisher pushes events over API Gateway WebSocket connections, looked
// up per user in the Registry. Stale connections are pruned on the first
// push that finds them gone.
type WSPublisher struct {
	API      *apigatewaymanagementapi.Client
	Registry *Registry
}

// PublishStatus pushes a status_update event.
func (p *WSPublisher) PublishStatus(userID, claimID string, status models.ClaimStatus, note string) {
	payload := map[string]any{"status": string(status)}
	if note != "" {
		payload["note"] = note
	}
	p.send(newEvent(KindStatusUpdate, userID, claimID, payload))
}

// PublishProgress pushes a progress_update event.
func (p *WSPublisher) PublishProgress(userID, claimID string, percent int, message string) {
	p.send(newEvent(KindProgressUpdate, userID, claimID, map[string]any{
		"percent": percent,
		"message": message,
	}))
}

// PublishLedgerTx pushes a ledger_tx event.
func (p *WSPublisher) PublishLedgerTx(userID, claimID, txHash, operation string) {
	p.send(newEvent(KindLedgerTx, userID, claimID, map[string]any{
		"tx_hash":   txHash,
		"operation": operation,
	}))
}

// PublishFraudAlert pushes a fraud_alert event.
func (p *WSPublisher) PublishFraudAlert(userID, claimID, reason string) {
	p.send(newEvent(KindFraudAlert, userID, claimID, map[string]any{"reason": reason}))
}

// send delivers one event to every live connection of its user. Failures of
// any kind are logged and dropped.
func (p *WSPublisher) send(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	conns, err := p.Registry.List(ctx, ev.UserID)
	if err != nil {
		log.Printf("notify: list connections for %s: %v", ev.UserID, err)
		return
	}
	if len(conns) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("notify: marshal event %s: %v", ev.ID, err)
		return
	}
	for _, connID := range conns {
		_, err := p.API.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(connID),
			Data:         data,
		})
		if err == nil {
			continue
		}
		var gone *types.GoneException
		if errors.As(err, &gone) {
			if rmErr := p.Registry.Remove(ctx, ev.UserID, connID); rmErr != nil {
				log.Printf("notify: prune %s: %v", connID, rmErr)
			}
			continue
		}
		log.Printf("notify: post to %s: %v", connID, err)
	}
}
