package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// AdminFanout publishes claim submission notices to an SNS topic consumed by
// back-office tooling. Best effort: a failed publish is logged and dropped.
type AdminFanout struct {
	SNS      *sns.Client
	TopicARN string
}

// ClaimSubmitted announces a freshly submitted claim to administrators.
func (f *AdminFanout) ClaimSubmitted(ctx context.Context, userID, claimID string, claimType string, amount float64) {
	if f == nil || f.SNS == nil || f.TopicARN == "" {
		return
	}
	msg, err := json.Marshal(map[string]any{
		"event":            "claim_submitted",
		"user_id":          userID,
		"claim_id":         claimID,
		"claim_type":       claimType,
		"requested_amount": amount,
	})
	if err != nil {
		log.Printf("notify: marshal admin notice: %v", err)
		return
	}
	_, err = f.SNS.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(f.TopicARN),
		Subject:  aws.String("New claim submitted"),
		Message:  aws.String(string(msg)),
	})
	if err != nil {
		log.Printf("notify: admin fan-out for %s: %v", claimID, err)
	}
}
