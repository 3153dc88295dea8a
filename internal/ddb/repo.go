// Package ddb provides a simple repository for interacting with DynamoDB for claim records.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kylejryan/insurance-claims-pipeline/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrNotFound is returned when no claim exists under the given keys.
var ErrNotFound = errors.New("claim not found")

// Repo wraps a DynamoDB client and table name for claim operations.
type Repo struct {
	DB    *dynamodb.Client
	Table string
}

// Create inserts a new claim record in DRAFT, ensuring no duplicate exists.
func (r *Repo) Create(ctx context.Context, c models.Claim) error {
	c.PK, c.SK = MakeKeys(c.UserID, c.ClaimID)
	c.Status = models.StatusDraft
	now := NowISO()
	c.CreatedAt, c.UpdatedAt = now, now

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	return err
}

// Get fetches one claim, returning ErrNotFound when it does not exist.
func (r *Repo) Get(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	pk, sk := MakeKeys(userID, claimID)
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.Table,
		Key:       keyAttrs(pk, sk),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var c models.Claim
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByUser returns all claims under one user's partition, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID string, limit int32) ([]models.Claim, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("USER#%s", userID))).
		And(expression.Key("SK").BeginsWith("CLAIM#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}

	var claims []models.Claim
	var startKey map[string]types.AttributeValue
	for {
		out, qerr := r.DB.Query(ctx, &dynamodb.QueryInput{
			TableName:                 &r.Table,
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false), // ULID sort keys: newest first
			Limit:                     aws.Int32(limit),
			ExclusiveStartKey:         startKey,
		})
		if qerr != nil {
			return nil, qerr
		}
		var page []models.Claim
		if uerr := attributevalue.UnmarshalListOfMaps(out.Items, &page); uerr != nil {
			return nil, uerr
		}
		claims = append(claims, page...)
		if out.LastEvaluatedKey == nil || int32(len(claims)) >= limit {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	if int32(len(claims)) > limit {
		claims = claims[:limit]
	}
	return claims, nil
}

// Update applies a partial SET of the named fields, leaving everything else
// untouched. updated_at is always refreshed.
func (r *Repo) Update(ctx context.Context, userID, claimID string, fields map[string]any) error {
	upd := expression.Set(expression.Name("updated_at"), expression.Value(NowISO()))
	for name, v := range fields {
		upd = upd.Set(expression.Name(name), expression.Value(v))
	}
	return r.update(ctx, userID, claimID, upd)
}

// AppendStep appends one audit entry to the claim's processing log.
func (r *Repo) AppendStep(ctx context.Context, userID, claimID string, step models.ProcessingStep) error {
	upd := expression.
		Set(expression.Name("processing_steps"), appendToList("processing_steps", []models.ProcessingStep{step})).
		Set(expression.Name("updated_at"), expression.Value(NowISO()))
	return r.update(ctx, userID, claimID, upd)
}

// AppendEvidence appends one URL to either document_urls or damage_photo_urls.
// list_append keeps concurrent uploads from clobbering each other.
func (r *Repo) AppendEvidence(ctx context.Context, userID, claimID, attr, url string) error {
	if attr != "document_urls" && attr != "damage_photo_urls" {
		return fmt.Errorf("unknown evidence attribute %q", attr)
	}
	upd := expression.
		Set(expression.Name(attr), appendToList(attr, []string{url})).
		Set(expression.Name("updated_at"), expression.Value(NowISO()))
	return r.update(ctx, userID, claimID, upd)
}

// ResetToDraft atomically returns a claim to DRAFT: status flips, every
// outcome and ledger field is removed, and the audit entry is appended, all
// in one write.
func (r *Repo) ResetToDraft(ctx context.Context, userID, claimID string, step models.ProcessingStep) error {
	upd := expression.
		Set(expression.Name("status"), expression.Value(models.StatusDraft)).
		Set(expression.Name("processing_steps"), appendToList("processing_steps", []models.ProcessingStep{step})).
		Set(expression.Name("updated_at"), expression.Value(NowISO()))
	for _, name := range []string{
		"ai_assessment", "approved_amount", "rejection_reason",
		"approved_at", "rejected_at", "settled_at",
		"blockchain_tx_hash", "approval_tx_hash", "settlement_tx_hash",
	} {
		upd = upd.Remove(expression.Name(name))
	}
	return r.update(ctx, userID, claimID, upd)
}

func (r *Repo) update(ctx context.Context, userID, claimID string, upd expression.UpdateBuilder) error {
	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return err
	}
	pk, sk := MakeKeys(userID, claimID)
	_, err = r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &r.Table,
		Key:                       keyAttrs(pk, sk),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return err
}

// appendToList builds list_append(if_not_exists(attr, []), values).
func appendToList(attr string, values any) expression.OperandBuilder {
	return expression.ListAppend(
		expression.IfNotExists(expression.Name(attr), expression.Value([]any{})),
		expression.Value(values),
	)
}

func keyAttrs(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// NowISO returns the current time in ISO8601 format.
func NowISO() string { return time.Now().UTC().Format(time.RFC3339) }

// MakeKeys constructs the partition key (PK) and sort key (SK) for a claim record.
func MakeKeys(sub, claimID string) (pk, sk string) {
	return fmt.Sprintf("USER#%s", sub), fmt.Sprintf("CLAIM#%s", claimID)
}
