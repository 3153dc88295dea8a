package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// connection is one live WebSocket connection for a user. A user may hold
// several (multiple tabs/devices).
type connection struct {
	PK           string `dynamodbav:"PK"` // USER#<sub>
	SK           string `dynamodbav:"SK"` // CONN#<connectionID>
	ConnectionID string `dynamodbav:"connection_id"`
	UserID       string `dynamodbav:"user_id"`
	ConnectedAt  string `dynamodbav:"connected_at"` // ISO8601
}

// Registry tracks live WebSocket connections in DynamoDB: added on $connect,
// removed on $disconnect or when a push finds the connection gone.
type Registry struct {
	DB    *dynamodb.Client
	Table string
}

// Add records a connection for a user.
func (r *Registry) Add(ctx context.Context, userID, connectionID string) error {
	item, err := attributevalue.MarshalMap(connection{
		PK:           fmt.Sprintf("USER#%s", userID),
		SK:           fmt.Sprintf("CONN#%s", connectionID),
		ConnectionID: connectionID,
		UserID:       userID,
		ConnectedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{TableName: &r.Table, Item: item})
	return err
}

// Remove drops a connection for a user. Removing an absent connection is not
// an error.
func (r *Registry) Remove(ctx context.Context, userID, connectionID string) error {
	_, err := r.DB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &r.Table,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", userID)},
			"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("CONN#%s", connectionID)},
		},
	})
	return err
}

// List returns the user's live connection ids.
func (r *Registry) List(ctx context.Context, userID string) ([]string, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("USER#%s", userID))).
		And(expression.Key("SK").BeginsWith("CONN#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}
	out, err := r.DB.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &r.Table,
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(50),
	})
	if err != nil {
		return nil, err
	}
	var conns []connection
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &conns); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ConnectionID)
	}
	return ids, nil
}
