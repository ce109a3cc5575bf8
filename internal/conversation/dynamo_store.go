package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

// fixed width so sort keys order lexicographically by time
const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type turnItem struct {
	PK        string         `dynamodbav:"pk"`
	SK        string         `dynamodbav:"sk"`
	TurnID    string         `dynamodbav:"turnId"`
	ContactID string         `dynamodbav:"contactId"`
	Role      string         `dynamodbav:"role"`
	Content   string         `dynamodbav:"content"`
	Metadata  map[string]any `dynamodbav:"metadata,omitempty"`
	CreatedAt string         `dynamodbav:"createdAt"`
}

// DynamoStore keeps turns in a single table keyed by CONTACT#<id> / TURN#<time>#<id>.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{client: client, tableName: tableName, logger: logger}
}

func (s *DynamoStore) Append(ctx context.Context, turn *Turn) error {
	created := turn.CreatedAt.UTC()
	item, err := attributevalue.MarshalMap(turnItem{
		PK:        partitionKey(turn.ContactID),
		SK:        "TURN#" + created.Format(sortKeyLayout) + "#" + turn.ID,
		TurnID:    turn.ID,
		ContactID: turn.ContactID,
		Role:      string(turn.Role),
		Content:   turn.Content,
		Metadata:  turn.Metadata,
		CreatedAt: created.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal turn: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to persist turn: %w", err)
	}
	return nil
}

// Recent reads newest first and keeps paging until limit turns are collected,
// since a single Query response is capped at 1 MB.
func (s *DynamoStore) Recent(ctx context.Context, contactID string, limit int) ([]*Turn, error) {
	var (
		turns []*Turn
		start map[string]types.AttributeValue
	)
	for len(turns) < limit {
		out, err := s.client.Query(ctx, s.query(contactID, false, aws.Int32(int32(limit-len(turns))), start))
		if err != nil {
			return nil, fmt.Errorf("conversation: failed to query turns: %w", err)
		}
		page, err := decodeTurns(out.Items)
		if err != nil {
			return nil, err
		}
		turns = append(turns, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	if turns == nil {
		turns = []*Turn{}
	}
	return turns, nil
}

// All pages through the partition in ascending sort-key order.
func (s *DynamoStore) All(ctx context.Context, contactID string) ([]*Turn, error) {
	var (
		turns []*Turn
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, s.query(contactID, true, nil, start))
		if err != nil {
			return nil, fmt.Errorf("conversation: failed to query turns: %w", err)
		}
		page, err := decodeTurns(out.Items)
		if err != nil {
			return nil, err
		}
		turns = append(turns, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return turns, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) query(contactID string, forward bool, limit *int32, start map[string]types.AttributeValue) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: partitionKey(contactID)},
			":prefix": &types.AttributeValueMemberS{Value: "TURN#"},
		},
		ScanIndexForward:  aws.Bool(forward),
		Limit:             limit,
		ExclusiveStartKey: start,
	}
}

func decodeTurns(items []map[string]types.AttributeValue) ([]*Turn, error) {
	turns := make([]*Turn, 0, len(items))
	for _, raw := range items {
		var item turnItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("conversation: failed to decode turn: %w", err)
		}
		role, err := ParseRole(item.Role)
		if err != nil {
			return nil, err
		}
		created, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("conversation: bad createdAt %q: %w", item.CreatedAt, err)
		}
		turns = append(turns, &Turn{
			ID:        item.TurnID,
			ContactID: item.ContactID,
			Role:      role,
			Content:   item.Content,
			Metadata:  item.Metadata,
			CreatedAt: created,
		})
	}
	return turns, nil
}

func partitionKey(contactID string) string {
	return "CONTACT#" + strings.TrimSpace(contactID)
}
