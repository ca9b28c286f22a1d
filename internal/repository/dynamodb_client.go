package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skState     = "STATE#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL
)

// Attributes managed by the repository; state keys may not shadow them.
var reservedAttrs = map[string]bool{
	"PK":             true,
	"SK":             true,
	"conversationId": true,
	"updatedAt":      true,
	"ttl":            true,
}

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client wraps a DynamoDB table for conversation state.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

func (c *Client) key(conversationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// LoadState reads the committed state item of a conversation. A missing
// item yields an empty map.
func (c *Client) LoadState(ctx context.Context, conversationID string) (map[string]string, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(conversationID),
		// Strongly consistent so a commit from the previous turn is visible.
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: LoadState get item: %w", err)
	}
	values := make(map[string]string)
	if out == nil || len(out.Item) == 0 {
		return values, nil
	}
	for name, attr := range out.Item {
		if reservedAttrs[name] {
			continue
		}
		s, ok := attr.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("repository: LoadState: attribute %q is not a string", name)
		}
		values[name] = s.Value
	}
	return values, nil
}

// SaveState replaces the state item of a conversation.
func (c *Client) SaveState(ctx context.Context, conversationID string, values map[string]string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("repository: SaveState: conversation id is required")
	}
	item, err := c.stateItem(conversationID, values)
	if err != nil {
		return fmt.Errorf("repository: SaveState: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: SaveState: %w", err)
	}
	return nil
}

func (c *Client) stateItem(conversationID string, values map[string]string) (map[string]types.AttributeValue, error) {
	now := c.now().UTC()
	item := c.key(conversationID)
	item["conversationId"] = &types.AttributeValueMemberS{Value: conversationID}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttlDuration).Unix(), 10)}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if reservedAttrs[k] || k == "" {
			return nil, fmt.Errorf("reserved or empty state key %q", k)
		}
		item[k] = &types.AttributeValueMemberS{Value: values[k]}
	}
	return item, nil
}
