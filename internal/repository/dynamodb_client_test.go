package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC) }
	return c
}

func strValue(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %q", key)
	return v.Value
}

func TestLoadState_HappyPath(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: "CONV#abc"},
		"SK":             &types.AttributeValueMemberS{Value: skState},
		"conversationId": &types.AttributeValueMemberS{Value: "abc"},
		"updatedAt":      &types.AttributeValueMemberS{Value: "2026-02-25T10:00:00Z"},
		"ttl":            &types.AttributeValueMemberN{Value: "1774000000"},
		"sessionID":      &types.AttributeValueMemberS{Value: "sid-1"},
		"csrfToken":      &types.AttributeValueMemberS{Value: "tok-1"},
	}}}
	c := mustNewClient(t, db)

	values, err := c.LoadState(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"sessionID": "sid-1", "csrfToken": "tok-1"}, values)
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, "CONV#abc", strValue(t, db.lastGetInput.Key, "PK"))
	require.Equal(t, skState, strValue(t, db.lastGetInput.Key, "SK"))
}

func TestLoadState_MissingItem(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)
	values, err := c.LoadState(context.Background(), "abc")
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestLoadState_GetItemError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, err := c.LoadState(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "LoadState")
}

func TestLoadState_NonStringAttribute(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"sessionID": &types.AttributeValueMemberN{Value: "12"},
	}}}
	c := mustNewClient(t, db)
	_, err := c.LoadState(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a string")
}

func TestSaveState_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.SaveState(context.Background(), "abc", map[string]string{"sessionID": "sid-1", "csrfToken": "tok-1"})
	require.NoError(t, err)
	item := db.lastPutInput.Item
	require.Equal(t, "test-table", *db.lastPutInput.TableName)
	require.Equal(t, "CONV#abc", strValue(t, item, "PK"))
	require.Equal(t, skState, strValue(t, item, "SK"))
	require.Equal(t, "abc", strValue(t, item, "conversationId"))
	require.Equal(t, "sid-1", strValue(t, item, "sessionID"))
	require.Equal(t, "tok-1", strValue(t, item, "csrfToken"))
	require.Equal(t, "2026-02-25T10:00:00Z", strValue(t, item, "updatedAt"))

	ttl, ok := item["ttl"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	want := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC).Add(ttlDuration).Unix()
	require.Equal(t, want, mustParseInt(t, ttl.Value))
}

func TestSaveState_ReservedKey(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.SaveState(context.Background(), "abc", map[string]string{"ttl": "1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "reserved")
	require.Nil(t, db.lastPutInput)
}

func TestSaveState_EmptyConversationID(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.SaveState(context.Background(), " ", map[string]string{"sessionID": "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestSaveState_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	c := mustNewClient(t, db)
	err := c.SaveState(context.Background(), "abc", map[string]string{"sessionID": "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveState")
}

func TestConvPK(t *testing.T) {
	require.Equal(t, "CONV#my-conv", convPK("my-conv"))
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func mustParseInt(t *testing.T, s string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return n
}
