package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

const (
	pkPrefixState      = "STATE#"
	pkPrefixTranscript = "TRANSCRIPT#"
	skState            = "RECORD"
	skPrefixEntry      = "ENTRY#"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoDBStore.
// *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore keeps state records and transcripts in a single table keyed by PK/SK.
type DynamoDBStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamoDBStore creates a store on the given table.
func NewDynamoDBStore(api dynamodbAPI, tableName string) (*DynamoDBStore, error) {
	if api == nil {
		return nil, errors.New("store: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("store: dynamodb table name must not be empty")
	}
	return &DynamoDBStore{api: api, tableName: tableName, now: time.Now}, nil
}

func statePK(scope models.Scope, key string) string {
	return pkPrefixState + string(scope) + "#" + key
}

func transcriptPK(conversationKey string) string {
	return pkPrefixTranscript + conversationKey
}

// entrySK orders entries by time; the nanosecond suffix keeps entries of the same second distinct.
func entrySK(unix int64, seq int64) string {
	return fmt.Sprintf("%s%020d#%020d", skPrefixEntry, unix, seq)
}

// LoadState retrieves the record for (scope, key).
func (s *DynamoDBStore) LoadState(ctx context.Context, scope models.Scope, key string) (*models.StateRecord, error) {
	if scope == "" || key == "" {
		return nil, ErrMissingStateKey
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: statePK(scope, key)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		slog.Error("DynamoDBStore LoadState failed", "error", err, "scope", scope, "key", key)
		return nil, fmt.Errorf("store: dynamodb get state %s/%s: %w", scope, key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	rec := models.StateRecord{Scope: scope, Key: key}
	raw, err := stringAttr(out.Item, "properties")
	if err != nil {
		return nil, fmt.Errorf("store: dynamodb decode state %s/%s: %w", scope, key, err)
	}
	if rec.Properties, err = decodeProperties([]byte(raw)); err != nil {
		return nil, err
	}
	rec.CreatedAt = timeAttr(out.Item, "created_at")
	rec.UpdatedAt = timeAttr(out.Item, "updated_at")
	return &rec, nil
}

// SaveState stores or replaces a record.
func (s *DynamoDBStore) SaveState(ctx context.Context, rec models.StateRecord) error {
	if rec.Scope == "" || rec.Key == "" {
		return ErrMissingStateKey
	}
	raw, err := encodeProperties(rec.Properties)
	if err != nil {
		return err
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: statePK(rec.Scope, rec.Key)},
			"SK":         &types.AttributeValueMemberS{Value: skState},
			"scope":      &types.AttributeValueMemberS{Value: string(rec.Scope)},
			"state_key":  &types.AttributeValueMemberS{Value: rec.Key},
			"properties": &types.AttributeValueMemberS{Value: string(raw)},
			"created_at": &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
			"updated_at": &types.AttributeValueMemberS{Value: rec.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		slog.Error("DynamoDBStore SaveState failed", "error", err, "scope", rec.Scope, "key", rec.Key)
		return fmt.Errorf("store: dynamodb put state %s/%s: %w", rec.Scope, rec.Key, err)
	}
	return nil
}

// DeleteState removes a record.
func (s *DynamoDBStore) DeleteState(ctx context.Context, scope models.Scope, key string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: statePK(scope, key)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
	})
	if err != nil {
		return fmt.Errorf("store: dynamodb delete state %s/%s: %w", scope, key, err)
	}
	return nil
}

// AddTranscript appends a transcript entry.
func (s *DynamoDBStore) AddTranscript(ctx context.Context, e models.TranscriptEntry) error {
	now := s.now()
	if e.Time == 0 {
		e.Time = now.Unix()
	}
	item := map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: transcriptPK(e.ConversationKey)},
		"SK":            &types.AttributeValueMemberS{Value: entrySK(e.Time, now.UnixNano())},
		"direction":     &types.AttributeValueMemberS{Value: string(e.Direction)},
		"activity_type": &types.AttributeValueMemberS{Value: string(e.ActivityType)},
		"time":          &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Time, 10)},
	}
	if e.ActivityID != "" {
		item["activity_id"] = &types.AttributeValueMemberS{Value: e.ActivityID}
	}
	if e.FromID != "" {
		item["from_id"] = &types.AttributeValueMemberS{Value: e.FromID}
	}
	if e.Text != "" {
		item["text"] = &types.AttributeValueMemberS{Value: e.Text}
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		slog.Error("DynamoDBStore AddTranscript failed", "error", err, "conversation", e.ConversationKey)
		return fmt.Errorf("store: dynamodb put transcript: %w", err)
	}
	return nil
}

// ListTranscript returns the newest entries of a conversation in chronological order.
func (s *DynamoDBStore) ListTranscript(ctx context.Context, conversationKey string, limit int) ([]models.TranscriptEntry, error) {
	limit = transcriptLimit(limit)
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: transcriptPK(conversationKey)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixEntry},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("store: dynamodb query transcript: %w", err)
	}

	entries := make([]models.TranscriptEntry, 0, len(out.Items))
	for _, item := range out.Items {
		e := models.TranscriptEntry{ConversationKey: conversationKey}
		e.ActivityID, _ = stringAttr(item, "activity_id")
		e.FromID, _ = stringAttr(item, "from_id")
		e.Text, _ = stringAttr(item, "text")
		direction, _ := stringAttr(item, "direction")
		activityType, _ := stringAttr(item, "activity_type")
		e.Direction = models.Direction(direction)
		e.ActivityType = models.ActivityType(activityType)
		if n, ok := item["time"].(*types.AttributeValueMemberN); ok {
			e.Time, _ = strconv.ParseInt(n.Value, 10, 64)
		}
		entries = append(entries, e)
	}
	reverseTranscript(entries)
	return entries, nil
}

// Close is a no-op; the AWS client has no connection to release.
func (s *DynamoDBStore) Close() error {
	return nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q missing or not a string", name)
	}
	return v.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, name string) time.Time {
	raw, err := stringAttr(item, name)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
