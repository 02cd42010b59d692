// Package storage provides persistence implementations for sync state, credentials,
// sync history and alerts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goccy/go-json"

	"github.com/peteski22/churchbridge/internal/alert"
	"github.com/peteski22/churchbridge/internal/monitor"
)

const (
	// alertKeyPrefix starts the sort key of alert items.
	alertKeyPrefix = "alert#"

	// syncKeyPrefix starts the sort key of sync history items.
	syncKeyPrefix = "sync#"
)

// DynamoDBAPI defines the DynamoDB operations used by the recorder.
type DynamoDBAPI interface {
	// PutItem stores an item in DynamoDB.
	PutItem(
		ctx context.Context,
		params *dynamodb.PutItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.PutItemOutput, error)

	// Query retrieves items matching a key condition from DynamoDB.
	Query(
		ctx context.Context,
		params *dynamodb.QueryInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.QueryOutput, error)
}

// Recorder persists sync history entries and alerts in a DynamoDB table keyed by
// integration_id (partition) and sort_key (sort). Sort keys start with "sync#" or "alert#"
// followed by the RFC 3339 timestamp so items of each kind are stored in time order.
type Recorder struct {
	// client is the DynamoDB API client.
	client DynamoDBAPI

	// tableName is the name of the DynamoDB table.
	tableName string
}

// NewRecorder creates a new DynamoDB-backed recorder.
func NewRecorder(client DynamoDBAPI, tableName string) (*Recorder, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}

	return &Recorder{
		client:    client,
		tableName: tableName,
	}, nil
}

// RecordSync stores one sync history entry. It implements monitor.HistoryRecorder.
func (r *Recorder) RecordSync(ctx context.Context, entry monitor.HistoryEntry) error {
	if entry.IntegrationID == "" {
		return errors.New("integration ID is required")
	}
	if entry.ID == "" {
		return errors.New("entry ID is required")
	}

	item := map[string]types.AttributeValue{
		"integration_id": &types.AttributeValueMemberS{Value: entry.IntegrationID},
		"sort_key":       &types.AttributeValueMemberS{Value: sortKey(syncKeyPrefix, entry.Timestamp, entry.ID)},
		"entry_id":       &types.AttributeValueMemberS{Value: entry.ID},
		"duration_ms":    &types.AttributeValueMemberN{Value: strconv.FormatInt(entry.Duration.Milliseconds(), 10)},
		"success":        &types.AttributeValueMemberBOOL{Value: entry.Success},
		"timestamp":      &types.AttributeValueMemberS{Value: entry.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
	if entry.Error != "" {
		item["error"] = &types.AttributeValueMemberS{Value: entry.Error}
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting sync entry to DynamoDB: %w", err)
	}

	return nil
}

// RecordAlert stores one alert. It implements alert.Recorder.
func (r *Recorder) RecordAlert(ctx context.Context, a alert.Alert) error {
	if a.IntegrationID == "" {
		return errors.New("integration ID is required")
	}
	if a.ID == "" {
		return errors.New("alert ID is required")
	}

	item := map[string]types.AttributeValue{
		"integration_id": &types.AttributeValueMemberS{Value: a.IntegrationID},
		"sort_key":       &types.AttributeValueMemberS{Value: sortKey(alertKeyPrefix, a.Timestamp, a.ID)},
		"alert_id":       &types.AttributeValueMemberS{Value: a.ID},
		"alert_type":     &types.AttributeValueMemberS{Value: string(a.Type)},
		"message":        &types.AttributeValueMemberS{Value: a.Message},
		"severity":       &types.AttributeValueMemberS{Value: string(a.Severity)},
		"timestamp":      &types.AttributeValueMemberS{Value: a.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
	if len(a.Metadata) > 0 {
		metadata, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("encoding alert metadata: %w", err)
		}
		item["metadata"] = &types.AttributeValueMemberS{Value: string(metadata)}
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting alert to DynamoDB: %w", err)
	}

	return nil
}

// SyncHistory returns up to limit of the integration's stored sync entries, newest first.
// A limit of zero or less returns every entry in the first page of results.
func (r *Recorder) SyncHistory(ctx context.Context, integrationID string, limit int) ([]monitor.HistoryEntry, error) {
	if integrationID == "" {
		return nil, errors.New("integration ID is required")
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("integration_id = :iid AND begins_with(sort_key, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":iid":    &types.AttributeValueMemberS{Value: integrationID},
			":prefix": &types.AttributeValueMemberS{Value: syncKeyPrefix},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(min(limit, 1<<20)))
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	entries := make([]monitor.HistoryEntry, 0, len(output.Items))
	for _, item := range output.Items {
		entry, err := parseHistoryEntry(item)
		if err != nil {
			return nil, fmt.Errorf("parsing item: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func parseHistoryEntry(item map[string]types.AttributeValue) (monitor.HistoryEntry, error) {
	entry := monitor.HistoryEntry{}

	if v, ok := item["integration_id"].(*types.AttributeValueMemberS); ok {
		entry.IntegrationID = v.Value
	}
	if v, ok := item["entry_id"].(*types.AttributeValueMemberS); ok {
		entry.ID = v.Value
	}
	if v, ok := item["error"].(*types.AttributeValueMemberS); ok {
		entry.Error = v.Value
	}
	if v, ok := item["success"].(*types.AttributeValueMemberBOOL); ok {
		entry.Success = v.Value
	}
	if v, ok := item["duration_ms"].(*types.AttributeValueMemberN); ok {
		ms, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return entry, fmt.Errorf("parsing duration_ms: %w", err)
		}
		entry.Duration = time.Duration(ms) * time.Millisecond
	}
	if v, ok := item["timestamp"].(*types.AttributeValueMemberS); ok {
		t, err := time.Parse(time.RFC3339Nano, v.Value)
		if err != nil {
			return entry, fmt.Errorf("parsing timestamp: %w", err)
		}
		entry.Timestamp = t
	}

	return entry, nil
}

func sortKey(prefix string, t time.Time, id string) string {
	return prefix + t.UTC().Format(time.RFC3339Nano) + "#" + id
}
