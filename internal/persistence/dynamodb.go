package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// collectionItem is the DynamoDB row for one collection. Records holds the
// JSON array document; items are capped at 400KB which bounds collection size.
type collectionItem struct {
	Collection  string `dynamodbav:"collection"`
	Records     string `dynamodbav:"records"`
	RecordCount int    `dynamodbav:"recordCount"`
	UpdatedAt   string `dynamodbav:"updatedAt"`
}

// DynamoBridge stores one item per collection keyed by "collection".
type DynamoBridge struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamoBridge builds a bridge backed by the provided DynamoDB client.
func NewDynamoBridge(client dynamoAPI, tableName string) *DynamoBridge {
	if client == nil {
		panic("persistence: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("persistence: table name cannot be empty")
	}
	return &DynamoBridge{client: client, tableName: tableName, now: time.Now}
}

// Load reads the collection item; a missing item means absent.
func (b *DynamoBridge) Load(ctx context.Context, collection string) ([]json.RawMessage, bool, error) {
	if err := checkCollection(collection); err != nil {
		return nil, false, err
	}
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"collection": &types.AttributeValueMemberS{Value: collection},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("persistence: dynamodb get %s: %w", collection, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}

	var item collectionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, fmt.Errorf("persistence: dynamodb decode %s: %w", collection, err)
	}
	records, err := DecodeDocument([]byte(item.Records))
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

// Save replaces the collection item.
func (b *DynamoBridge) Save(ctx context.Context, collection string, records []json.RawMessage) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	data, err := EncodeDocument(records)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(collectionItem{
		Collection:  collection,
		Records:     string(data),
		RecordCount: len(records),
		UpdatedAt:   b.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("persistence: dynamodb encode %s: %w", collection, err)
	}

	if _, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("persistence: dynamodb put %s: %w", collection, err)
	}
	return nil
}

var _ Bridge = (*DynamoBridge)(nil)
