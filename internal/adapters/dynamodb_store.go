package adapters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/state"
)

// DynamoDB attribute names. The table's partition key is pk.
const (
	attrKey       = "pk"
	attrIdentity  = "identity"
	attrRecords   = "records"
	attrCount     = "record_count"
	attrUpdatedAt = "updated_at"
	attrSchema    = "schema_version"
)

// DynamoDBStore keeps each registry partition as one item whose key is
// models.RegistryKey(identity) and whose records attribute is the JSON list.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	timeout   time.Duration
	locks     *state.KeyedLocks
	logger    *events.Logger
}

var _ state.Store = (*DynamoDBStore)(nil)

// NewDynamoDBStore creates a registry store over client.
func NewDynamoDBStore(client DynamoDBAPI, tableName string, logger *events.Logger) (*DynamoDBStore, error) {
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb table name required")
	}

	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		timeout:   10 * time.Second,
		locks:     state.NewKeyedLocks(),
		logger:    logger.WithField("component", "dynamodb_store"),
	}, nil
}

// NewDynamoDBStoreFromConfig builds the DynamoDB client from the default AWS
// chain.
func NewDynamoDBStoreFromConfig(ctx context.Context, tableName, region string, logger *events.Logger) (*DynamoDBStore, error) {
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewDynamoDBStore(dynamodb.NewFromConfig(cfg), tableName, logger)
}

func (s *DynamoDBStore) key(identity string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKey: &types.AttributeValueMemberS{Value: models.RegistryKey(identity)},
	}
}

// Load retrieves the records for an identity.
func (s *DynamoDBStore) Load(identity string) ([]models.FileRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(identity),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get: %w", err)
	}

	if result.Item == nil {
		return nil, state.ErrStateNotFound
	}

	recordsAttr, ok := result.Item[attrRecords].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("%w: invalid records attribute type", state.ErrStateCorrupt)
	}

	records, err := state.DecodeRecords([]byte(recordsAttr.Value))
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"identity": identity,
		"records":  len(records),
	}).Debug("Loaded registry from DynamoDB")

	return records, nil
}

// Save replaces the records for an identity.
func (s *DynamoDBStore) Save(identity string, records []models.FileRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	data, err := state.EncodeRecords(records)
	if err != nil {
		return err
	}

	item := s.key(identity)
	item[attrIdentity] = &types.AttributeValueMemberS{Value: identity}
	item[attrRecords] = &types.AttributeValueMemberS{Value: string(data)}
	item[attrCount] = &types.AttributeValueMemberN{Value: strconv.Itoa(len(records))}
	item[attrUpdatedAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)}
	item[attrSchema] = &types.AttributeValueMemberN{Value: strconv.Itoa(state.CurrentSchemaVersion)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"identity": identity,
		"records":  len(records),
	}).Debug("Saved registry to DynamoDB")

	return nil
}

// Reset removes the partition item.
func (s *DynamoDBStore) Reset(identity string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(identity),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete: %w", err)
	}

	s.logger.WithField("identity", identity).Info("Reset registry in DynamoDB")
	return nil
}

// List scans the table for partition keys.
func (s *DynamoDBStore) List() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*s.timeout)
	defer cancel()

	var identities []string

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            aws.String(s.tableName),
		ProjectionExpression: aws.String("#k"),
		ExpressionAttributeNames: map[string]string{
			"#k": attrKey,
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan: %w", err)
		}

		for _, item := range page.Items {
			keyAttr, ok := item[attrKey].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if identity, ok := models.IdentityFromRegistryKey(keyAttr.Value); ok {
				identities = append(identities, identity)
			}
		}
	}

	return identities, nil
}

// Lock serializes writers within this process. Cross-process writers on one
// identity are not coordinated.
func (s *DynamoDBStore) Lock(identity string) (state.UnlockFunc, error) {
	return s.locks.Lock(identity)
}

// Migrate copies every partition into target.
func (s *DynamoDBStore) Migrate(target state.Store) error {
	_, err := state.Migrate(s, target)
	return err
}

// Close releases resources.
func (s *DynamoDBStore) Close() error {
	return nil
}
