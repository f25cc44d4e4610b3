package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/skyvault/backend/internal/model"
)

const childIndexName = "GSI1"

// DynamoAPI is the subset of *dynamodb.Client methods used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements ItemStore on a single DynamoDB table.
// The table's native per-item atomicity covers both the record and its
// GSI projection, which is all the consistency this layout needs.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore returns an ItemStore backed by the given table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) key(ownerID, itemID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: model.ItemPK(ownerID)},
		"sk": &types.AttributeValueMemberS{Value: model.ItemSK(itemID)},
	}
}

func (s *DynamoStore) Get(ctx context.Context, ownerID, itemID string) (*model.Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(ownerID, itemID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get item %s: %v", ErrTransient, itemID, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item model.Item
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item %s: %w", itemID, err)
	}
	return &item, nil
}

func (s *DynamoStore) Create(ctx context.Context, item *model.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	item.SetKeys()

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", item.ItemID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrConflict, item.ItemID)
		}
		return fmt.Errorf("%w: put item %s: %v", ErrTransient, item.ItemID, err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, ownerID, itemID string, p Patch) (*model.Item, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalid)
	}
	if p.Name != nil && *p.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalid)
	}

	// Fetch first: the GSI sort key depends on the item's kind, which the
	// patch never carries.
	current, err := s.Get(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}

	now, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal timestamp: %w", err)
	}

	sets := []string{"updated_at = :updated_at"}
	var removes []string
	values := map[string]types.AttributeValue{":updated_at": now}
	names := map[string]string{}

	if p.Name != nil {
		sets = append(sets, "#name = :name", "gsi1sk = :gsi1sk")
		names["#name"] = "name"
		values[":name"] = &types.AttributeValueMemberS{Value: *p.Name}
		values[":gsi1sk"] = &types.AttributeValueMemberS{Value: model.ChildIndexSK(current.Kind, *p.Name)}
	}
	if p.ParentID != nil {
		sets = append(sets, "parent_id = :parent_id", "gsi1pk = :gsi1pk")
		values[":parent_id"] = &types.AttributeValueMemberS{Value: *p.ParentID}
		values[":gsi1pk"] = &types.AttributeValueMemberS{Value: model.ChildIndexPK(ownerID, *p.ParentID)}
	}
	if p.Starred != nil {
		sets = append(sets, "starred = :starred")
		values[":starred"] = &types.AttributeValueMemberBOOL{Value: *p.Starred}
	}
	if p.Deleted != nil {
		sets = append(sets, "deleted = :deleted")
		values[":deleted"] = &types.AttributeValueMemberBOOL{Value: *p.Deleted}
		if *p.Deleted {
			sets = append(sets, "deleted_at = :deleted_at")
			values[":deleted_at"] = now
		} else {
			removes = append(removes, "deleted_at")
		}
	}
	if p.IsSecret != nil {
		sets = append(sets, "is_secret = :is_secret")
		values[":is_secret"] = &types.AttributeValueMemberBOOL{Value: *p.IsSecret}
	}
	if p.AIMetadata != nil {
		meta, err := attributevalue.Marshal(p.AIMetadata)
		if err != nil {
			return nil, fmt.Errorf("marshal ai metadata: %w", err)
		}
		sets = append(sets, "ai_metadata = :ai_metadata")
		values[":ai_metadata"] = meta
	}

	expr := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(ownerID, itemID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(sk)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: update item %s: %v", ErrTransient, itemID, err)
	}

	var updated model.Item
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal updated item %s: %w", itemID, err)
	}
	return &updated, nil
}

func (s *DynamoStore) Delete(ctx context.Context, ownerID, itemID string) (bool, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          s.key(ownerID, itemID),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("%w: delete item %s: %v", ErrTransient, itemID, err)
	}
	return len(out.Attributes) > 0, nil
}

func (s *DynamoStore) ListChildren(ctx context.Context, ownerID, parentID string) ([]model.Item, error) {
	var items []model.Item
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			IndexName:              aws.String(childIndexName),
			KeyConditionExpression: aws.String("gsi1pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: model.ChildIndexPK(ownerID, parentID)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: query children of %s: %v", ErrTransient, parentID, err)
		}

		var page []model.Item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal children of %s: %w", parentID, err)
		}
		items = append(items, page...)

		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) ListAll(ctx context.Context, ownerID string) ([]model.Item, error) {
	var items []model.Item
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: model.ItemPK(ownerID)},
				":prefix": &types.AttributeValueMemberS{Value: "ITEM#"},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: query items for owner: %v", ErrTransient, err)
		}

		var page []model.Item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal owner items: %w", err)
		}
		items = append(items, page...)

		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
