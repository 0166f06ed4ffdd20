package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"nftstats/internal/domain"
)

// Store implements domain.Store on one DynamoDB table keyed by (pk, sk).
type Store struct {
	ddb   *dynamodb.Client
	table string
}

// NewStore creates a Store backed by the given Client.
func NewStore(c *Client) *Store {
	return &Store{ddb: c.DDB(), table: c.Table()}
}

func marshalKey(key domain.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		domain.AttrPK: &types.AttributeValueMemberS{Value: key.PK},
		domain.AttrSK: &types.AttributeValueMemberS{Value: key.SK},
	}
}

// GetItem returns the item at key, or domain.ErrNotFound.
func (s *Store) GetItem(ctx context.Context, key domain.Key) (domain.Item, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       marshalKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: get item %s/%s: %w", key.PK, key.SK, err)
	}
	if len(out.Item) == 0 {
		return nil, domain.ErrNotFound
	}

	var item domain.Item
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamo: decode item %s/%s: %w", key.PK, key.SK, err)
	}
	return item, nil
}

// Query returns the items of one partition ordered by sort key, following
// pagination until the partition (or the requested limit) is exhausted.
func (s *Store) Query(ctx context.Context, pk string, opts domain.QueryOpts) ([]domain.Item, error) {
	keyCond := "#pk = :pk"
	names := map[string]string{"#pk": domain.AttrPK}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if opts.SKPrefix != "" {
		keyCond += " AND begins_with(#sk, :skp)"
		names["#sk"] = domain.AttrSK
		values[":skp"] = &types.AttributeValueMemberS{Value: opts.SKPrefix}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(!opts.Descending),
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(int32(opts.Limit))
	}

	var items []domain.Item
	for {
		out, err := s.ddb.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamo: query %s: %w", pk, err)
		}

		for _, raw := range out.Items {
			var item domain.Item
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("dynamo: decode query item in %s: %w", pk, err)
			}
			items = append(items, item)
		}

		if opts.Limit > 0 && len(items) >= opts.Limit {
			return items[:opts.Limit], nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// PutItem stores an item, overwriting any existing item with the same key.
func (s *Store) PutItem(ctx context.Context, item domain.Item) error {
	av, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return fmt.Errorf("dynamo: encode item: %w", err)
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		key := item.Key()
		return fmt.Errorf("dynamo: put item %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

// BatchPutItems writes items in chunks of at most domain.BatchPutLimit.
// Unprocessed items within a chunk are retried once; a failing chunk does not
// roll back chunks already written.
func (s *Store) BatchPutItems(ctx context.Context, items []domain.Item) error {
	for start := 0; start < len(items); start += domain.BatchPutLimit {
		end := min(start+domain.BatchPutLimit, len(items))
		if err := s.putChunk(ctx, items[start:end]); err != nil {
			return fmt.Errorf("dynamo: batch put chunk at %d: %w", start, err)
		}
	}
	return nil
}

func (s *Store) putChunk(ctx context.Context, items []domain.Item) error {
	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		av, err := attributevalue.MarshalMap(map[string]any(item))
		if err != nil {
			return fmt.Errorf("encode item: %w", err)
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}

	pending := map[string][]types.WriteRequest{s.table: requests}
	for attempt := 0; attempt < 2; attempt++ {
		out, err := s.ddb.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("%d unprocessed items after retry", len(pending[s.table]))
}

// AtomicAdd increments numeric fields on one item via an ADD update
// expression, creating the item and fields as needed.
func (s *Store) AtomicAdd(ctx context.Context, key domain.Key, deltas map[string]float64) error {
	if len(deltas) == 0 {
		return nil
	}

	expr, names, values, err := buildUpdateExpression(deltas, nil)
	if err != nil {
		return fmt.Errorf("dynamo: atomic add %s/%s: %w", key.PK, key.SK, err)
	}

	_, err = s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       marshalKey(key),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("dynamo: atomic add %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

// TransactUpdate applies all updates in one TransactWriteItems call.
// Condition failures cancel the whole transaction and surface as
// domain.ErrConditionFailed.
func (s *Store) TransactUpdate(ctx context.Context, updates []domain.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if len(updates) > domain.TransactItemLimit {
		return fmt.Errorf("dynamo: transact update: %d items exceeds limit %d", len(updates), domain.TransactItemLimit)
	}

	writeItems := make([]types.TransactWriteItem, 0, len(updates))
	for _, u := range updates {
		expr, names, values, err := buildUpdateExpression(u.Add, u.Set)
		if err != nil {
			return fmt.Errorf("dynamo: transact update %s/%s: %w", u.Key.PK, u.Key.SK, err)
		}

		upd := &types.Update{
			TableName:                 aws.String(s.table),
			Key:                       marshalKey(u.Key),
			UpdateExpression:          aws.String(expr),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}

		switch {
		case u.NotExists:
			upd.ConditionExpression = aws.String("attribute_not_exists(#cpk)")
			upd.ExpressionAttributeNames["#cpk"] = domain.AttrPK
		case u.NotTrue != "":
			upd.ConditionExpression = aws.String("attribute_not_exists(#flag) OR #flag = :flagfalse")
			upd.ExpressionAttributeNames["#flag"] = u.NotTrue
			upd.ExpressionAttributeValues[":flagfalse"] = &types.AttributeValueMemberBOOL{Value: false}
		}

		writeItems = append(writeItems, types.TransactWriteItem{Update: upd})
	}

	_, err := s.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writeItems,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return domain.ErrConditionFailed
				}
			}
		}
		return fmt.Errorf("dynamo: transact update (%d items): %w", len(updates), err)
	}
	return nil
}

// buildUpdateExpression renders ADD and SET clauses with placeholder names so
// counter fields like "chain_ethereum_volume" never collide with reserved
// words. Fields are sorted for deterministic expressions.
func buildUpdateExpression(add map[string]float64, set map[string]any) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)

	var expr string
	idx := 0

	addFields := sortedKeys(add)
	if len(addFields) > 0 {
		expr = "ADD "
		for i, f := range addFields {
			n := fmt.Sprintf("#a%d", idx)
			v := fmt.Sprintf(":a%d", idx)
			idx++
			if i > 0 {
				expr += ", "
			}
			expr += n + " " + v
			names[n] = f
			av, err := attributevalue.Marshal(add[f])
			if err != nil {
				return "", nil, nil, fmt.Errorf("encode delta %s: %w", f, err)
			}
			values[v] = av
		}
	}

	setFields := sortedKeys(set)
	if len(setFields) > 0 {
		if expr != "" {
			expr += " "
		}
		expr += "SET "
		for i, f := range setFields {
			n := fmt.Sprintf("#s%d", idx)
			v := fmt.Sprintf(":s%d", idx)
			idx++
			if i > 0 {
				expr += ", "
			}
			expr += n + " = " + v
			names[n] = f
			av, err := attributevalue.Marshal(set[f])
			if err != nil {
				return "", nil, nil, fmt.Errorf("encode value %s: %w", f, err)
			}
			values[v] = av
		}
	}

	if expr == "" {
		return "", nil, nil, fmt.Errorf("empty update")
	}
	return expr, names, values, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
