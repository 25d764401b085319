package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-enroll-api/internal/domain"
	"github.com/go-enroll-api/internal/pkg/expiring"
)

// ExpiringStore keeps expiring.Entry values in a table keyed by "key".
// expires_at is the table TTL attribute and trails the real expiry by the retention grace,
// so an expired entry is still readable (and reported as expired) until the sweeper or
// DynamoDB's own TTL reaper removes it. expires_at_ms carries the exact expiry.
type ExpiringStore[V any] struct {
	client    expiringAPI
	tableName string
	retention time.Duration
}

// expiringAPI is the slice of the DynamoDB client the store uses.
type expiringAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

func NewExpiringStore[V any](client expiringAPI, tableName string, retention time.Duration) *ExpiringStore[V] {
	return &ExpiringStore[V]{client: client, tableName: tableName, retention: retention}
}

var _ expiring.Store[domain.VerificationToken] = (*ExpiringStore[domain.VerificationToken])(nil)

type expiringItem[V any] struct {
	Key           string `dynamodbav:"key"`
	Value         V      `dynamodbav:"value"`
	ExpiresAt     int64  `dynamodbav:"expires_at"`
	ExpiresAtMsec int64  `dynamodbav:"expires_at_ms"`
}

func toItem[V any](key string, e expiring.Entry[V], retention time.Duration) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(expiringItem[V]{
		Key:           key,
		Value:         e.Value,
		ExpiresAt:     e.ExpiresAt.Add(retention).Unix(),
		ExpiresAtMsec: e.ExpiresAt.UnixMilli(),
	})
}

func fromItem[V any](item map[string]types.AttributeValue) (expiring.Entry[V], error) {
	var it expiringItem[V]
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return expiring.Entry[V]{}, err
	}
	return expiring.Entry[V]{Value: it.Value, ExpiresAt: time.UnixMilli(it.ExpiresAtMsec).UTC()}, nil
}

func (s *ExpiringStore[V]) Set(ctx context.Context, key string, e expiring.Entry[V]) error {
	item, err := toItem(key, e, s.retention)
	if err != nil {
		return fmt.Errorf("marshal %s entry: %w", s.tableName, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return persistErr("put "+s.tableName, err)
	}
	return nil
}

func (s *ExpiringStore[V]) Get(ctx context.Context, key string) (expiring.Entry[V], bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            strKey(fieldKey, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return expiring.Entry[V]{}, false, persistErr("get "+s.tableName, err)
	}
	if out.Item == nil {
		return expiring.Entry[V]{}, false, nil
	}
	e, err := fromItem[V](out.Item)
	if err != nil {
		return expiring.Entry[V]{}, false, fmt.Errorf("unmarshal %s entry: %w", s.tableName, err)
	}
	return e, true, nil
}

func (s *ExpiringStore[V]) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       strKey(fieldKey, key),
	})
	if err != nil {
		return persistErr("delete "+s.tableName, err)
	}
	return nil
}

// swapCondition holds while the stored item still carries old's value and exact expiry.
const swapCondition = "#v = :v AND #m = :m"

func (s *ExpiringStore[V]) CompareAndSwap(ctx context.Context, key string, old expiring.Entry[V], next *expiring.Entry[V]) (bool, error) {
	oldItem, err := toItem(key, old, s.retention)
	if err != nil {
		return false, fmt.Errorf("marshal %s entry: %w", s.tableName, err)
	}
	names := map[string]string{"#v": fieldValue, "#m": fieldExpiresAtMillis}
	values := map[string]types.AttributeValue{":v": oldItem[fieldValue], ":m": oldItem[fieldExpiresAtMillis]}

	if next == nil {
		_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       strKey(fieldKey, key),
			ConditionExpression:       aws.String(swapCondition),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
	} else {
		item, merr := toItem(key, *next, s.retention)
		if merr != nil {
			return false, fmt.Errorf("marshal %s entry: %w", s.tableName, merr)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(s.tableName),
			Item:                      item,
			ConditionExpression:       aws.String(swapCondition),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
	}
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, persistErr("swap "+s.tableName, err)
	}
	return true, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// Sweep scans for entries whose exact expiry is before now and deletes them.
// DynamoDB TTL is best-effort and may lag by hours, so the sweeper does not rely on it.
// Each delete re-checks the expiry, so an entry rewritten after the scan page was read
// is left alone.
func (s *ExpiringStore[V]) Sweep(ctx context.Context, now time.Time) (int, error) {
	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                aws.String(s.tableName),
		FilterExpression:         aws.String("#e < :now"),
		ProjectionExpression:     aws.String("#k"),
		ExpressionAttributeNames: map[string]string{"#e": fieldExpiresAtMillis, "#k": fieldKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprint(now.UnixMilli())},
		},
	})
	removed := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return removed, persistErr("scan "+s.tableName, err)
		}
		for _, item := range page.Items {
			k, ok := item[fieldKey].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                aws.String(s.tableName),
				Key:                      strKey(fieldKey, k.Value),
				ConditionExpression:      aws.String("#e < :now"),
				ExpressionAttributeNames: map[string]string{"#e": fieldExpiresAtMillis},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":now": &types.AttributeValueMemberN{Value: fmt.Sprint(now.UnixMilli())},
				},
			})
			if isConditionFailed(err) {
				continue
			}
			if err != nil {
				slog.Warn("failed to sweep expired entry", "table", s.tableName, "key", k.Value, "err", err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}
