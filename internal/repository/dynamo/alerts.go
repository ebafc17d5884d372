// Package dynamo stores refill alerts in a DynamoDB table keyed by alert_key.
package dynamo

import (
	"context"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"pharmabot/internal/aws"
	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

// alertItem is the shape persisted in the refill alerts table.
type alertItem struct {
	AlertKey        string    `dynamodbav:"alert_key"` // PK
	ID              string    `dynamodbav:"id"`
	PatientID       string    `dynamodbav:"patient_id"`
	ProductName     string    `dynamodbav:"product_name"`
	Quantity        int64     `dynamodbav:"quantity"`
	DaysUntilRefill int       `dynamodbav:"days_until_refill"`
	DueDate         time.Time `dynamodbav:"due_date"`
	AlertDay        string    `dynamodbav:"alert_day"`
	Status          string    `dynamodbav:"status"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
	UpdatedAt       time.Time `dynamodbav:"updated_at"`
}

func toItem(a *domain.RefillAlert) alertItem {
	return alertItem{
		AlertKey:        a.Key(),
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProductName:     a.ProductName,
		Quantity:        a.Quantity,
		DaysUntilRefill: a.DaysUntilRefill,
		DueDate:         a.DueDate,
		AlertDay:        a.AlertDay,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func (it alertItem) toDomain() domain.RefillAlert {
	return domain.RefillAlert{
		ID:              it.ID,
		PatientID:       it.PatientID,
		ProductName:     it.ProductName,
		Quantity:        it.Quantity,
		DaysUntilRefill: it.DaysUntilRefill,
		DueDate:         it.DueDate,
		AlertDay:        it.AlertDay,
		Status:          domain.AlertStatus(it.Status),
		CreatedAt:       it.CreatedAt,
		UpdatedAt:       it.UpdatedAt,
	}
}

// Alerts implements repository.RefillAlertRepository on DynamoDB.
type Alerts struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewAlerts(client aws.DynamoDBAPI, tableName string) *Alerts {
	return &Alerts{
		client:    client,
		tableName: tableName,
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.RefillAlertRepository = (*Alerts)(nil)

func isConditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

// CreateIfAbsent relies on attribute_not_exists(alert_key), so two scanners
// racing on the same patient/product/day produce a single item.
func (s *Alerts) CreateIfAbsent(ctx context.Context, a *domain.RefillAlert) (*domain.RefillAlert, bool, error) {
	now := s.nowFunc()
	rec := *a
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = domain.AlertStatusPending
	}
	rec.CreatedAt, rec.UpdatedAt = now, now

	item, err := attributevalue.MarshalMap(toItem(&rec))
	if err != nil {
		return nil, false, errors.Wrap(err, "marshal alert")
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           sdkaws.String(s.tableName),
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(alert_key)"),
	})
	if err == nil {
		return &rec, true, nil
	}
	if !isConditionFailed(err) {
		return nil, false, errors.Wrap(err, "put alert")
	}

	existing, err := s.getByKey(ctx, rec.Key())
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Alerts) getByKey(ctx context.Context, key string) (*domain.RefillAlert, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: sdkaws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"alert_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "get alert")
	}
	if len(out.Item) == 0 {
		return nil, repository.ErrNotFound
	}
	var it alertItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, errors.Wrap(err, "unmarshal alert")
	}
	a := it.toDomain()
	return &a, nil
}

func (s *Alerts) scan(ctx context.Context, filter string, values map[string]types.AttributeValue, names map[string]string) ([]alertItem, error) {
	var items []alertItem
	var startKey map[string]types.AttributeValue
	for {
		in := &dynamodb.ScanInput{
			TableName:         sdkaws.String(s.tableName),
			ExclusiveStartKey: startKey,
		}
		if filter != "" {
			in.FilterExpression = sdkaws.String(filter)
			in.ExpressionAttributeValues = values
			in.ExpressionAttributeNames = names
		}
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, errors.Wrap(err, "scan alerts")
		}
		var page []alertItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, errors.Wrap(err, "unmarshal alerts")
		}
		items = append(items, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *Alerts) GetByID(ctx context.Context, id string) (*domain.RefillAlert, error) {
	items, err := s.scan(ctx, "id = :id",
		map[string]types.AttributeValue{":id": &types.AttributeValueMemberS{Value: id}}, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, repository.ErrNotFound
	}
	a := items[0].toDomain()
	return &a, nil
}

func (s *Alerts) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) (*domain.RefillAlert, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc()
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: sdkaws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"alert_key": &types.AttributeValueMemberS{Value: current.Key()},
		},
		UpdateExpression:    sdkaws.String("SET #s = :status, updated_at = :ua"),
		ConditionExpression: sdkaws.String("attribute_exists(alert_key)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "update alert status")
	}
	current.Status = status
	current.UpdatedAt = now
	return current, nil
}

func (s *Alerts) List(ctx context.Context, status domain.AlertStatus) ([]domain.RefillAlert, error) {
	var (
		items []alertItem
		err   error
	)
	if status == "" {
		items, err = s.scan(ctx, "", nil, nil)
	} else {
		items, err = s.scan(ctx, "#s = :status",
			map[string]types.AttributeValue{":status": &types.AttributeValueMemberS{Value: string(status)}},
			map[string]string{"#s": "status"})
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.RefillAlert, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out, nil
}
