package dynamo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

// mockTable is a small in-memory stand-in for a single DynamoDB table keyed by alert_key.
type mockTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	puts  int
}

func newMockTable() *mockTable {
	return &mockTable{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m["alert_key"].(*types.AttributeValueMemberS).Value
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *mockTable) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	k := keyOf(in.Item)
	if in.ConditionExpression != nil && *in.ConditionExpression == "attribute_not_exists(alert_key)" {
		if _, ok := m.items[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockTable) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[keyOf(in.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockTable) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(in.Key)
	item, ok := m.items[k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	item["status"] = in.ExpressionAttributeValues[":status"]
	item["updated_at"] = in.ExpressionAttributeValues[":ua"]
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

// Scan understands the two filters the store issues: by id and by status.
func (m *mockTable) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []map[string]types.AttributeValue
	for _, item := range m.items {
		if v, ok := in.ExpressionAttributeValues[":id"]; ok && strAttr(item, "id") != v.(*types.AttributeValueMemberS).Value {
			continue
		}
		if v, ok := in.ExpressionAttributeValues[":status"]; ok && strAttr(item, "status") != v.(*types.AttributeValueMemberS).Value {
			continue
		}
		out = append(out, item)
	}
	return &dyn.ScanOutput{Items: out}, nil
}

func newAlert(patient, product string, day time.Time) *domain.RefillAlert {
	return &domain.RefillAlert{
		PatientID:       patient,
		ProductName:     product,
		Quantity:        30,
		DaysUntilRefill: 2,
		DueDate:         day.AddDate(0, 0, 2),
		AlertDay:        day.Format(domain.AlertDayLayout),
	}
}

func TestAlerts_CreateIfAbsentIsIdempotent(t *testing.T) {
	table := newMockTable()
	store := NewAlerts(table, "refill_alerts")
	ctx := context.Background()
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	first, created, err := store.CreateIfAbsent(ctx, newAlert("P1", "Metformin", day))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	if first.Status != domain.AlertStatusPending {
		t.Fatalf("expected pending status, got %s", first.Status)
	}

	second, created, err := store.CreateIfAbsent(ctx, newAlert("P1", " metformin ", day))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected existing alert to be returned")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same ID, got %s vs %s", second.ID, first.ID)
	}
	if len(table.items) != 1 {
		t.Fatalf("expected a single item, got %d", len(table.items))
	}

	// next day is a new key
	if _, created, _ := store.CreateIfAbsent(ctx, newAlert("P1", "Metformin", day.AddDate(0, 0, 1))); !created {
		t.Fatalf("expected a new alert for the next day")
	}
}

func TestAlerts_UpdateStatusAndList(t *testing.T) {
	table := newMockTable()
	store := NewAlerts(table, "refill_alerts")
	ctx := context.Background()
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	a, _, err := store.CreateIfAbsent(ctx, newAlert("P1", "Metformin", day))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.CreateIfAbsent(ctx, newAlert("P2", "Amlodipine", day)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.UpdateStatus(ctx, a.ID, domain.AlertStatusAcknowledged)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != domain.AlertStatusAcknowledged {
		t.Fatalf("expected acknowledged, got %s", got.Status)
	}

	pending, err := store.List(ctx, domain.AlertStatusPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].PatientID != "P2" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}
	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(all))
	}

	if _, err := store.UpdateStatus(ctx, "missing", domain.AlertStatusAcknowledged); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAlerts_PutErrorIsReturned(t *testing.T) {
	store := NewAlerts(failingPut{newMockTable()}, "refill_alerts")
	_, created, err := store.CreateIfAbsent(context.Background(), newAlert("P1", "Metformin", time.Now()))
	if err == nil || created {
		t.Fatalf("expected error, got created=%v err=%v", created, err)
	}
}

type failingPut struct{ *mockTable }

func (failingPut) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	return nil, errors.New("provisioned throughput exceeded")
}
