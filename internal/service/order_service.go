package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/domain"
	"pharmabot/internal/metrics"
	"pharmabot/internal/notify"
	"pharmabot/internal/repository"
	"pharmabot/internal/safety"
)

// Gatekeeper approves or blocks an order request.
type Gatekeeper interface {
	Check(ctx context.Context, req safety.Request) (*safety.Approval, error)
}

// Notifier delivers notifications without reporting failures to the caller.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// PlaceOrderInput is an order request. Price is never taken from the caller.
type PlaceOrderInput struct {
	PatientID   string
	ProductName string
	Quantity    int64
	// Channel tags metrics with where the order came from (api, chat, voice).
	Channel string
}

// OrderService реализует исполнение заказа: проверка, списание остатка, уведомление
type OrderService struct {
	orders    repository.OrderRepository
	medicines repository.MedicineRepository
	tx        repository.TxManager
	gate      Gatekeeper
	notifier  Notifier
	metrics   metrics.Recorder
	lowStock  int64
	log       logrus.FieldLogger
}

func NewOrderService(
	orders repository.OrderRepository,
	medicines repository.MedicineRepository,
	tx repository.TxManager,
	gate Gatekeeper,
	notifier Notifier,
	rec metrics.Recorder,
	lowStockThreshold int64,
	log logrus.FieldLogger,
) *OrderService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &OrderService{
		orders:    orders,
		medicines: medicines,
		tx:        tx,
		gate:      gate,
		notifier:  notifier,
		metrics:   rec,
		lowStock:  lowStockThreshold,
		log:       log,
	}
}

// Check runs the safety gate without placing anything.
func (s *OrderService) Check(ctx context.Context, in PlaceOrderInput) (*safety.Approval, error) {
	approval, err := s.gate.Check(ctx, safety.Request{PatientID: in.PatientID, ProductName: in.ProductName, Quantity: in.Quantity})
	if serr, ok := domain.AsSafetyError(err); ok {
		s.metrics.Count(ctx, metrics.SafetyBlocks, 1, map[string]string{"code": string(serr.Code)})
	}
	return approval, err
}

// PlaceOrder checks the request, then decrements stock and inserts the order
// in one transaction. Notifications go out after commit and cannot undo it.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	approval, err := s.Check(ctx, in)
	if err != nil {
		return nil, err
	}

	var (
		created   domain.Order
		remaining domain.Medicine
	)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		med, err := s.medicines.DecrementStock(ctx, approval.Medicine.ID, in.Quantity)
		if errors.Is(err, repository.ErrInsufficientStock) {
			// lost a race with another order after the gate passed
			current, getErr := s.medicines.GetByID(ctx, approval.Medicine.ID)
			available := int64(0)
			if getErr == nil {
				available = current.Stock
			}
			return &domain.SafetyError{
				Code:      domain.SafetyOutOfStock,
				Product:   approval.Medicine.Name,
				Available: available,
				Reason:    fmt.Sprintf("only %d units of %s are in stock, %d requested", available, approval.Medicine.Name, in.Quantity),
			}
		}
		if err != nil {
			return err
		}

		unit := decimal.NewFromFloat(med.Price).Round(2)
		total := unit.Mul(decimal.NewFromInt(in.Quantity)).Round(2)
		o := domain.Order{
			PatientID:   approval.Patient.ID,
			MedicineID:  med.ID,
			ProductName: med.Name,
			Quantity:    in.Quantity,
			UnitPrice:   unit.InexactFloat64(),
			TotalPrice:  total.InexactFloat64(),
			Status:      domain.OrderStatusPlaced,
		}
		if err := s.orders.Create(ctx, &o); err != nil {
			return err
		}
		created, remaining = o, *med
		return nil
	})
	if err != nil {
		if serr, ok := domain.AsSafetyError(err); ok {
			s.metrics.Count(ctx, metrics.SafetyBlocks, 1, map[string]string{"code": string(serr.Code)})
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":   created.ID,
		"patient_id": created.PatientID,
		"product":    created.ProductName,
		"quantity":   created.Quantity,
		"total":      strconv.FormatFloat(created.TotalPrice, 'f', 2, 64),
	}).Info("order placed")

	dims := map[string]string{"channel": channelOrDefault(in.Channel)}
	s.metrics.Count(ctx, metrics.OrdersPlaced, 1, dims)
	s.metrics.Count(ctx, metrics.OrderRevenue, created.TotalPrice, dims)

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notify.OrderPlaced(created, approval.Patient))
		if s.lowStock > 0 && remaining.Stock <= s.lowStock {
			s.notifier.Dispatch(ctx, notify.LowStock(remaining, s.lowStock))
		}
	}
	return &created, nil
}

func channelOrDefault(ch string) string {
	if ch == "" {
		return "api"
	}
	return ch
}

// GetOrder возвращает заказ по id
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, domain.Validationf("id must be positive")
	}
	return s.orders.GetByID(ctx, id)
}

// ListOrders returns orders newest first, optionally for one patient.
func (s *OrderService) ListOrders(ctx context.Context, patientID string) ([]domain.Order, error) {
	return s.orders.List(ctx, repository.OrderFilter{PatientID: patientID})
}

// AdvanceStatus moves the order exactly one step forward:
// placed → processing → shipped → delivered.
func (s *OrderService) AdvanceStatus(ctx context.Context, id int64, next domain.OrderStatus) (*domain.Order, error) {
	if id <= 0 {
		return nil, domain.Validationf("id must be positive")
	}
	if !next.Valid() {
		return nil, domain.Validationf("unknown status %q", next)
	}
	var updated *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		expected, ok := o.Status.Next()
		if !ok || expected != next {
			return fmt.Errorf("%w: order %d is %s, cannot move to %s", domain.ErrInvalidState, o.ID, o.Status, next)
		}
		o.Status = next
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": id, "status": next}).Info("order status advanced")
	return updated, nil
}
