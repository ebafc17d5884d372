package repository

import (
	"context"
	"errors"
	"strings"

	"pharmabot/internal/domain"
)

// ErrNotFound возвращается, когда сущность не найдена
var ErrNotFound = domain.ErrNotFound

// ErrAlreadyExists возвращается при повторном создании сущности с тем же ключом
var ErrAlreadyExists = errors.New("already exists")

// ErrInsufficientStock возвращается при неудачном compare-and-decrement остатка
var ErrInsufficientStock = errors.New("insufficient stock")

// MedicineFilter параметры фильтрации каталога
type MedicineFilter struct {
	NameSubstring string
	InStockOnly   bool
}

// MedicineRepository интерфейс репозитория каталога
type MedicineRepository interface {
	Create(ctx context.Context, m *domain.Medicine) error
	GetByID(ctx context.Context, id int64) (*domain.Medicine, error)
	// GetByName looks a medicine up by case-insensitive exact name.
	GetByName(ctx context.Context, name string) (*domain.Medicine, error)
	List(ctx context.Context, f MedicineFilter) ([]domain.Medicine, error)
	// DecrementStock subtracts qty only if at least qty units are left and
	// returns the updated record. Otherwise it returns ErrInsufficientStock
	// and the stock is unchanged.
	DecrementStock(ctx context.Context, id int64, qty int64) (*domain.Medicine, error)
}

// PatientRepository интерфейс репозитория пациентов
type PatientRepository interface {
	Create(ctx context.Context, p *domain.Patient) error
	GetByID(ctx context.Context, id string) (*domain.Patient, error)
	List(ctx context.Context) ([]domain.Patient, error)
	AddPrescription(ctx context.Context, patientID, productName string) (*domain.Patient, error)
}

// OrderFilter параметры выборки заказов
type OrderFilter struct {
	PatientID string
}

// OrderRepository интерфейс репозитория заказов
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	// List returns orders newest first.
	List(ctx context.Context, f OrderFilter) ([]domain.Order, error)
}

// RefillAlertRepository интерфейс репозитория напоминаний
type RefillAlertRepository interface {
	// CreateIfAbsent stores a unless an alert with the same key exists.
	// It returns the stored alert and whether it was created by this call.
	CreateIfAbsent(ctx context.Context, a *domain.RefillAlert) (*domain.RefillAlert, bool, error)
	GetByID(ctx context.Context, id string) (*domain.RefillAlert, error)
	UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) (*domain.RefillAlert, error)
	// List returns alerts newest first, filtered by status when set.
	List(ctx context.Context, status domain.AlertStatus) ([]domain.RefillAlert, error)
}

// NotificationRepository журнал отправленных уведомлений
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	Update(ctx context.Context, n *domain.Notification) error
}

// TxManager абстракция транзакции. Для in-memory: глобальная блокировка записи.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
