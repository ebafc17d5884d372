package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RoundPrice приводит цену к копейкам, как NUMERIC(12,2) в базе
func RoundPrice(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Medicine позиция каталога аптеки
type Medicine struct {
	ID                   int64    `json:"id"`
	ProductCode          string   `json:"product_code"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	Category             string   `json:"category"`
	Indications          []string `json:"indications"`
	PackageSize          string   `json:"package_size"`
	Price                float64  `json:"price"`
	Stock                int64    `json:"stock"`
	RequiresPrescription bool     `json:"prescription_required"`
}

// InStock reports whether at least qty units are available.
func (m Medicine) InStock(qty int64) bool { return m.Stock >= qty && qty > 0 }

// Patient карточка пациента
type Patient struct {
	ID                  string   `json:"patient_id"`
	Name                string   `json:"name"`
	Age                 int      `json:"age"`
	Gender              string   `json:"gender"`
	Email               string   `json:"email"`
	Phone               string   `json:"phone"`
	Address             string   `json:"address"`
	Language            Language `json:"language"`
	PrescriptionsOnFile []string `json:"prescriptions_on_file"`
}

// HasPrescriptionFor reports whether a prescription for the named product is on file.
func (p Patient) HasPrescriptionFor(productName string) bool {
	for _, name := range p.PrescriptionsOnFile {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(productName)) {
			return true
		}
	}
	return false
}

// OrderStatus тип статуса заказа
type OrderStatus string

const (
	OrderStatusPlaced     OrderStatus = "placed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
)

var orderStatusFlow = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// Next returns the status that follows s, or false when s is terminal or unknown.
func (s OrderStatus) Next() (OrderStatus, bool) {
	for i, st := range orderStatusFlow {
		if st == s && i+1 < len(orderStatusFlow) {
			return orderStatusFlow[i+1], true
		}
	}
	return "", false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, st := range orderStatusFlow {
		if st == s {
			return true
		}
	}
	return false
}

// Order сущность заказа
type Order struct {
	ID          int64       `json:"id"`
	PatientID   string      `json:"patient_id"`
	MedicineID  int64       `json:"medicine_id"`
	ProductName string      `json:"product_name"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   float64     `json:"unit_price"`
	TotalPrice  float64     `json:"total_price"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// AlertStatus статус напоминания о повторной покупке
type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
)

func (s AlertStatus) Valid() bool {
	return s == AlertStatusPending || s == AlertStatusAcknowledged
}

// RefillAlert напоминание о том, что пациенту пора пополнить запас лекарства
type RefillAlert struct {
	ID              string      `json:"id"`
	PatientID       string      `json:"patient_id"`
	ProductName     string      `json:"product_name"`
	Quantity        int64       `json:"quantity"`
	DaysUntilRefill int         `json:"days_until_refill"`
	DueDate         time.Time   `json:"due_date"`
	AlertDay        string      `json:"alert_day"`
	Status          AlertStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// AlertDayLayout is the calendar-day format of alert and due days.
const AlertDayLayout = "2006-01-02"

// AlertKey identifies the single alert allowed per patient, product and due
// day. Later scans of the same projected refill map to the same key.
func AlertKey(patientID, productName, dueDay string) string {
	return patientID + "#" + strings.ToLower(strings.TrimSpace(productName)) + "#" + dueDay
}

// Key returns the de-duplication key of the alert.
func (a RefillAlert) Key() string {
	return AlertKey(a.PatientID, a.ProductName, a.DueDate.UTC().Format(AlertDayLayout))
}

// NotificationStatus статус отправки уведомления
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification запись об одной попытке отправки уведомления
type Notification struct {
	ID            string             `json:"id"`
	Channel       string             `json:"channel"`
	Event         string             `json:"event"`
	Recipient     string             `json:"recipient"`
	Subject       string             `json:"subject"`
	Body          string             `json:"body"`
	Status        NotificationStatus `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
	OrderID       int64              `json:"order_id,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
}
