package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pharmabot/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простой генератор ID
type MemoryStore struct {
	mu            sync.RWMutex
	nextMedID     int64
	nextOrderID   int64
	medicinesByID map[int64]domain.Medicine
	patientsByID  map[string]domain.Patient
	ordersByID    map[int64]domain.Order
	alertsByID    map[string]domain.RefillAlert
	alertKeys     map[string]string
	notifications map[string]domain.Notification
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextMedID:     1,
		nextOrderID:   1,
		medicinesByID: make(map[int64]domain.Medicine),
		patientsByID:  make(map[string]domain.Patient),
		ordersByID:    make(map[int64]domain.Order),
		alertsByID:    make(map[string]domain.RefillAlert),
		alertKeys:     make(map[string]string),
		notifications: make(map[string]domain.Notification),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

func cloneMedicine(md domain.Medicine) *domain.Medicine {
	cp := md
	cp.Indications = append([]string(nil), md.Indications...)
	return &cp
}

func clonePatient(p domain.Patient) *domain.Patient {
	cp := p
	cp.PrescriptionsOnFile = append([]string(nil), p.PrescriptionsOnFile...)
	return &cp
}

// Ensure interfaces
var _ MedicineRepository = (*MemoryStore)(nil)

// MedicineRepository implementation
func (m *MemoryStore) Create(ctx context.Context, md *domain.Medicine) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	md.ID = m.nextMedID
	m.nextMedID++
	m.medicinesByID[md.ID] = *cloneMedicine(*md)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Medicine, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	md, ok := m.medicinesByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMedicine(md), nil
}

func (m *MemoryStore) GetByName(ctx context.Context, name string) (*domain.Medicine, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	name = strings.TrimSpace(name)
	for _, md := range m.medicinesByID {
		if strings.EqualFold(md.Name, name) {
			return cloneMedicine(md), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) List(ctx context.Context, f MedicineFilter) ([]domain.Medicine, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Medicine, 0)
	for _, md := range m.medicinesByID {
		if !containsIgnoreCase(md.Name, f.NameSubstring) {
			continue
		}
		if f.InStockOnly && md.Stock <= 0 {
			continue
		}
		out = append(out, *cloneMedicine(md))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id int64, qty int64) (*domain.Medicine, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	md, ok := m.medicinesByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if qty <= 0 || md.Stock < qty {
		return nil, ErrInsufficientStock
	}
	md.Stock -= qty
	m.medicinesByID[id] = md
	return cloneMedicine(md), nil
}

// PatientRepository implementation on wrapper type
type MemoryPatients struct{ store *MemoryStore }

func NewMemoryPatients(store *MemoryStore) *MemoryPatients { return &MemoryPatients{store: store} }

var _ PatientRepository = (*MemoryPatients)(nil)

func (mp *MemoryPatients) Create(ctx context.Context, p *domain.Patient) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	if _, ok := mp.store.patientsByID[p.ID]; ok {
		return ErrAlreadyExists
	}
	mp.store.patientsByID[p.ID] = *clonePatient(*p)
	return nil
}

func (mp *MemoryPatients) GetByID(ctx context.Context, id string) (*domain.Patient, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	p, ok := mp.store.patientsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePatient(p), nil
}

func (mp *MemoryPatients) List(ctx context.Context) ([]domain.Patient, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	out := make([]domain.Patient, 0, len(mp.store.patientsByID))
	for _, p := range mp.store.patientsByID {
		out = append(out, *clonePatient(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (mp *MemoryPatients) AddPrescription(ctx context.Context, patientID, productName string) (*domain.Patient, error) {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	p, ok := mp.store.patientsByID[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	if !p.HasPrescriptionFor(productName) {
		p.PrescriptionsOnFile = append(append([]string(nil), p.PrescriptionsOnFile...), productName)
		mp.store.patientsByID[patientID] = p
	}
	return clonePatient(p), nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	if o.CreatedAt.IsZero() {
		o.CreatedAt = mo.store.now()
	}
	o.UpdatedAt = o.CreatedAt
	mo.store.ordersByID[o.ID] = *o
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	return &cp, nil
}

func (mo *MemoryOrders) Update(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if _, ok := mo.store.ordersByID[o.ID]; !ok {
		return ErrNotFound
	}
	o.UpdatedAt = mo.store.now()
	mo.store.ordersByID[o.ID] = *o
	return nil
}

func (mo *MemoryOrders) List(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if f.PatientID != "" && o.PatientID != f.PatientID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// RefillAlertRepository implementation on wrapper type
type MemoryAlerts struct{ store *MemoryStore }

func NewMemoryAlerts(store *MemoryStore) *MemoryAlerts { return &MemoryAlerts{store: store} }

var _ RefillAlertRepository = (*MemoryAlerts)(nil)

func (ma *MemoryAlerts) CreateIfAbsent(ctx context.Context, a *domain.RefillAlert) (*domain.RefillAlert, bool, error) {
	ma.store.wlock(ctx)
	defer ma.store.wunlock(ctx)
	if id, ok := ma.store.alertKeys[a.Key()]; ok {
		existing := ma.store.alertsByID[id]
		return &existing, false, nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.AlertStatusPending
	}
	now := ma.store.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	ma.store.alertsByID[a.ID] = *a
	ma.store.alertKeys[a.Key()] = a.ID
	cp := *a
	return &cp, true, nil
}

func (ma *MemoryAlerts) GetByID(ctx context.Context, id string) (*domain.RefillAlert, error) {
	ma.store.rlock(ctx)
	defer ma.store.runlock(ctx)
	a, ok := ma.store.alertsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (ma *MemoryAlerts) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) (*domain.RefillAlert, error) {
	ma.store.wlock(ctx)
	defer ma.store.wunlock(ctx)
	a, ok := ma.store.alertsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = ma.store.now()
	ma.store.alertsByID[id] = a
	return &a, nil
}

func (ma *MemoryAlerts) List(ctx context.Context, status domain.AlertStatus) ([]domain.RefillAlert, error) {
	ma.store.rlock(ctx)
	defer ma.store.runlock(ctx)
	out := make([]domain.RefillAlert, 0)
	for _, a := range ma.store.alertsByID {
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key() < out[j].Key()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// NotificationRepository implementation on wrapper type
type MemoryNotifications struct{ store *MemoryStore }

func NewMemoryNotifications(store *MemoryStore) *MemoryNotifications {
	return &MemoryNotifications{store: store}
}

var _ NotificationRepository = (*MemoryNotifications)(nil)

func (mn *MemoryNotifications) Create(ctx context.Context, n *domain.Notification) error {
	mn.store.wlock(ctx)
	defer mn.store.wunlock(ctx)
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	mn.store.notifications[n.ID] = *n
	return nil
}

func (mn *MemoryNotifications) Update(ctx context.Context, n *domain.Notification) error {
	mn.store.wlock(ctx)
	defer mn.store.wunlock(ctx)
	if _, ok := mn.store.notifications[n.ID]; !ok {
		return ErrNotFound
	}
	mn.store.notifications[n.ID] = *n
	return nil
}

// All returns a snapshot of the notification log.
func (mn *MemoryNotifications) All() []domain.Notification {
	mn.store.mu.RLock()
	defer mn.store.mu.RUnlock()
	out := make([]domain.Notification, 0, len(mn.store.notifications))
	for _, n := range mn.store.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Tx manager using write lock to emulate transaction boundary
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if isTx(ctx) {
		return fn(ctx)
	}
	// Для in-memory используем блокировку записи и помечаем контекст, чтобы репозитории пропускали внутренние локи
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	snap := tx.store.snapshot()
	ctx = context.WithValue(ctx, txKey{}, true)
	if err := fn(ctx); err != nil {
		tx.store.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextMedID   int64
	nextOrderID int64
	medicines   map[int64]domain.Medicine
	patients    map[string]domain.Patient
	orders      map[int64]domain.Order
	alerts      map[string]domain.RefillAlert
	alertKeys   map[string]string
}

// snapshot must be called with the write lock held.
func (m *MemoryStore) snapshot() memorySnapshot {
	s := memorySnapshot{
		nextMedID:   m.nextMedID,
		nextOrderID: m.nextOrderID,
		medicines:   make(map[int64]domain.Medicine, len(m.medicinesByID)),
		patients:    make(map[string]domain.Patient, len(m.patientsByID)),
		orders:      make(map[int64]domain.Order, len(m.ordersByID)),
		alerts:      make(map[string]domain.RefillAlert, len(m.alertsByID)),
		alertKeys:   make(map[string]string, len(m.alertKeys)),
	}
	for k, v := range m.medicinesByID {
		s.medicines[k] = v
	}
	for k, v := range m.patientsByID {
		s.patients[k] = v
	}
	for k, v := range m.ordersByID {
		s.orders[k] = v
	}
	for k, v := range m.alertsByID {
		s.alerts[k] = v
	}
	for k, v := range m.alertKeys {
		s.alertKeys[k] = v
	}
	return s
}

func (m *MemoryStore) restore(s memorySnapshot) {
	m.nextMedID = s.nextMedID
	m.nextOrderID = s.nextOrderID
	m.medicinesByID = s.medicines
	m.patientsByID = s.patients
	m.ordersByID = s.orders
	m.alertsByID = s.alerts
	m.alertKeys = s.alertKeys
}
