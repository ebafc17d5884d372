// Package seed loads the demo catalog, patients and order history.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

//go:embed catalog.json
var catalogJSON []byte

type historyEntry struct {
	PatientID   string `json:"patient_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	DaysAgo     int    `json:"days_ago"`
}

// Data is the decoded seed file.
type Data struct {
	Medicines []domain.Medicine `json:"medicines"`
	Patients  []domain.Patient  `json:"patients"`
	History   []historyEntry    `json:"history"`
}

// Default returns the embedded seed data.
func Default() (*Data, error) {
	var d Data
	if err := json.Unmarshal(catalogJSON, &d); err != nil {
		return nil, errors.Wrap(err, "decode seed catalog")
	}
	return &d, nil
}

// Stores are the repositories the seed writes to.
type Stores struct {
	Medicines repository.MedicineRepository
	Patients  repository.PatientRepository
	Orders    repository.OrderRepository
}

// Result counts what Load created.
type Result struct {
	Medicines int `json:"medicines"`
	Patients  int `json:"patients"`
	Orders    int `json:"orders"`
}

// Load writes d into the stores. Products and patients that already exist are
// skipped, and history is only written for patients created by this call, so
// loading twice does not duplicate anything. Order dates are relative to now.
func Load(ctx context.Context, st Stores, d *Data, now time.Time, log logrus.FieldLogger) (Result, error) {
	var res Result
	for _, m := range d.Medicines {
		if _, err := st.Medicines.GetByName(ctx, m.Name); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return res, errors.Wrapf(err, "lookup medicine %q", m.Name)
		}
		m.Price = domain.RoundPrice(m.Price)
		if err := st.Medicines.Create(ctx, &m); err != nil {
			return res, errors.Wrapf(err, "create medicine %q", m.Name)
		}
		res.Medicines++
	}

	fresh := map[string]bool{}
	for _, p := range d.Patients {
		p := p
		err := st.Patients.Create(ctx, &p)
		if errors.Is(err, repository.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return res, errors.Wrapf(err, "create patient %s", p.ID)
		}
		fresh[p.ID] = true
		res.Patients++
	}

	for _, h := range d.History {
		if !fresh[h.PatientID] {
			continue
		}
		med, err := st.Medicines.GetByName(ctx, h.ProductName)
		if err != nil {
			return res, errors.Wrapf(err, "history product %q", h.ProductName)
		}
		qty := h.Quantity
		if qty <= 0 {
			qty = 1
		}
		created := now.UTC().AddDate(0, 0, -h.DaysAgo)
		o := &domain.Order{
			PatientID:   h.PatientID,
			MedicineID:  med.ID,
			ProductName: med.Name,
			Quantity:    qty,
			UnitPrice:   med.Price,
			TotalPrice:  decimal.NewFromFloat(med.Price).Mul(decimal.NewFromInt(qty)).Round(2).InexactFloat64(),
			Status:      domain.OrderStatusDelivered,
			CreatedAt:   created,
		}
		if err := st.Orders.Create(ctx, o); err != nil {
			return res, errors.Wrapf(err, "create history order for %s", h.PatientID)
		}
		res.Orders++
	}

	log.WithFields(logrus.Fields{
		"medicines": res.Medicines,
		"patients":  res.Patients,
		"orders":    res.Orders,
	}).Info("seed loaded")
	return res, nil
}
