package service

import (
	"context"
	"strings"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

// PatientService чтение пациентов, их истории заказов и рецептов
type PatientService struct {
	patients  repository.PatientRepository
	orders    repository.OrderRepository
	medicines repository.MedicineRepository
}

func NewPatientService(patients repository.PatientRepository, orders repository.OrderRepository, medicines repository.MedicineRepository) *PatientService {
	return &PatientService{patients: patients, orders: orders, medicines: medicines}
}

func (s *PatientService) Create(ctx context.Context, p domain.Patient) (*domain.Patient, error) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return nil, domain.Validationf("patient_id and name are required")
	}
	if p.Language == "" {
		p.Language = domain.LangEnglish
	}
	cp := p
	if err := s.patients.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *PatientService) Get(ctx context.Context, id string) (*domain.Patient, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Validationf("patient_id is required")
	}
	return s.patients.GetByID(ctx, id)
}

func (s *PatientService) List(ctx context.Context) ([]domain.Patient, error) {
	return s.patients.List(ctx)
}

// Orders returns the patient's order history, newest first.
func (s *PatientService) Orders(ctx context.Context, id string) ([]domain.Order, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.orders.List(ctx, repository.OrderFilter{PatientID: id})
}

// AddPrescription records an on-file prescription for a catalog product.
func (s *PatientService) AddPrescription(ctx context.Context, patientID, productName string) (*domain.Patient, error) {
	if strings.TrimSpace(productName) == "" {
		return nil, domain.Validationf("product_name is required")
	}
	if _, err := s.Get(ctx, patientID); err != nil {
		return nil, err
	}
	med, err := s.medicines.GetByName(ctx, productName)
	if err != nil {
		return nil, err
	}
	return s.patients.AddPrescription(ctx, patientID, med.Name)
}
