package service

import (
	"context"
	"strings"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

// MedicineService инкапсулирует работу с каталогом лекарств
type MedicineService struct {
	repo repository.MedicineRepository
}

func NewMedicineService(repo repository.MedicineRepository) *MedicineService {
	return &MedicineService{repo: repo}
}

func (s *MedicineService) Create(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	if strings.TrimSpace(m.Name) == "" {
		return nil, domain.Validationf("name is required")
	}
	if m.Price < 0 || m.Stock < 0 {
		return nil, domain.Validationf("price and stock must not be negative")
	}
	cp := m
	cp.Price = domain.RoundPrice(m.Price)
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *MedicineService) GetByID(ctx context.Context, id int64) (*domain.Medicine, error) {
	if id <= 0 {
		return nil, domain.Validationf("id must be positive")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *MedicineService) GetByName(ctx context.Context, name string) (*domain.Medicine, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.Validationf("name is required")
	}
	return s.repo.GetByName(ctx, name)
}

func (s *MedicineService) List(ctx context.Context, f repository.MedicineFilter) ([]domain.Medicine, error) {
	return s.repo.List(ctx, f)
}
