package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrSafetyBlock            = errors.New("blocked by safety check")
	ErrNotificationFailure    = errors.New("notification failed")
	ErrClassificationFallback = errors.New("intent unresolved, falling back to general chat")
	ErrInvalidState           = errors.New("invalid state")
)

// Validationf wraps ErrValidation with a corrective message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// SafetyCode тип отказа проверки безопасности
type SafetyCode string

const (
	SafetyUnknownProduct       SafetyCode = "UNKNOWN_PRODUCT"
	SafetyOutOfStock           SafetyCode = "OUT_OF_STOCK"
	SafetyPrescriptionRequired SafetyCode = "PRESCRIPTION_REQUIRED"
	SafetyInteractionWarning   SafetyCode = "INTERACTION_WARNING"
)

// SafetyError is returned when an order is blocked before execution.
type SafetyError struct {
	Code        SafetyCode `json:"code"`
	Reason      string     `json:"reason"`
	Product     string     `json:"product"`
	Available   int64      `json:"available,omitempty"`
	Interacts   string     `json:"interacts_with,omitempty"`
	Substitutes []Medicine `json:"substitutes,omitempty"`
}

func (e *SafetyError) Error() string {
	return string(e.Code) + ": " + e.Reason
}

// Is lets callers match ErrSafetyBlock, and ErrNotFound for unknown products.
func (e *SafetyError) Is(target error) bool {
	switch target {
	case ErrSafetyBlock:
		return true
	case ErrNotFound:
		return e.Code == SafetyUnknownProduct
	}
	return false
}

// AsSafetyError extracts a *SafetyError from err.
func AsSafetyError(err error) (*SafetyError, bool) {
	var se *SafetyError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
