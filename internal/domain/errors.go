package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrGeneration  = errors.New("generation failed")
	ErrPersistence = errors.New("persistence failed")
)

// InsufficientCreditsError reports that a requested batch cannot be covered
// by the user's remaining free trial plus paid balance. No side effects have
// occurred when it is returned.
type InsufficientCreditsError struct {
	Shortfall float64
	Balance   float64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: short %.2f with balance %.2f", e.Shortfall, e.Balance)
}

// IsInsufficientCredits unwraps err looking for an InsufficientCreditsError.
func IsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var ice *InsufficientCreditsError
	ok := errors.As(err, &ice)
	return ice, ok
}
