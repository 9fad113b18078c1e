package shopping

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError reports a payload that does not have the expected shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate checks the shape of a sign-up payload.
func (u NewUser) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return invalid("username", "must not be empty")
	}
	if u.Password == "" {
		return invalid("password", "must not be empty")
	}
	return nil
}

// Validate checks the shape of a list payload.
func (l NewList) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if l.Date.IsZero() {
		return invalid("date", "is required")
	}
	return nil
}

// Validate checks the fields present in the patch.
func (p ListPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if p.Date != nil && p.Date.IsZero() {
		return invalid("date", "must be a valid date")
	}
	return nil
}

// Validate checks the shape of an item payload.
func (it NewItem) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if err := validatePrice(it.Price); err != nil {
		return err
	}
	if it.Quantity < 1 {
		return invalid("quantity", "must be at least 1")
	}
	return nil
}

// Validate checks the fields present in the patch.
func (p ItemPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
	}
	if p.Quantity != nil && *p.Quantity < 1 {
		return invalid("quantity", "must be at least 1")
	}
	return nil
}

func validatePrice(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return invalid("price", "must be a non-negative number")
	}
	return nil
}
