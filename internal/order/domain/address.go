package domain

import (
	"strings"

	"github.com/fedotovn/placeorder/internal/apperror"
)

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Validate returns the full list of field violations. The order engine
// assumes its input address passed this check; transport layers run it
// before placement.
func (a Address) Validate() []apperror.Violation {
	var violations []apperror.Violation
	required := []struct {
		field string
		value string
	}{
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			violations = append(violations, apperror.Violation{
				Field:   f.field,
				Code:    "required",
				Message: f.field + " is required",
			})
		}
	}
	return violations
}
