package domain

import "strings"

// ValidationState tracks whether a category assignment passed taxonomy validation.
type ValidationState string

const (
	ValidationUnvalidated ValidationState = "unvalidated"
	ValidationValid       ValidationState = "valid"
	ValidationInvalid     ValidationState = "invalid"
)

// CategoryAssignment is the classifier's answer for one transaction.
type CategoryAssignment struct {
	Main       string          `json:"main"`
	Sub        string          `json:"sub,omitempty"`
	Validation ValidationState `json:"validation"`
	// Attempts is the number of classifier calls it took to obtain this assignment.
	Attempts int `json:"attempts"`
	// Source names where the assignment came from (provider name or "cache").
	Source string `json:"source,omitempty"`
}

// NormalizeCategoryName folds a category name for comparison and node keys.
func NormalizeCategoryName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// Key is the node key of the assignment's main category.
func (a CategoryAssignment) Key() string {
	return NormalizeCategoryName(a.Main)
}
