package classifier

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-graph/internal/domain"
)

// Constraint names the rule a classifier answer violated.
type Constraint string

const (
	ConstraintMissingCategory       Constraint = "missing_category"
	ConstraintUnknownCategory       Constraint = "unknown_category"
	ConstraintUnknownSubcategory    Constraint = "unknown_subcategory"
	ConstraintMissingSubcategory    Constraint = "missing_subcategory"
	ConstraintUnexpectedSubcategory Constraint = "unexpected_subcategory"
)

// ValidationError describes why an answer was rejected. Its message is fed
// back to the model verbatim on the next attempt.
type ValidationError struct {
	Constraint Constraint
	Category   string
	Value      string
	Allowed    []string
}

func (e *ValidationError) Error() string {
	allowed := strings.Join(e.Allowed, ", ")
	switch e.Constraint {
	case ConstraintMissingCategory:
		return fmt.Sprintf("category is empty; choose one of: %s", allowed)
	case ConstraintUnknownCategory:
		return fmt.Sprintf("category %q is not allowed; choose one of: %s", e.Value, allowed)
	case ConstraintUnknownSubcategory:
		return fmt.Sprintf("subcategory %q is not valid for category %q; choose one of: %s", e.Value, e.Category, allowed)
	case ConstraintMissingSubcategory:
		return fmt.Sprintf("category %q requires a subcategory; choose one of: %s", e.Category, allowed)
	case ConstraintUnexpectedSubcategory:
		return fmt.Sprintf("category %q has no subcategories; subcategory must be empty, got %q", e.Category, e.Value)
	}
	return fmt.Sprintf("invalid classification: %s", e.Constraint)
}

// Validator checks classifier answers against a taxonomy.
type Validator struct {
	taxonomy *Taxonomy
}

// NewValidator creates a validator for the given taxonomy.
func NewValidator(t *Taxonomy) *Validator {
	return &Validator{taxonomy: t}
}

// Validate checks main and sub case- and whitespace-insensitively and returns
// their canonical spellings. A non-nil error is always a *ValidationError.
func (v *Validator) Validate(main, sub string) (string, string, error) {
	if strings.TrimSpace(main) == "" {
		return "", "", &ValidationError{Constraint: ConstraintMissingCategory, Allowed: v.taxonomy.MainNames()}
	}

	cat, ok := v.taxonomy.lookup(main)
	if !ok {
		return "", "", &ValidationError{Constraint: ConstraintUnknownCategory, Value: main, Allowed: v.taxonomy.MainNames()}
	}

	subKey := domain.NormalizeCategoryName(sub)
	if len(cat.Subcategories) == 0 {
		if subKey != "" {
			return "", "", &ValidationError{Constraint: ConstraintUnexpectedSubcategory, Category: cat.Name, Value: sub}
		}
		return cat.Name, "", nil
	}

	if subKey == "" {
		return "", "", &ValidationError{Constraint: ConstraintMissingSubcategory, Category: cat.Name, Allowed: cat.Subcategories}
	}
	canonical, ok := v.taxonomy.subs[domain.NormalizeCategoryName(cat.Name)][subKey]
	if !ok {
		return "", "", &ValidationError{Constraint: ConstraintUnknownSubcategory, Category: cat.Name, Value: sub, Allowed: cat.Subcategories}
	}
	return cat.Name, canonical, nil
}
