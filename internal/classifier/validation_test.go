package classifier

import (
	"errors"
	"testing"
)

func testTaxonomy(t *testing.T) *Taxonomy {
	t.Helper()
	tax, err := NewTaxonomy([]Category{
		{Name: "HOUSING", Subcategories: []string{"Rent", "Utilities"}},
		{Name: "FOOD", Subcategories: []string{"Groceries", "Restaurants"}},
		{Name: "Transfers"},
	})
	if err != nil {
		t.Fatalf("NewTaxonomy failed: %v", err)
	}
	return tax
}

func TestValidator_Validate(t *testing.T) {
	validator := NewValidator(testTaxonomy(t))

	tests := []struct {
		name           string
		category       string
		subcategory    string
		wantMain       string
		wantSub        string
		wantConstraint Constraint
	}{
		{
			name:        "valid category and subcategory",
			category:    "HOUSING",
			subcategory: "Rent",
			wantMain:    "HOUSING",
			wantSub:     "Rent",
		},
		{
			name:        "valid with different case",
			category:    "housing",
			subcategory: "rent",
			wantMain:    "HOUSING",
			wantSub:     "Rent",
		},
		{
			name:        "valid with extra spaces",
			category:    "  FOOD  ",
			subcategory: "  Groceries  ",
			wantMain:    "FOOD",
			wantSub:     "Groceries",
		},
		{
			name:     "category without subcategories",
			category: "transfers",
			wantMain: "Transfers",
		},
		{
			name:           "empty category",
			category:       " ",
			wantConstraint: ConstraintMissingCategory,
		},
		{
			name:           "unknown category",
			category:       "GAMBLING",
			subcategory:    "Casino",
			wantConstraint: ConstraintUnknownCategory,
		},
		{
			name:           "subcategory from another category",
			category:       "HOUSING",
			subcategory:    "Groceries",
			wantConstraint: ConstraintUnknownSubcategory,
		},
		{
			name:           "missing required subcategory",
			category:       "FOOD",
			wantConstraint: ConstraintMissingSubcategory,
		},
		{
			name:           "subcategory on leaf category",
			category:       "Transfers",
			subcategory:    "Savings",
			wantConstraint: ConstraintUnexpectedSubcategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main, sub, err := validator.Validate(tt.category, tt.subcategory)
			if tt.wantConstraint != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Validate() error = %v, want *ValidationError", err)
				}
				if verr.Constraint != tt.wantConstraint {
					t.Errorf("Validate() constraint = %s, want %s", verr.Constraint, tt.wantConstraint)
				}
				if verr.Error() == "" {
					t.Error("expected non-empty feedback message")
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if main != tt.wantMain || sub != tt.wantSub {
				t.Errorf("Validate() = (%q, %q), want (%q, %q)", main, sub, tt.wantMain, tt.wantSub)
			}
		})
	}
}
