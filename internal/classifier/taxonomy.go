package classifier

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dvloznov/finance-graph/internal/domain"
	infra "github.com/dvloznov/finance-graph/internal/infra/bigquery"
	"gopkg.in/yaml.v3"
)

// Category is one main category of the taxonomy.
type Category struct {
	Name          string   `yaml:"name"`
	Subcategories []string `yaml:"subcategories,omitempty"`
}

// Taxonomy is the closed set of categories the classifier may answer with.
type Taxonomy struct {
	categories []Category
	// normalized main name -> index into categories
	index map[string]int
	// normalized main name -> normalized sub name -> canonical sub name
	subs map[string]map[string]string
}

// NewTaxonomy builds a Taxonomy, rejecting empty or duplicate entries.
func NewTaxonomy(categories []Category) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("NewTaxonomy: no categories")
	}

	t := &Taxonomy{
		index: make(map[string]int, len(categories)),
		subs:  make(map[string]map[string]string, len(categories)),
	}
	for _, c := range categories {
		name := strings.TrimSpace(c.Name)
		key := domain.NormalizeCategoryName(name)
		if key == "" {
			return nil, fmt.Errorf("NewTaxonomy: empty category name")
		}
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("NewTaxonomy: duplicate category %q", name)
		}

		subs := make(map[string]string, len(c.Subcategories))
		clean := make([]string, 0, len(c.Subcategories))
		for _, s := range c.Subcategories {
			s = strings.TrimSpace(s)
			sk := domain.NormalizeCategoryName(s)
			if sk == "" {
				continue
			}
			if _, dup := subs[sk]; dup {
				continue
			}
			subs[sk] = s
			clean = append(clean, s)
		}

		t.index[key] = len(t.categories)
		t.subs[key] = subs
		t.categories = append(t.categories, Category{Name: name, Subcategories: clean})
	}
	return t, nil
}

// Categories returns a copy of the taxonomy entries.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = Category{Name: c.Name, Subcategories: append([]string(nil), c.Subcategories...)}
	}
	return out
}

// MainNames lists the canonical main category names.
func (t *Taxonomy) MainNames() []string {
	names := make([]string, len(t.categories))
	for i, c := range t.categories {
		names[i] = c.Name
	}
	return names
}

func (t *Taxonomy) lookup(main string) (Category, bool) {
	i, ok := t.index[domain.NormalizeCategoryName(main)]
	if !ok {
		return Category{}, false
	}
	return t.categories[i], true
}

// DefaultTaxonomy is the built-in household finance taxonomy.
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy([]Category{
		{Name: "Housing", Subcategories: []string{"Rent", "Mortgage", "Utilities", "Maintenance", "Council Tax"}},
		{Name: "Food", Subcategories: []string{"Groceries", "Restaurants", "Coffee", "Takeaway"}},
		{Name: "Transportation", Subcategories: []string{"Public Transit", "Fuel", "Parking", "Taxi", "Car Maintenance"}},
		{Name: "Shopping", Subcategories: []string{"Clothing", "Electronics", "Household", "Online"}},
		{Name: "Entertainment", Subcategories: []string{"Streaming", "Events", "Games", "Books"}},
		{Name: "Health", Subcategories: []string{"Pharmacy", "Fitness", "Medical"}},
		{Name: "Travel", Subcategories: []string{"Flights", "Accommodation", "Holiday"}},
		{Name: "Bills", Subcategories: []string{"Phone", "Internet", "Insurance", "Subscriptions"}},
		{Name: "Income", Subcategories: []string{"Salary", "Refund", "Interest", "Other Income"}},
		{Name: "Transfers"},
		{Name: "Fees"},
		{Name: "Cash"},
		{Name: "Uncategorized"},
	})
	if err != nil {
		panic(err)
	}
	return t
}

type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadTaxonomy reads a taxonomy from a YAML file of the form
//
//	categories:
//	  - name: Food
//	    subcategories: [Groceries, Restaurants]
func LoadTaxonomy(path string) (*Taxonomy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTaxonomy: read %s: %w", path, err)
	}
	var f taxonomyFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("LoadTaxonomy: parse %s: %w", path, err)
	}
	t, err := NewTaxonomy(f.Categories)
	if err != nil {
		return nil, fmt.Errorf("LoadTaxonomy: %w", err)
	}
	return t, nil
}

// TaxonomyFromRows builds a taxonomy from finance.categories rows: depth 1 rows
// are main categories, depth 2 rows are subcategories of their parent.
func TaxonomyFromRows(rows []infra.CategoryRow) (*Taxonomy, error) {
	names := make(map[string]string)
	var order []string
	for _, row := range rows {
		if row.Depth == 1 {
			names[row.CategoryID] = row.Name
			order = append(order, row.CategoryID)
		}
	}

	subs := make(map[string][]string)
	for _, row := range rows {
		if row.Depth != 2 || !row.ParentCategoryID.Valid {
			continue
		}
		if _, ok := names[row.ParentCategoryID.StringVal]; !ok {
			continue
		}
		subs[row.ParentCategoryID.StringVal] = append(subs[row.ParentCategoryID.StringVal], row.Name)
	}

	categories := make([]Category, 0, len(order))
	for _, id := range order {
		s := subs[id]
		sort.Strings(s)
		categories = append(categories, Category{Name: names[id], Subcategories: s})
	}
	t, err := NewTaxonomy(categories)
	if err != nil {
		return nil, fmt.Errorf("TaxonomyFromRows: %w", err)
	}
	return t, nil
}

// CategoryRepository lists taxonomy rows.
type CategoryRepository interface {
	ListActiveCategories(ctx context.Context) ([]infra.CategoryRow, error)
}

// LoadTaxonomyFromRepository reads the active categories through repo.
func LoadTaxonomyFromRepository(ctx context.Context, repo CategoryRepository) (*Taxonomy, error) {
	rows, err := repo.ListActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadTaxonomyFromRepository: list categories: %w", err)
	}
	return TaxonomyFromRows(rows)
}
