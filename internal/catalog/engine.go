// Package catalog provides the catalog engine that filters, sorts and relates
// products of an immutable catalog snapshot, and the HTTP plugin serving it.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	pkgcatalog "github.com/HerbHall/storefront/pkg/catalog"
)

// CategoryAll disables category filtering in a Query.
const CategoryAll = "all"

// DefaultRelatedLimit is the number of related products shown next to a
// product detail view.
const DefaultRelatedLimit = 4

// SortKey selects the ordering of a query result.
type SortKey string

const (
	// SortNewest keeps dataset order. The dataset has no timestamps, so
	// insertion order stands in for recency.
	SortNewest   SortKey = "newest"
	SortName     SortKey = "name"
	SortCategory SortKey = "category"
)

var (
	// ErrUnknownSort is returned by ParseSort for unsupported sort keys.
	ErrUnknownSort = errors.New("unknown sort key")
	// ErrNotFound is returned when a product id does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrIncomplete is returned when a product exists but lacks the content
	// required for display.
	ErrIncomplete = errors.New("product incomplete")
)

// ParseSort validates a sort key. The empty string selects SortNewest.
func ParseSort(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortNewest, nil
	case SortNewest, SortName, SortCategory:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSort, s)
	}
}

// Query describes a catalog listing request.
type Query struct {
	Category string
	Search   string
	SortBy   SortKey
}

// Engine answers listing and related-product queries over one catalog
// snapshot. It holds no mutable state.
type Engine struct {
	cat  *pkgcatalog.Catalog
	lang language.Tag
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguage sets the collation language used by name and category sorts.
func WithLanguage(tag language.Tag) Option {
	return func(e *Engine) { e.lang = tag }
}

// NewEngine creates an engine backed by the given catalog. Collation
// defaults to Spanish, the storefront's display language.
func NewEngine(cat *pkgcatalog.Catalog, opts ...Option) *Engine {
	if cat == nil {
		cat = pkgcatalog.Empty()
	}
	e := &Engine{cat: cat, lang: language.Spanish}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the snapshot the engine reads from.
func (e *Engine) Catalog() *pkgcatalog.Catalog {
	return e.cat
}

// IsComplete reports whether a product has a description plus at least one
// non-blank detail and feature. Only complete products appear in listings.
func IsComplete(p pkgcatalog.Product) bool {
	if p.Malformed() {
		return false
	}
	if strings.TrimSpace(p.Description) == "" {
		return false
	}
	return hasContent(p.Details) && hasContent(p.Features)
}

func hasContent(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}

// Complete returns the complete products in dataset order.
func (e *Engine) Complete() []pkgcatalog.Product {
	products := e.cat.Products()
	result := make([]pkgcatalog.Product, 0, len(products))
	for i := range products {
		if IsComplete(products[i]) {
			result = append(result, products[i])
		}
	}
	return result
}

// Query de-duplicates by id keeping the first dataset occurrence (the one
// Lookup returns), filters by category and search term, drops incomplete
// products and sorts. An empty result is valid.
func (e *Engine) Query(q Query) []pkgcatalog.Product {
	products := e.cat.Products()

	category := strings.TrimSpace(q.Category)
	term := strings.ToLower(strings.TrimSpace(q.Search))

	seen := make(map[pkgcatalog.ProductID]struct{}, len(products))
	result := make([]pkgcatalog.Product, 0, len(products))
	for i := range products {
		p := products[i]
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if category != "" && category != CategoryAll && p.Category != category {
			continue
		}
		if term != "" && !matchesSearch(p, term) {
			continue
		}
		if IsComplete(p) {
			result = append(result, p)
		}
	}

	e.sortProducts(result, q.SortBy)
	return result
}

// matchesSearch checks the lower-cased term against name, description,
// category id and code.
func matchesSearch(p pkgcatalog.Product, term string) bool {
	fields := [...]string{p.Name, p.Description, p.Category, p.Code}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// sortProducts orders products in place. Ties keep dataset order.
func (e *Engine) sortProducts(products []pkgcatalog.Product, key SortKey) {
	var field func(p pkgcatalog.Product) string
	switch key {
	case SortName:
		field = func(p pkgcatalog.Product) string { return p.Name }
	case SortCategory:
		field = func(p pkgcatalog.Product) string { return p.Category }
	default:
		return
	}

	// A Collator keeps internal buffers, so each sort gets its own.
	col := collate.New(e.lang)
	sort.SliceStable(products, func(a, b int) bool {
		return col.CompareString(field(products[a]), field(products[b])) < 0
	})
}

// Related picks up to limit complete products to show next to the product
// with the given id: same category first, then other categories, then any
// remaining product. Each tier keeps dataset order. The current product is
// never included. limit <= 0 selects DefaultRelatedLimit.
func (e *Engine) Related(id pkgcatalog.ProductID, limit int) []pkgcatalog.Product {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}

	current, ok := e.cat.Product(id)
	if !ok {
		return []pkgcatalog.Product{}
	}

	pool := e.Complete()
	selected := make([]pkgcatalog.Product, 0, limit)
	taken := map[pkgcatalog.ProductID]struct{}{id: {}}

	take := func(match func(p pkgcatalog.Product) bool) {
		for i := range pool {
			if len(selected) >= limit {
				return
			}
			if _, done := taken[pool[i].ID]; done {
				continue
			}
			if !match(pool[i]) {
				continue
			}
			taken[pool[i].ID] = struct{}{}
			selected = append(selected, pool[i])
		}
	}

	take(func(p pkgcatalog.Product) bool { return p.Category == current.Category })
	take(func(p pkgcatalog.Product) bool { return p.Category != current.Category })
	take(func(pkgcatalog.Product) bool { return true })

	return selected
}

// Lookup returns the product for a detail view. It fails with ErrNotFound
// for unknown ids and ErrIncomplete for products that must not be rendered.
func (e *Engine) Lookup(id pkgcatalog.ProductID) (pkgcatalog.Product, error) {
	p, ok := e.cat.Product(id)
	if !ok {
		return pkgcatalog.Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !IsComplete(p) {
		return p, fmt.Errorf("%w: %s", ErrIncomplete, id)
	}
	return p, nil
}

// CategoryCount pairs a category with the number of complete products in it.
type CategoryCount struct {
	pkgcatalog.Category
	Count int `json:"count"`
}

// Categories returns all categories with their complete product counts, in
// dataset order.
func (e *Engine) Categories() []CategoryCount {
	counts := make(map[string]int)
	for _, p := range e.Complete() {
		counts[p.Category]++
	}
	cats := e.cat.Categories()
	result := make([]CategoryCount, 0, len(cats))
	for i := range cats {
		result = append(result, CategoryCount{Category: cats[i], Count: counts[cats[i].ID]})
	}
	return result
}

// Specification is one row of a product's technical specification table.
type Specification struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

// Specifications splits "Key: Value" features into two-column rows. Features
// that do not split into exactly two parts become single-value rows.
func Specifications(p pkgcatalog.Product) []Specification {
	specs := make([]Specification, 0, len(p.Features))
	for _, f := range p.Features {
		parts := strings.Split(f, ":")
		if len(parts) == 2 {
			specs = append(specs, Specification{
				Key:   strings.TrimSpace(parts[0]),
				Value: strings.TrimSpace(parts[1]),
			})
			continue
		}
		specs = append(specs, Specification{Value: f})
	}
	return specs
}
