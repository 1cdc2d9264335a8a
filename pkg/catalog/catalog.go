package catalog

import (
	"encoding/json"
	"fmt"
)

// Catalog is an immutable snapshot of products and categories. It is built
// once per load and only read afterwards, so it is safe for concurrent use.
type Catalog struct {
	products   []Product
	categories []Category
	productIdx map[ProductID]int
	catIdx     map[string]int
}

// New builds a Catalog from the given products and categories. The slices
// are copied. When ids repeat, lookups resolve to the first occurrence.
func New(products []Product, categories []Category) *Catalog {
	c := &Catalog{
		products:   append([]Product(nil), products...),
		categories: append([]Category(nil), categories...),
		productIdx: make(map[ProductID]int, len(products)),
		catIdx:     make(map[string]int, len(categories)),
	}
	for i := range c.products {
		if _, dup := c.productIdx[c.products[i].ID]; !dup {
			c.productIdx[c.products[i].ID] = i
		}
	}
	for i := range c.categories {
		if _, dup := c.catIdx[c.categories[i].ID]; !dup {
			c.catIdx[c.categories[i].ID] = i
		}
	}
	return c
}

// Empty returns a catalog with no products and no categories.
func Empty() *Catalog {
	return New(nil, nil)
}

// Parse decodes a products.json document.
func Parse(data []byte) (*Catalog, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse json: %w", err)
	}
	return FromDocument(doc), nil
}

// FromDocument builds a Catalog from a decoded document.
func FromDocument(doc Document) *Catalog {
	return New(doc.Products, doc.Categories)
}

// Products returns a copy of all products in dataset order, including
// incomplete ones.
func (c *Catalog) Products() []Product {
	cp := make([]Product, len(c.products))
	copy(cp, c.products)
	return cp
}

// Categories returns a copy of all categories in dataset order.
func (c *Catalog) Categories() []Category {
	cp := make([]Category, len(c.categories))
	copy(cp, c.categories)
	return cp
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

// Product looks up a product by id. Incomplete products are returned too.
func (c *Catalog) Product(id ProductID) (Product, bool) {
	i, ok := c.productIdx[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Category looks up a category by id.
func (c *Catalog) Category(id string) (Category, bool) {
	i, ok := c.catIdx[id]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// CategoryName returns the display name of a category, or the raw id when
// the category is unknown.
func (c *Catalog) CategoryName(id string) string {
	if cat, ok := c.Category(id); ok && cat.Name != "" {
		return cat.Name
	}
	return id
}

// Document returns the catalog contents in products.json shape.
func (c *Catalog) Document() Document {
	return Document{Products: c.Products(), Categories: c.Categories()}
}
