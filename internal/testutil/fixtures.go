package testutil

import (
	"github.com/HerbHall/storefront/pkg/catalog"
)

// NewProduct returns a complete Product with sensible defaults, suitable for
// test fixtures. Override individual fields with options.
func NewProduct(id string, opts ...func(*catalog.Product)) catalog.Product {
	p := catalog.Product{
		ID:          catalog.ProductID(id),
		Name:        "Producto " + id,
		Category:    "general",
		Description: "Producto de prueba",
		Details:     []string{"Detalle uno", "Detalle dos"},
		Features:    []string{"Peso: 1 kg"},
		Images: []string{
			"assets/images/products/P" + id + "_main.png",
			"assets/images/products/P" + id + "1.png",
		},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithName sets the product name.
func WithName(name string) func(*catalog.Product) {
	return func(p *catalog.Product) { p.Name = name }
}

// WithCategory sets the product category id.
func WithCategory(category string) func(*catalog.Product) {
	return func(p *catalog.Product) { p.Category = category }
}

// WithCode sets the product code.
func WithCode(code string) func(*catalog.Product) {
	return func(p *catalog.Product) { p.Code = code }
}

// WithDescription sets the product description.
func WithDescription(d string) func(*catalog.Product) {
	return func(p *catalog.Product) { p.Description = d }
}

// WithDetails replaces the detail list. No arguments leaves it nil.
func WithDetails(details ...string) func(*catalog.Product) {
	return func(p *catalog.Product) { p.Details = details }
}

// WithFeatures replaces the feature list. No arguments leaves it nil.
func WithFeatures(features ...string) func(*catalog.Product) {
	return func(p *catalog.Product) { p.Features = features }
}

// WithImages replaces the image list. No arguments leaves it nil.
func WithImages(images ...string) func(*catalog.Product) {
	return func(p *catalog.Product) { p.Images = images }
}

// WithImage sets the legacy single image path and clears the image list.
func WithImage(path string) func(*catalog.Product) {
	return func(p *catalog.Product) {
		p.Image = path
		p.Images = nil
	}
}

// Incomplete strips the description so the product is excluded from
// listings.
func Incomplete() func(*catalog.Product) {
	return func(p *catalog.Product) { p.Description = "" }
}
