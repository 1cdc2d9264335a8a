// Package catalog defines the storefront data model: products, categories and
// the immutable Catalog built from a products.json document.
package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/spf13/cast"
)

// ProductID identifies a product. Datasets carry ids as JSON numbers or
// strings; both decode to the same normalised string so that 7 and "7" refer
// to the same product.
type ProductID string

// UnmarshalJSON accepts a JSON number, string or null.
func (id *ProductID) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*id = ""
	case json.Number:
		*id = ProductID(t.String())
	default:
		s, err := cast.ToStringE(t)
		if err != nil {
			return err
		}
		*id = ProductID(s)
	}
	return nil
}

// MarshalJSON writes canonical integers as JSON numbers and everything else
// as a string.
func (id ProductID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(string(id)), nil
	}
	return json.Marshal(string(id))
}

func (id ProductID) String() string { return string(id) }

// Product is a single catalog entry. Only ID, Name and Category are required;
// everything else may be absent in partially populated datasets.
type Product struct {
	ID            ProductID `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Category      string    `json:"category" yaml:"category"`
	Code          string    `json:"code,omitempty" yaml:"code,omitempty"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	Details       []string  `json:"details,omitempty" yaml:"details,omitempty"`
	Features      []string  `json:"features,omitempty" yaml:"features,omitempty"`
	Images        []string  `json:"images,omitempty" yaml:"images,omitempty"`
	Image         string    `json:"image,omitempty" yaml:"image,omitempty"`
	Price         *float64  `json:"price,omitempty" yaml:"price,omitempty"`
	OriginalPrice *float64  `json:"originalPrice,omitempty" yaml:"originalPrice,omitempty"`

	// malformed is set when description, details or features had the wrong
	// JSON shape. Such a product can be looked up but is never complete.
	malformed bool
}

// Malformed reports whether the product was decoded from a document whose
// description, details or features field had the wrong shape.
func (p Product) Malformed() bool { return p.malformed }

// UnmarshalJSON decodes a product leniently: a wrongly shaped description,
// details or features field marks the product malformed instead of failing
// the whole document.
func (p *Product) UnmarshalJSON(b []byte) error {
	type alias Product
	var raw struct {
		alias
		Description json.RawMessage `json:"description"`
		Details     json.RawMessage `json:"details"`
		Features    json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*p = Product(raw.alias)
	p.Description, p.Details, p.Features = "", nil, nil

	var ok bool
	if p.Description, ok = decodeText(raw.Description); !ok {
		p.malformed = true
	}
	if p.Details, ok = decodeLines(raw.Details); !ok {
		p.malformed = true
	}
	if p.Features, ok = decodeLines(raw.Features); !ok {
		p.malformed = true
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func decodeText(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeLines(raw json.RawMessage) ([]string, bool) {
	if isNull(raw) {
		return nil, true
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, lineText(item))
	}
	return lines, true
}

// lineText stringifies one list entry. null, false and zero become empty so
// that they never count as content.
func lineText(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "true"
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return ""
		}
		return t.String()
	default:
		return string(bytes.TrimSpace(raw))
	}
}

// Category groups products. Product.Category references Category.ID.
type Category struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Image       string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Document is the on-disk shape of products.json.
type Document struct {
	Products   []Product  `json:"products" yaml:"products"`
	Categories []Category `json:"categories" yaml:"categories"`
}
