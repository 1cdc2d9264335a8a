// Package services holds the SQLite-backed repositories the catalog plugin
// uses for state that outlives a dataset reload.
package services

import "errors"

// Page sizes for List calls.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("not found")

// ListOptions selects one page of a listing. SortBy is checked against a
// per-repository column set; unknown values fall back to its default.
type ListOptions struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// ListResult is one page plus the size of the whole listing. Limit and
// Offset echo the effective values after clamping.
type ListResult[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// clamped returns o with the limit bounded to (0, MaxPageSize], a
// non-negative offset and an order of "asc" or "desc".
func (o ListOptions) clamped() ListOptions {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		o.Limit = MaxPageSize
	}
	o.Offset = max(o.Offset, 0)
	if o.SortOrder != "asc" {
		o.SortOrder = "desc"
	}
	return o
}
