package pagination

import (
	"github.com/gofiber/fiber/v2"
)

// Params represents pagination parameters
type Params struct {
	Page   int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// Meta represents pagination metadata
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

const (
	// DefaultLimit is the default number of items per page
	DefaultLimit = 20
	// MaxLimit is the maximum number of items per page
	MaxLimit = 100
)

// GetParams extracts pagination parameters from request
func GetParams(c *fiber.Ctx) *Params {
	return NewParams(c.QueryInt("page", 1), c.QueryInt("limit", DefaultLimit))
}

// NewParams clamps page and limit into range.
func NewParams(page, limit int) *Params {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return &Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// GetMeta calculates pagination metadata
func GetMeta(params *Params, total int64) *Meta {
	totalPages := int((total + int64(params.Limit) - 1) / int64(params.Limit))

	return &Meta{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}

// Page is one page of items with its metadata
type Page[T any] struct {
	Items []T   `json:"items"`
	Meta  *Meta `json:"meta"`
}

// NewPage creates a paginated response body
func NewPage[T any](items []T, params *Params, total int64) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items: items,
		Meta:  GetMeta(params, total),
	}
}
