// Package pagination provides shared page/limit query parsing for list
// endpoints.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds the parsed pagination query parameters.
type Params struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// FromContext parses page and limit from the request query, clamping limit
// to MaxLimit and defaulting out-of-range values.
func FromContext(c echo.Context) Params {
	p := Params{Page: 1, Limit: DefaultLimit}

	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		p.Limit = v
		if p.Limit > MaxLimit {
			p.Limit = MaxLimit
		}
	}
	return p
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Response wraps a page of results with paging metadata.
type Response struct {
	Data       interface{} `json:"data"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
}

// NewResponse builds a paginated response envelope.
func NewResponse(data interface{}, total int, p Params) Response {
	pages := total / p.Limit
	if total%p.Limit != 0 {
		pages++
	}
	return Response{
		Data:       data,
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
	}
}
