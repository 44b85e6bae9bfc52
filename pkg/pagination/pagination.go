// Package pagination reads _count/_offset query parameters and wraps list
// responses with paging metadata and navigation links.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads _count (or limit) and _offset (or offset). Limits are
// clamped to [1, MaxLimit]; negative offsets become 0.
func FromContext(c echo.Context) Params {
	limit := firstInt(c, "_count", "limit")
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := firstInt(c, "_offset", "offset")
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func firstInt(c echo.Context, names ...string) int {
	for _, name := range names {
		if n, err := strconv.Atoi(c.QueryParam(name)); err == nil && n != 0 {
			return n
		}
	}
	return 0
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset never goes below 0.
func (p Params) PreviousOffset() int {
	if prev := p.Offset - p.Limit; prev > 0 {
		return prev
	}
	return 0
}

// Link is a navigation link for a page.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Links returns self, and next or previous where they exist.
func (p Params) Links(basePath string, total int) []Link {
	page := func(rel string, offset int) Link {
		return Link{Relation: rel, URL: fmt.Sprintf("%s?_offset=%d&_count=%d", basePath, offset, p.Limit)}
	}
	links := []Link{page("self", p.Offset)}
	if p.HasNext(total) {
		links = append(links, page("next", p.NextOffset()))
	}
	if p.HasPrevious() {
		links = append(links, page("previous", p.PreviousOffset()))
	}
	return links
}

type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   []Link      `json:"links,omitempty"`
}

// NewResponse wraps one page of data. Links are omitted when basePath is
// empty.
func NewResponse(data interface{}, total int, p Params, basePath string) *Response {
	resp := &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
	if basePath != "" {
		resp.Links = p.Links(basePath, total)
	}
	return resp
}
