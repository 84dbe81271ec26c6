package params

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// QueryParams holds the common list-endpoint query parameters.
type QueryParams struct {
	PageNumber int
	PageSize   int
	Search     string
	SortBy     string
	SortOrder  string
}

// FromContext parses paging parameters from the request, applying defaults.
func FromContext(c echo.Context) QueryParams {
	p := QueryParams{
		PageNumber: 1,
		PageSize:   20,
		Search:     c.QueryParam("search"),
		SortBy:     c.QueryParam("sort_by"),
		SortOrder:  c.QueryParam("sort_order"),
	}
	if n, err := strconv.Atoi(c.QueryParam("page")); err == nil && n > 0 {
		p.PageNumber = n
	}
	if n, err := strconv.Atoi(c.QueryParam("page_size")); err == nil && n > 0 && n <= 100 {
		p.PageSize = n
	}
	return p
}
