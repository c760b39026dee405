package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// maxPage keeps Offset far away from integer overflow.
const maxPage = 1_000_000

type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
}

// GetPaginationParams reads ?page= and ?limit=, defaulting to the first page of 20.
func GetPaginationParams(c echo.Context) PaginationParams {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("limit"))

	if page <= 0 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}

	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
	}
}

// Window returns the [start, end) bounds of the page within total items.
func (p PaginationParams) Window(total int) (int, int) {
	start := p.Offset
	if start < 0 || start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	return start, end
}
