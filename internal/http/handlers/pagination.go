package handlers

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"
)

const maxPageSize = 100

func parsePageParam(c *echo.Context) int {
	return parsePositiveParam(c, "page", 1)
}

// parseSizeParam reads ?size=, falling back to def and capping at maxPageSize.
func parseSizeParam(c *echo.Context, def int) int {
	size := parsePositiveParam(c, "size", def)
	if size > maxPageSize {
		size = maxPageSize
	}
	return size
}

func parsePositiveParam(c *echo.Context, name string, def int) int {
	if raw := strings.TrimSpace(c.QueryParam(name)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// pageWindow is the paging block returned with list responses.
type pageWindow struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	TotalItems  int  `json:"totalItems"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
	ShowingFrom int  `json:"showingFrom"`
	ShowingTo   int  `json:"showingTo"`
}

func newPageWindow(page, perPage, totalItems, totalPages, showing int) pageWindow {
	if totalPages < 1 {
		totalPages = 1
	}
	offset := (page - 1) * perPage
	from, to := showingRange(int64(totalItems), offset, showing)
	return pageWindow{
		Page:        page,
		PageSize:    perPage,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
		ShowingFrom: from,
		ShowingTo:   to,
	}
}

func showingRange(totalCount int64, offset, showingCount int) (int, int) {
	if totalCount <= 0 || showingCount <= 0 {
		return 0, 0
	}
	showingFrom := offset + 1
	showingTo := offset + showingCount
	if int64(showingTo) > totalCount {
		showingTo = int(totalCount)
	}
	return showingFrom, showingTo
}
