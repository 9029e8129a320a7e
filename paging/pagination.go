package paging

import (
	"math"
	"strconv"
	"strings"

	"github.com/goliatone/go-tenantquery/core"
)

type Defaults struct {
	Page     int
	Limit    int
	MaxLimit int
}

func DefaultsFromCore(cfg core.PaginationConfig) Defaults {
	return Defaults{Page: cfg.DefaultPage, Limit: cfg.DefaultLimit, MaxLimit: cfg.MaxLimit}
}

func (d Defaults) normalized() Defaults {
	if d.MaxLimit < 1 {
		d.MaxLimit = 100
	}
	if d.Page < 1 {
		d.Page = 1
	}
	if d.Limit < 1 {
		d.Limit = 10
	}
	if d.Limit > d.MaxLimit {
		d.Limit = d.MaxLimit
	}
	return d
}

// ParsePagination never fails: non numeric input falls back to defaults and
// numbers are clamped into range. Page is capped so Skip cannot overflow.
func ParsePagination(rawPage string, rawLimit string, defaults Defaults) core.PaginationSpec {
	defaults = defaults.normalized()
	page := parseInt(rawPage, defaults.Page)
	limit := parseInt(rawLimit, defaults.Limit)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > defaults.MaxLimit {
		limit = defaults.MaxLimit
	}
	// keep (page-1)*limit within int
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return core.PaginationSpec{Page: page, Limit: limit, Skip: (page - 1) * limit}
}

func parseInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func NewMeta(spec core.PaginationSpec, total int) core.PaginationMeta {
	if total < 0 {
		total = 0
	}
	limit := spec.Limit
	if limit < 1 {
		limit = 1
	}
	totalPages := (total + limit - 1) / limit
	return core.PaginationMeta{
		Page:       spec.Page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    spec.Page < totalPages,
		HasPrev:    spec.Page > 1,
	}
}
