package api

import (
	"fmt"
	"maps"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultPageSize is used when a query carries no page size.
const DefaultPageSize = 10

// SortOrder is the direction of a sorted list.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder accepts asc/ascending and desc/descending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return SortAsc, nil
	case "desc", "descending":
		return SortDesc, nil
	}
	return "", fmt.Errorf("invalid sort order %q (want asc or desc)", s)
}

// Toggle flips the order.
func (o SortOrder) Toggle() SortOrder {
	if o == SortDesc {
		return SortAsc
	}
	return SortDesc
}

// ListQuery holds pagination, filter and sort state for one list view.
type ListQuery struct {
	Page      int
	PageSize  int
	Filters   map[string]string
	SortField string
	SortOrder SortOrder
}

// NewListQuery returns page 1 with the given page size.
func NewListQuery(pageSize int) ListQuery {
	return ListQuery{Page: 1, PageSize: pageSize, SortOrder: SortDesc}.Normalize()
}

// Normalize forces page and page size to be positive and copies filters so
// the query does not alias its caller's map.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
	q.Filters = maps.Clone(q.Filters)
	return q
}

// Clamp keeps Page within [1, totalPages] when totalPages is known (> 0).
func (q ListQuery) Clamp(totalPages int) ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if totalPages > 0 && q.Page > totalPages {
		q.Page = totalPages
	}
	return q
}

// WithFilter returns a copy with key set to value. An empty value removes
// the filter.
func (q ListQuery) WithFilter(key, value string) ListQuery {
	q = q.Normalize()
	if strings.TrimSpace(value) == "" {
		delete(q.Filters, key)
		return q
	}
	if q.Filters == nil {
		q.Filters = make(map[string]string)
	}
	q.Filters[key] = value
	return q
}

// WithoutFilter returns a copy without key.
func (q ListQuery) WithoutFilter(key string) ListQuery {
	return q.WithFilter(key, "")
}

// WithSort returns a copy sorted by field in order.
func (q ListQuery) WithSort(field string, order SortOrder) ListQuery {
	q = q.Normalize()
	q.SortField = field
	if order != "" {
		q.SortOrder = order
	}
	return q
}

// Equal reports whether two queries would issue the same request.
func (q ListQuery) Equal(o ListQuery) bool {
	a, b := q.Normalize(), o.Normalize()
	if a.Page != b.Page || a.PageSize != b.PageSize || a.SortField != b.SortField {
		return false
	}
	if a.SortField != "" && a.SortOrder != b.SortOrder {
		return false
	}
	return maps.Equal(nonEmpty(a.Filters), nonEmpty(b.Filters))
}

// Values encodes the query the way list endpoints expect it.
func (q ListQuery) Values() url.Values {
	q = q.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.PageSize))

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if val := strings.TrimSpace(q.Filters[k]); val != "" {
			v.Set(k, val)
		}
	}

	if q.SortField != "" {
		v.Set("sortBy", q.SortField)
		v.Set("sortOrder", string(q.SortOrder))
	}
	return v
}

func nonEmpty(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// ListResult is the canonical page of a collection.
type ListResult[T any] struct {
	Items      []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// TotalPages returns ceil(total / pageSize); zero when either is not positive.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// NewListResult builds a result, enforcing len(items) <= pageSize and the
// derived page count.
func NewListResult[T any](items []T, total int, q ListQuery) ListResult[T] {
	q = q.Normalize()
	if len(items) > q.PageSize {
		items = items[:q.PageSize]
	}
	if total < len(items) {
		total = len(items)
	}
	if items == nil {
		items = []T{}
	}
	return ListResult[T]{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: TotalPages(total, q.PageSize),
	}
}
