// Package listview implements the search, filter, sort and paginate pipeline
// shared by the admin tables and the user dashboard.
package listview

import (
	"sort"
	"strings"
	"time"
)

// PageSize is the number of records per page.
const PageSize = 10

// DateRange limits records to a window relative to now.
type DateRange string

const (
	RangeAll   DateRange = "all"
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// StatusAll disables the status filter.
const StatusAll = "all"

// Key extracts a sortable value from a record. Exactly one of the fields is set.
type Key[T any] struct {
	Time   func(T) time.Time
	String func(T) string
	Number func(T) float64
}

// TimeKey sorts by instant.
func TimeKey[T any](f func(T) time.Time) Key[T] { return Key[T]{Time: f} }

// StringKey sorts case-insensitively.
func StringKey[T any](f func(T) string) Key[T] { return Key[T]{String: f} }

// NumberKey sorts numerically.
func NumberKey[T any](f func(T) float64) Key[T] { return Key[T]{Number: f} }

func (k Key[T]) compare(a, b T) int {
	switch {
	case k.Time != nil:
		return k.Time(a).Compare(k.Time(b))
	case k.String != nil:
		return strings.Compare(strings.ToLower(k.String(a)), strings.ToLower(k.String(b)))
	case k.Number != nil:
		x, y := k.Number(a), k.Number(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// Schema describes how a record type is searched, filtered and sorted.
type Schema[T any] struct {
	// SearchFields are matched case-insensitively against the search term.
	SearchFields []func(T) string
	// Status is compared for equality with the status filter. A nil Status
	// ignores the filter entirely.
	Status func(T) string
	// Date feeds the relative date filter. A nil Date ignores the filter.
	Date func(T) time.Time
	Sort map[string]Key[T]
}

// State is the user-controlled view state of one table. The setters reset
// the page to 1.
type State struct {
	Search    string    `json:"search"`
	Status    string    `json:"status"`
	DateRange DateRange `json:"date_range"`
	SortField string    `json:"sort_field"`
	SortDir   Direction `json:"sort_dir"`
	Page      int       `json:"page"`
}

// NewState returns a state sorted by sortField descending on page 1.
func NewState(sortField string) State {
	return State{Status: StatusAll, DateRange: RangeAll, SortField: sortField, SortDir: Desc, Page: 1}
}

func (s *State) SetSearch(term string) {
	s.Search = term
	s.Page = 1
}

func (s *State) SetStatus(status string) {
	s.Status = status
	s.Page = 1
}

func (s *State) SetDateRange(r DateRange) {
	s.DateRange = r
	s.Page = 1
}

// ToggleSort flips the direction when field is already active, otherwise
// switches to field descending.
func (s *State) ToggleSort(field string) {
	if s.SortField == field {
		if s.SortDir == Desc {
			s.SortDir = Asc
		} else {
			s.SortDir = Desc
		}
	} else {
		s.SortField = field
		s.SortDir = Desc
	}
	s.Page = 1
}

// SetPage selects a page. Apply clamps it into range.
func (s *State) SetPage(page int) {
	s.Page = page
}

// Page is one page of filtered and sorted records.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
	PageSize   int `json:"page_size"`
}

// Apply filters, sorts and paginates records. It never mutates records and
// returns the same page for the same inputs.
func Apply[T any](records []T, schema Schema[T], st State, now time.Time, loc *time.Location) Page[T] {
	if loc == nil {
		loc = time.Local
	}

	term := strings.ToLower(strings.TrimSpace(st.Search))
	filtered := make([]T, 0, len(records))
	for _, r := range records {
		if !matchesSearch(r, schema.SearchFields, term) {
			continue
		}
		if schema.Status != nil && st.Status != "" && st.Status != StatusAll && schema.Status(r) != st.Status {
			continue
		}
		if schema.Date != nil && !InRange(schema.Date(r), st.DateRange, now, loc) {
			continue
		}
		filtered = append(filtered, r)
	}

	if key, ok := schema.Sort[st.SortField]; ok {
		desc := st.SortDir != Asc
		sort.SliceStable(filtered, func(i, j int) bool {
			c := key.compare(filtered[i], filtered[j])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	total := len(filtered)
	pages := (total + PageSize - 1) / PageSize
	page := ClampPage(st.Page, pages)

	start := (page - 1) * PageSize
	end := min(start+PageSize, total)
	items := filtered[start:end]

	return Page[T]{
		Items:      items,
		Page:       page,
		TotalPages: max(1, pages),
		TotalItems: total,
		PageSize:   PageSize,
	}
}

// ClampPage bounds page into [1, max(1, totalPages)].
func ClampPage(page, totalPages int) int {
	return min(max(page, 1), max(1, totalPages))
}

// InRange reports whether t falls within r relative to now. "today" compares
// calendar days in loc; week and month use an inclusive lower bound.
func InRange(t time.Time, r DateRange, now time.Time, loc *time.Location) bool {
	switch r {
	case RangeToday:
		y1, m1, d1 := t.In(loc).Date()
		y2, m2, d2 := now.In(loc).Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case RangeWeek:
		return !t.Before(now.AddDate(0, 0, -7))
	case RangeMonth:
		return !t.Before(now.AddDate(0, 0, -30))
	default:
		return true
	}
}

func matchesSearch[T any](r T, fields []func(T) string, term string) bool {
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f(r)), term) {
			return true
		}
	}
	return false
}
