package listview

import (
	"strconv"
	"strings"
)

// ParseState builds a State from query arguments. Supported keys: search,
// status, date, sort, dir and page. Unknown values fall back to defaults.
// A non-empty query without an explicit page starts at page 1.
func ParseState(get func(key string) string, defaultSort string) State {
	st := NewState(defaultSort)
	st.Search = get("search")

	if v := get("status"); v != "" {
		st.Status = v
	}
	switch DateRange(strings.ToLower(get("date"))) {
	case RangeToday:
		st.DateRange = RangeToday
	case RangeWeek:
		st.DateRange = RangeWeek
	case RangeMonth:
		st.DateRange = RangeMonth
	}
	if v := get("sort"); v != "" {
		st.SortField = v
	}
	if strings.EqualFold(get("dir"), string(Asc)) {
		st.SortDir = Asc
	}
	if n, err := strconv.Atoi(get("page")); err == nil {
		st.Page = n
	}
	return st
}
