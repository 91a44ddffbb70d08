package websocket

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
)

// MaxFilterYears bounds how many fiscal years one subscriber may follow
const MaxFilterYears = 10

// YearFilter is the set of fiscal years a subscriber follows. An empty
// filter follows every year.
type YearFilter map[int]struct{}

// ParseYearFilter parses a comma separated year list such as "2024,2025".
// Blank input yields an empty filter.
func ParseYearFilter(raw string) (YearFilter, error) {
	filter := make(YearFilter)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		year, err := strconv.Atoi(part)
		if err != nil || year < domain.MinFiscalYear || year > domain.MaxFiscalYear {
			return nil, fmt.Errorf("year %q: %w", part, domain.ErrInvalidFiscalYear)
		}
		filter[year] = struct{}{}
	}
	if len(filter) > MaxFilterYears {
		return nil, fmt.Errorf("at most %d years: %w", MaxFilterYears, domain.ErrInvalidInput)
	}
	return filter, nil
}

// Match reports whether an event for fiscalYear passes the filter.
// Unscoped events (year zero) always pass.
func (f YearFilter) Match(fiscalYear int) bool {
	if len(f) == 0 || fiscalYear == 0 {
		return true
	}
	_, ok := f[fiscalYear]
	return ok
}

// Years returns the followed years in ascending order
func (f YearFilter) Years() []int {
	years := make([]int, 0, len(f))
	for y := range f {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
