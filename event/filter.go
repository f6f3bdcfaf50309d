package event

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/c360/gofhem/errors"
)

// Filter is one field-match dictionary. Keys name event fields
// (device, devtype, reading, value, unit), a not_ prefix negates the
// match. Values are regular expressions matched against the whole
// field, so a literal string matches only itself.
type Filter map[string]string

// filterFields maps filter keys to event field accessors. The value
// field matches against its printed form.
var filterFields = map[string]func(Event) string{
	"device":  func(e Event) string { return e.Device },
	"devtype": func(e Event) string { return e.DeviceType },
	"reading": func(e Event) string { return e.Reading },
	"value":   func(e Event) string { return fmt.Sprint(e.Value) },
	"unit":    func(e Event) string { return e.Unit },
}

type condition struct {
	field  func(Event) string
	re     *regexp.Regexp
	negate bool
}

type compiledFilter struct {
	conditions []condition
}

func (cf compiledFilter) match(ev Event) bool {
	for _, c := range cf.conditions {
		if c.re.MatchString(c.field(ev)) == c.negate {
			return false
		}
	}
	return true
}

// FilterList is an ordered set of filters. An event passes when at
// least one filter's full field set matches; an empty list passes
// everything.
type FilterList struct {
	filters []compiledFilter
}

// NewFilterList compiles the filters. Unknown keys and patterns that
// do not compile report ErrInvalidConfig.
func NewFilterList(filters ...Filter) (*FilterList, error) {
	fl := &FilterList{filters: make([]compiledFilter, 0, len(filters))}
	for i, f := range filters {
		cf := compiledFilter{conditions: make([]condition, 0, len(f))}

		// Stable compile order so error reports are deterministic
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			field, negate := strings.CutPrefix(key, "not_")
			accessor, ok := filterFields[field]
			if !ok {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w: filter %d key %q", errors.ErrInvalidConfig, i, key),
					"event", "NewFilterList", "resolve filter key")
			}
			re, err := regexp.Compile("^(?:" + f[key] + ")$")
			if err != nil {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w: filter %d key %q: %v", errors.ErrInvalidConfig, i, key, err),
					"event", "NewFilterList", "compile filter pattern")
			}
			cf.conditions = append(cf.conditions, condition{field: accessor, re: re, negate: negate})
		}
		fl.filters = append(fl.filters, cf)
	}
	return fl, nil
}

// Match reports whether the event passes the filter list. A nil or
// empty list passes everything.
func (fl *FilterList) Match(ev Event) bool {
	if fl == nil || len(fl.filters) == 0 {
		return true
	}
	for _, cf := range fl.filters {
		if cf.match(ev) {
			return true
		}
	}
	return false
}

// Len returns the number of filters.
func (fl *FilterList) Len() int {
	if fl == nil {
		return 0
	}
	return len(fl.filters)
}
