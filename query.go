package gofhem

import (
	"strings"
	"time"
)

// query collects devspec filters for one jsonlist2 call. Field filters
// render in the order the server documentation lists them, custom
// filters follow in call order.
type query struct {
	name, notName       []string
	state, notState     []string
	group, notGroup     []string
	room, notRoom       []string
	devtype, notDevtype []string
	custom              []customFilter

	caseSensitive bool
	timeout       time.Duration
}

type customFilter struct {
	key      string
	patterns []string
	negate   bool
}

// QueryOption narrows a query operation.
type QueryOption func(*query)

func buildQuery(opts []QueryOption) *query {
	q := &query{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// WithName restricts the query to devices matching the given name
// patterns.
func WithName(patterns ...string) QueryOption {
	return func(q *query) { q.name = append(q.name, patterns...) }
}

// WithoutName excludes devices matching the given name patterns.
func WithoutName(patterns ...string) QueryOption {
	return func(q *query) { q.notName = append(q.notName, patterns...) }
}

// WithState restricts the query by the STATE internal.
func WithState(patterns ...string) QueryOption {
	return func(q *query) { q.state = append(q.state, patterns...) }
}

// WithoutState excludes devices by the STATE internal.
func WithoutState(patterns ...string) QueryOption {
	return func(q *query) { q.notState = append(q.notState, patterns...) }
}

// WithGroup restricts the query by the group attribute.
func WithGroup(patterns ...string) QueryOption {
	return func(q *query) { q.group = append(q.group, patterns...) }
}

// WithoutGroup excludes devices by the group attribute.
func WithoutGroup(patterns ...string) QueryOption {
	return func(q *query) { q.notGroup = append(q.notGroup, patterns...) }
}

// WithRoom restricts the query by the room attribute.
func WithRoom(patterns ...string) QueryOption {
	return func(q *query) { q.room = append(q.room, patterns...) }
}

// WithoutRoom excludes devices by the room attribute.
func WithoutRoom(patterns ...string) QueryOption {
	return func(q *query) { q.notRoom = append(q.notRoom, patterns...) }
}

// WithDeviceType restricts the query by the TYPE internal.
func WithDeviceType(patterns ...string) QueryOption {
	return func(q *query) { q.devtype = append(q.devtype, patterns...) }
}

// WithoutDeviceType excludes devices by the TYPE internal.
func WithoutDeviceType(patterns ...string) QueryOption {
	return func(q *query) { q.notDevtype = append(q.notDevtype, patterns...) }
}

// WithFilter restricts the query by any reading, attribute or internal.
func WithFilter(key string, patterns ...string) QueryOption {
	return func(q *query) {
		q.custom = append(q.custom, customFilter{key: key, patterns: patterns})
	}
}

// WithoutFilter excludes devices by any reading, attribute or internal.
func WithoutFilter(key string, patterns ...string) QueryOption {
	return func(q *query) {
		q.custom = append(q.custom, customFilter{key: key, patterns: patterns, negate: true})
	}
}

// CaseSensitive switches the devspec compare from the ~ regex form to
// the = exact form.
func CaseSensitive() QueryOption {
	return func(q *query) { q.caseSensitive = true }
}

// WithTimeout overrides the response window for this query.
func WithTimeout(d time.Duration) QueryOption {
	return func(q *query) { q.timeout = d }
}

// devspec renders the FHEM device specification, filters chained with
// :FILTER=. An unfiltered query renders empty.
func (q *query) devspec() string {
	compare := "~"
	if q.caseSensitive {
		compare = "="
	}

	var filters []string
	add := func(key string, patterns []string, negate bool) {
		if len(patterns) == 0 {
			return
		}
		op := compare
		if negate {
			op = "!" + compare
		}
		filters = append(filters, key+op+strings.Join(patterns, ","))
	}

	add("NAME", q.name, false)
	add("NAME", q.notName, true)
	add("STATE", q.state, false)
	add("STATE", q.notState, true)
	add("group", q.group, false)
	add("group", q.notGroup, true)
	add("room", q.room, false)
	add("room", q.notRoom, true)
	add("TYPE", q.devtype, false)
	add("TYPE", q.notDevtype, true)
	for _, c := range q.custom {
		add(c.key, c.patterns, c.negate)
	}

	return strings.Join(filters, ":FILTER=")
}

// command renders the full jsonlist2 command for this query.
func (q *query) command() string {
	if spec := q.devspec(); spec != "" {
		return "jsonlist2 " + spec
	}
	return "jsonlist2"
}
