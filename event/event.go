// Package event parses the FHEM inform stream into structured records
// and filters them client-side.
//
// The wire format is newline-delimited text and has changed across
// server versions, so the parser accepts the known variants:
//
//	2023-01-15 12:30:45.123 SWITCH lamp1 state: on
//	lamp1:SWITCH:state: on
//	lamp1 state: on
//
// The first is the "inform timer" form with an optional fractional
// second. The compact colon form carries no timestamp, the bare form
// neither timestamp nor device type; both fall back to the receive
// time. Within the tail, "reading: value [unit]" names a reading,
// anything else is a state change.
package event

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360/gofhem/errors"
	"github.com/c360/gofhem/pkg/fhemtime"
)

var (
	timerPrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?) (.+)$`)
	parenUnit   = regexp.MustCompile(`\s*\(([^)]*)\)$`)
	gluedUnit   = regexp.MustCompile(`^(-?[0-9]+(?:\.[0-9]+)?)\s*([%°a-zA-Z][a-zA-Z0-9/%°]*)$`)
)

// Event is one server-pushed notification. The JSON shape is the
// public contract consumers code against.
type Event struct {
	Time       time.Time `json:"timestamp"`
	DeviceType string    `json:"devicetype"`
	Device     string    `json:"device"`
	Reading    string    `json:"reading"`
	Value      any       `json:"value"`
	Unit       string    `json:"unit"`
}

// String renders the event in the timer wire form, mainly for logs.
func (e Event) String() string {
	return fmt.Sprintf("%s %s %s %s: %v %s",
		fhemtime.Format(e.Time), e.DeviceType, e.Device, e.Reading, e.Value, e.Unit)
}

// ParseLine parses one line of the inform stream. Lines without a
// timestamp get receivedAt as their event time. Numeric values coerce
// to int64 or float64 and a trailing unit is split off; everything
// else stays a string value with an empty unit.
func ParseLine(line string, receivedAt time.Time) (Event, error) {
	return parse(line, receivedAt, false)
}

// ParseLineRaw is ParseLine without value interpretation: the tail
// after the reading name is delivered verbatim with an empty unit.
func ParseLineRaw(line string, receivedAt time.Time) (Event, error) {
	return parse(line, receivedAt, true)
}

func parse(line string, receivedAt time.Time, raw bool) (Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, parseErr("empty line")
	}

	ev := Event{Time: receivedAt}
	tail := ""

	if m := timerPrefix.FindStringSubmatch(line); m != nil {
		ts, err := fhemtime.Parse(m[1])
		if err != nil {
			return Event{}, parseErr("decode timestamp")
		}
		parts := strings.SplitN(m[2], " ", 3)
		if len(parts) < 3 {
			return Event{}, parseErr("missing value field")
		}
		ev.Time = ts
		ev.DeviceType = parts[0]
		ev.Device = parts[1]
		tail = parts[2]
	} else if strings.Count(firstToken(line), ":") >= 2 {
		parts := strings.SplitN(line, ":", 3)
		if parts[0] == "" || parts[1] == "" {
			return Event{}, parseErr("missing device field")
		}
		ev.Device = parts[0]
		ev.DeviceType = parts[1]
		tail = parts[2]
	} else {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) < 2 {
			return Event{}, parseErr("missing value field")
		}
		ev.Device = parts[0]
		tail = parts[1]
	}

	reading, expr, err := splitTail(tail)
	if err != nil {
		return Event{}, err
	}
	ev.Reading = reading

	if raw {
		ev.Value = expr
		return ev, nil
	}

	ev.Value, ev.Unit = parseValue(expr)
	if s, ok := ev.Value.(string); ok && s == "" {
		return Event{}, parseErr("missing value field")
	}
	return ev, nil
}

// splitTail separates the reading name from the value expression.
// "reading: expr" and the compact "reading:expr" both name a reading;
// a tail without one is a state change.
func splitTail(tail string) (string, string, error) {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return "", "", parseErr("missing value field")
	}

	token := firstToken(tail)
	idx := strings.Index(token, ":")
	if idx < 0 {
		return "state", tail, nil
	}

	reading := strings.TrimSpace(tail[:idx])
	expr := strings.TrimSpace(tail[idx+1:])
	if reading == "" {
		return "", "", parseErr("missing reading field")
	}
	if expr == "" {
		return "", "", parseErr("missing value field")
	}
	return reading, expr, nil
}

// parseValue interprets a value expression: "21.5", "21.5 (Celsius)",
// "52 %", "21.5C" and "50%" all yield a number plus unit, anything
// else passes through as a string.
func parseValue(expr string) (any, string) {
	unit := ""
	if m := parenUnit.FindStringSubmatch(expr); m != nil {
		unit = m[1]
		expr = strings.TrimSpace(expr[:len(expr)-len(m[0])])
	}

	tokens := strings.Fields(expr)
	switch {
	case len(tokens) == 1:
		if v, ok := numeric(tokens[0]); ok {
			return v, unit
		}
		if unit == "" {
			if m := gluedUnit.FindStringSubmatch(tokens[0]); m != nil {
				if v, ok := numeric(m[1]); ok {
					return v, m[2]
				}
			}
		}
	case len(tokens) == 2 && unit == "":
		if v, ok := numeric(tokens[0]); ok {
			return v, tokens[1]
		}
	}
	return expr, unit
}

// numeric coerces a single token. Unlike jsonlist2 values the event
// stream carries signed readings, so negatives are accepted.
func numeric(s string) (any, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

func firstToken(s string) string {
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx]
	}
	return s
}

func parseErr(action string) error {
	return errors.Wrap(errors.ErrParsingFailed, "event", "ParseLine", action)
}
