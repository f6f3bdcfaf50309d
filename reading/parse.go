package reading

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360/gofhem/errors"
	"github.com/c360/gofhem/pkg/fhemtime"
)

var (
	intPattern   = regexp.MustCompile(`^[0-9]+$`)
	floatPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)
	unitSuffix   = regexp.MustCompile(`\s*\(([^)]*)\)\s*$`)
)

// Wire shapes of the jsonlist2 envelope.
type wireList struct {
	Arg     string       `json:"Arg"`
	Results []wireDevice `json:"Results"`
	Total   int          `json:"totalResultsReturned"`
}

type wireDevice struct {
	Name       string                 `json:"Name"`
	Internals  map[string]any         `json:"Internals"`
	Readings   map[string]wireReading `json:"Readings"`
	Attributes map[string]any         `json:"Attributes"`
}

type wireReading struct {
	Value any    `json:"Value"`
	Time  string `json:"Time"`
}

// ParseList decodes a jsonlist2 response and coerces the values to
// native types. An empty payload reports ErrNoResult, malformed JSON
// an invalid-class error.
func ParseList(data []byte) (*List, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.Wrap(errors.ErrNoResult, "reading", "ParseList", "decode response")
	}

	var wire wireList
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, errors.WrapInvalid(err, "reading", "ParseList", "decode jsonlist2")
	}

	list := &List{
		Arg:     wire.Arg,
		Total:   wire.Total,
		Devices: make([]Device, 0, len(wire.Results)),
	}
	for _, w := range wire.Results {
		list.Devices = append(list.Devices, convertDevice(w))
	}
	return list, nil
}

func convertDevice(w wireDevice) Device {
	d := Device{
		Name:       w.Name,
		Internals:  coerceMap(w.Internals),
		Attributes: coerceMap(w.Attributes),
		Readings:   make(map[string]Reading, len(w.Readings)),
	}
	for name, r := range w.Readings {
		d.Readings[name] = Reading{
			Value: coerceAny(r.Value),
			Time:  parseTime(r.Time),
		}
	}
	return d
}

func parseTime(s string) time.Time {
	t, err := fhemtime.Parse(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Coerce converts the string forms FHEM sends into native types:
// unsigned integers, decimal floats and timestamps. Anything else
// passes through unchanged. Signed numbers stay strings, matching how
// the server itself treats them in jsonlist2 output.
func Coerce(s string) any {
	switch {
	case intPattern.MatchString(s):
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	case floatPattern.MatchString(s):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case fhemtime.IsTimestamp(s):
		if t, err := fhemtime.Parse(s); err == nil {
			return t
		}
	}
	return s
}

// coerceAny applies Coerce through nested containers.
func coerceAny(v any) any {
	switch t := v.(type) {
	case string:
		return Coerce(t)
	case map[string]any:
		return coerceMap(t)
	case []any:
		for i, e := range t {
			t[i] = coerceAny(e)
		}
		return t
	default:
		return v
	}
}

func coerceMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = coerceAny(v)
	}
	return m
}

// ParseTextReading parses the plain text form FHEM uses outside of
// jsonlist2, "name: value (unit)". Name and unit are optional on the
// wire, the unit decoration is dropped. The value coerces like a
// jsonlist2 value; receivedAt becomes the reading time since the text
// form carries none.
func ParseTextReading(data []byte, receivedAt time.Time) (string, Reading, error) {
	line := firstLine(data)
	if line == "" {
		return "", Reading{}, errors.Wrap(errors.ErrNoResult,
			"reading", "ParseTextReading", "empty response")
	}

	name := ""
	value := line
	if idx := strings.Index(line, ": "); idx >= 0 {
		name = strings.TrimSpace(line[:idx])
		value = strings.TrimSpace(line[idx+2:])
	}
	value = strings.TrimSpace(unitSuffix.ReplaceAllString(value, ""))
	if value == "" {
		return "", Reading{}, errors.Wrap(errors.ErrParsingFailed,
			"reading", "ParseTextReading", "extract value")
	}

	return name, Reading{Value: Coerce(value), Time: receivedAt}, nil
}

func firstLine(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}
