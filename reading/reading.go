// Package reading parses FHEM query responses into native types.
//
// The jsonlist2 command is the workhorse: it returns every matched
// device with its internals, readings and attributes. FHEM serializes
// almost everything as strings, so parsing coerces the well-known
// shapes back into Go types: unsigned integers, decimal floats and
// "YYYY-MM-DD HH:MM:SS" timestamps. Other commands answer in a plain
// "name: value (unit)" text form, covered by ParseTextReading.
package reading

import (
	"time"
)

// Reading is one device reading with the time it last changed.
// A zero Time means the update time is unknown.
type Reading struct {
	Value any
	Time  time.Time
}

// Device is one jsonlist2 result.
type Device struct {
	Name       string
	Internals  map[string]any
	Readings   map[string]Reading
	Attributes map[string]any
}

// List is a parsed jsonlist2 response.
type List struct {
	// Arg is the device specification the server resolved.
	Arg string

	// Devices holds the matched devices in server order.
	Devices []Device

	// Total is the server-reported result count.
	Total int
}

// narrow copies a device section, optionally restricted to the given
// entry names. Unknown names are simply absent from the copy.
func narrow[V any](section map[string]V, names []string) map[string]V {
	if len(names) == 0 {
		out := make(map[string]V, len(section))
		for k, v := range section {
			out[k] = v
		}
		return out
	}
	out := make(map[string]V, len(names))
	for _, n := range names {
		if v, ok := section[n]; ok {
			out[n] = v
		}
	}
	return out
}

// States returns the state reading value per device. Devices without a
// state reading are skipped.
func (l *List) States() map[string]any {
	out := make(map[string]any, len(l.Devices))
	for _, d := range l.Devices {
		if r, ok := d.Readings["state"]; ok {
			out[d.Name] = r.Value
		}
	}
	return out
}

// Readings returns the readings per device, optionally narrowed to the
// given reading names. Devices with nothing left after narrowing are
// dropped.
func (l *List) Readings(names ...string) map[string]map[string]Reading {
	out := make(map[string]map[string]Reading, len(l.Devices))
	for _, d := range l.Devices {
		if section := narrow(d.Readings, names); len(section) > 0 {
			out[d.Name] = section
		}
	}
	return out
}

// ReadingValues is Readings projected to the values alone.
func (l *List) ReadingValues(names ...string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(l.Devices))
	for _, d := range l.Devices {
		section := narrow(d.Readings, names)
		if len(section) == 0 {
			continue
		}
		values := make(map[string]any, len(section))
		for k, r := range section {
			values[k] = r.Value
		}
		out[d.Name] = values
	}
	return out
}

// ReadingTimes is Readings projected to the update times alone.
func (l *List) ReadingTimes(names ...string) map[string]map[string]time.Time {
	out := make(map[string]map[string]time.Time, len(l.Devices))
	for _, d := range l.Devices {
		section := narrow(d.Readings, names)
		if len(section) == 0 {
			continue
		}
		times := make(map[string]time.Time, len(section))
		for k, r := range section {
			times[k] = r.Time
		}
		out[d.Name] = times
	}
	return out
}

// Attributes returns the attributes per device, optionally narrowed to
// the given attribute names.
func (l *List) Attributes(names ...string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(l.Devices))
	for _, d := range l.Devices {
		if section := narrow(d.Attributes, names); len(section) > 0 {
			out[d.Name] = section
		}
	}
	return out
}

// Internals returns the internals per device, optionally narrowed to
// the given internal names.
func (l *List) Internals(names ...string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(l.Devices))
	for _, d := range l.Devices {
		if section := narrow(d.Internals, names); len(section) > 0 {
			out[d.Name] = section
		}
	}
	return out
}

// Device returns the named device, or nil when the list does not
// contain it.
func (l *List) Device(name string) *Device {
	for i := range l.Devices {
		if l.Devices[i].Name == name {
			return &l.Devices[i]
		}
	}
	return nil
}
