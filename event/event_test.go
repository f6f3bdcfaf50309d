package event

import (
	"testing"
	"time"

	"github.com/c360/gofhem/errors"
	"github.com/c360/gofhem/pkg/fhemtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receivedAt = time.Date(2023, 1, 15, 12, 31, 0, 0, time.Local)

func TestParseLineTimerFormat(t *testing.T) {
	ev, err := ParseLine("2023-01-15 12:30:45 SWITCH lamp1 state: on", receivedAt)
	require.NoError(t, err)

	assert.True(t, ev.Time.Equal(fhemtime.MustParse("2023-01-15 12:30:45")))
	assert.Equal(t, "SWITCH", ev.DeviceType)
	assert.Equal(t, "lamp1", ev.Device)
	assert.Equal(t, "state", ev.Reading)
	assert.Equal(t, "on", ev.Value)
	assert.Equal(t, "", ev.Unit)
}

func TestParseLineFractionalSeconds(t *testing.T) {
	ev, err := ParseLine("2023-01-15 12:30:45.123 HM_CC_RT_DN thermo1 temperature: 21.5 (Celsius)", receivedAt)
	require.NoError(t, err)

	expected := fhemtime.MustParse("2023-01-15 12:30:45.123")
	assert.True(t, ev.Time.Equal(expected), "expected %v, got %v", expected, ev.Time)
	assert.Equal(t, 21.5, ev.Value)
	assert.Equal(t, "Celsius", ev.Unit)
}

func TestParseLineCompactFormat(t *testing.T) {
	ev, err := ParseLine("device1:reading1:temperature:21.5 (Celsius)", receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "device1", ev.Device)
	assert.Equal(t, "reading1", ev.DeviceType)
	assert.Equal(t, "temperature", ev.Reading)
	assert.Equal(t, 21.5, ev.Value)
	assert.Equal(t, "Celsius", ev.Unit)
	assert.True(t, ev.Time.Equal(receivedAt), "compact lines carry no timestamp")
}

func TestParseLineBareFormat(t *testing.T) {
	ev, err := ParseLine("lamp1 state: on", receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "lamp1", ev.Device)
	assert.Equal(t, "", ev.DeviceType)
	assert.Equal(t, "state", ev.Reading)
	assert.Equal(t, "on", ev.Value)
	assert.True(t, ev.Time.Equal(receivedAt))
}

func TestParseLineStateChange(t *testing.T) {
	// No "reading:" token, the whole tail is a state value
	ev, err := ParseLine("2023-01-15 12:30:45 dummy lamp1 off", receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "state", ev.Reading)
	assert.Equal(t, "off", ev.Value)
}

func TestParseLineValues(t *testing.T) {
	tests := []struct {
		name          string
		tail          string
		expectedValue any
		expectedUnit  string
	}{
		{"integer with unit token", "humidity: 52 %", int64(52), "%"},
		{"float with paren unit", "temperature: 21.5 (Celsius)", 21.5, "Celsius"},
		{"negative float", "temperature: -5.5 (Celsius)", -5.5, "Celsius"},
		{"glued unit", "temperature: 21.5C", 21.5, "C"},
		{"glued percent", "battery: 50%", int64(50), "%"},
		{"bare integer", "brightness: 128", int64(128), ""},
		{"word value", "state: on", "on", ""},
		{"multi word value", "state: set_desired-temp 21.5", "set_desired-temp 21.5", ""},
		{"version stays string", "firmware: 1.2.3", "1.2.3", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseLine("2023-01-15 12:30:45 dummy dev1 "+tt.tail, receivedAt)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, ev.Value)
			assert.Equal(t, tt.expectedUnit, ev.Unit)
		})
	}
}

func TestParseLineRaw(t *testing.T) {
	ev, err := ParseLineRaw("2023-01-15 12:30:45 HM_CC_RT_DN thermo1 temperature: 21.5 (Celsius)", receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "temperature", ev.Reading)
	assert.Equal(t, "21.5 (Celsius)", ev.Value)
	assert.Equal(t, "", ev.Unit)
}

func TestParseLineMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"single token", "lamp1"},
		{"timer line without tail", "2023-01-15 12:30:45 dummy lamp1"},
		{"reading without value", "lamp1 temperature:"},
		{"unit without value", "lamp1 power: (W)"},
		{"compact missing device", ":dummy:state: on"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line, receivedAt)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrParsingFailed)
		})
	}
}

func TestEventString(t *testing.T) {
	ev := Event{
		Time:       fhemtime.MustParse("2023-01-15 12:30:45"),
		DeviceType: "SWITCH",
		Device:     "lamp1",
		Reading:    "state",
		Value:      "on",
	}
	assert.Contains(t, ev.String(), "lamp1 state: on")
}
