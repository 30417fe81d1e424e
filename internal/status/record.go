// Package status decodes warmer telemetry and keeps the latest reading
// fresh by polling the device characteristic.
package status

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/chaz8081/magwarm/internal/payload"
)

// Field marks which keys were present in a status payload.
type Field uint8

const (
	FieldVoltage Field = 1 << iota
	FieldTargetTemp
	FieldPower
	FieldHeater
	FieldTemp
)

// Record is one decoded status payload. Heater and Temp are indexed by
// channel; the device decides how many channels there are.
type Record struct {
	Voltage    float64
	TargetTemp int
	Power      bool
	Heater     []bool
	Temp       []float64

	present Field
}

// wireRecord mirrors the firmware JSON. Pointers distinguish a missing key
// from a zero value.
type wireRecord struct {
	Voltage    *float64  `json:"voltage"`
	TargetTemp *float64  `json:"targetTemp"`
	Power      *bool     `json:"power"`
	Heater     []bool    `json:"heater"`
	Temp       []float64 `json:"temp"`
}

// Decode parses a characteristic value into a Record. Unknown keys are
// ignored and missing keys are left unset (see Has).
func Decode(value []byte, codec payload.Codec) (Record, error) {
	text, err := codec.Decode(value)
	if err != nil {
		return Record{}, fmt.Errorf("status: %w", err)
	}

	var w wireRecord
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return Record{}, fmt.Errorf("status: parse: %w", err)
	}

	var r Record
	if w.Voltage != nil {
		r.Voltage = *w.Voltage
		r.present |= FieldVoltage
	}
	if w.TargetTemp != nil {
		t := math.Round(*w.TargetTemp)
		if math.IsNaN(t) || t < math.MinInt32 || t > math.MaxInt32 {
			return Record{}, fmt.Errorf("status: targetTemp %v out of range", *w.TargetTemp)
		}
		r.TargetTemp = int(t)
		r.present |= FieldTargetTemp
	}
	if w.Power != nil {
		r.Power = *w.Power
		r.present |= FieldPower
	}
	if w.Heater != nil {
		r.Heater = w.Heater
		r.present |= FieldHeater
	}
	if w.Temp != nil {
		r.Temp = w.Temp
		r.present |= FieldTemp
	}
	return r, nil
}

// Has reports whether f was present in the payload.
func (r Record) Has(f Field) bool {
	return r.present&f != 0
}

// Channels returns the number of heater channels reported.
func (r Record) Channels() int {
	return len(r.Heater)
}

// ChannelTemp returns the temperature of channel i. ok is false when the
// channel has no reading or the reading is not a positive number (the
// firmware reports disconnected sensors as 0 or negative values).
func (r Record) ChannelTemp(i int) (t float64, ok bool) {
	if i < 0 || i >= len(r.Temp) {
		return 0, false
	}
	t = r.Temp[i]
	if !validTemp(t) {
		return 0, false
	}
	return t, true
}

// ValidTemps returns only the usable temperature readings, in channel order.
func (r Record) ValidTemps() []float64 {
	var out []float64
	for _, t := range r.Temp {
		if validTemp(t) {
			out = append(out, t)
		}
	}
	return out
}

func validTemp(t float64) bool {
	return t > 0 && !math.IsNaN(t) && !math.IsInf(t, 0)
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (r Record) Clone() Record {
	c := r
	if r.Heater != nil {
		c.Heater = append([]bool(nil), r.Heater...)
	}
	if r.Temp != nil {
		c.Temp = append([]float64(nil), r.Temp...)
	}
	return c
}
