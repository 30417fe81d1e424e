package status

import (
	"math"
	"reflect"
	"testing"

	"github.com/chaz8081/magwarm/internal/payload"
)

func TestDecodeFullPayload(t *testing.T) {
	raw := `{"voltage":11.8,"targetTemp":45,"power":true,"heater":[true,false,true],"temp":[41.5,0,39.25]}`
	r, err := Decode([]byte(raw), payload.Raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if r.Voltage != 11.8 {
		t.Errorf("Voltage = %v, want 11.8", r.Voltage)
	}
	if r.TargetTemp != 45 {
		t.Errorf("TargetTemp = %d, want 45", r.TargetTemp)
	}
	if !r.Power {
		t.Error("Power = false, want true")
	}
	if r.Channels() != 3 {
		t.Errorf("Channels() = %d, want 3", r.Channels())
	}
	for _, f := range []Field{FieldVoltage, FieldTargetTemp, FieldPower, FieldHeater, FieldTemp} {
		if !r.Has(f) {
			t.Errorf("Has(%d) = false, want true", f)
		}
	}
}

func TestDecodeBase64Payload(t *testing.T) {
	value := payload.Base64.Encode(`{"voltage":12.0,"heater":[false]}`)
	r, err := Decode(value, payload.Base64)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if r.Voltage != 12.0 || len(r.Heater) != 1 {
		t.Errorf("Decode() = %+v", r)
	}
}

func TestDecodeMissingKeys(t *testing.T) {
	r, err := Decode([]byte(`{"voltage":12.1,"firmware":"1.2"}`), payload.Raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !r.Has(FieldVoltage) {
		t.Error("voltage should be present")
	}
	if r.Has(FieldPower) || r.Has(FieldHeater) || r.Has(FieldTemp) || r.Has(FieldTargetTemp) {
		t.Errorf("missing keys reported present: %+v", r)
	}
	if r.Channels() != 0 {
		t.Errorf("Channels() = %d, want 0", r.Channels())
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{"empty", nil},
		{"not json", []byte("hello")},
		{"wrong type", []byte(`{"heater":"on"}`)},
		{"target above int range", []byte(`{"targetTemp":1e300}`)},
		{"target below int range", []byte(`{"targetTemp":-1e19}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.value, payload.Raw); err == nil {
				t.Error("Decode() should fail")
			}
		})
	}
}

func TestDecodeTargetTempRounds(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"targetTemp":44.5}`, 45},
		{`{"targetTemp":-3.4}`, -3},
		{`{"targetTemp":2147483647}`, math.MaxInt32},
	}
	for _, tt := range tests {
		r, err := Decode([]byte(tt.raw), payload.Raw)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", tt.raw, err)
		}
		if r.TargetTemp != tt.want {
			t.Errorf("Decode(%s).TargetTemp = %d, want %d", tt.raw, r.TargetTemp, tt.want)
		}
	}
}

func TestChannelTempFiltersInvalid(t *testing.T) {
	r := Record{Temp: []float64{40, 0, -3, math.NaN(), 38.5}}

	if got := r.ValidTemps(); !reflect.DeepEqual(got, []float64{40, 38.5}) {
		t.Errorf("ValidTemps() = %v, want [40 38.5]", got)
	}

	// Indexing stays aligned with heater channels.
	if v, ok := r.ChannelTemp(4); !ok || v != 38.5 {
		t.Errorf("ChannelTemp(4) = %v, %v; want 38.5, true", v, ok)
	}
	for _, i := range []int{1, 2, 3, 5, -1} {
		if _, ok := r.ChannelTemp(i); ok {
			t.Errorf("ChannelTemp(%d) ok = true, want false", i)
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	r := Record{Heater: []bool{true}, Temp: []float64{40}}
	c := r.Clone()
	c.Heater[0] = false
	c.Temp[0] = 0
	if !r.Heater[0] || r.Temp[0] != 40 {
		t.Error("Clone() shares slices with the original")
	}
}
