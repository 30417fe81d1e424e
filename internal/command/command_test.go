package command

import (
	"errors"
	"testing"

	"github.com/chaz8081/magwarm/internal/payload"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		got  Command
		want string
	}{
		{TargetTemp(45), "targetTemp:45"},
		{HeaterOn(2), "heaterON:2"},
		{HeaterOff(0), "heaterOFF:0"},
		{Heater(1, true), "heaterON:1"},
		{Heater(1, false), "heaterOFF:1"},
		{Power(true), "powerON"},
		{Power(false), "powerOFF"},
	}
	for _, tt := range tests {
		if string(tt.got) != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
		if err := tt.got.Validate(); err != nil {
			t.Errorf("%q.Validate() error = %v", tt.got, err)
		}
	}
}

func TestParse(t *testing.T) {
	valid := []string{"targetTemp:30", "heaterON:12", "heaterOFF:0", "powerON", "powerOFF"}
	for _, s := range valid {
		if _, err := Parse(s); err != nil {
			t.Errorf("Parse(%q) error = %v", s, err)
		}
	}

	invalid := []string{"", "targetTemp", "targetTemp:", "targetTemp:-5", "heaterON", "powerON:1", "poweron", "targetTemp:45\n", "reboot"}
	for _, s := range invalid {
		if _, err := Parse(s); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalid", s, err)
		}
	}
	if err := TargetTemp(-1).Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("TargetTemp(-1).Validate() error = %v, want ErrInvalid", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, codec := range []payload.Codec{payload.Raw, payload.Base64} {
		value := Encode(TargetTemp(45), codec)
		got, err := DecodeText(value, codec)
		if err != nil {
			t.Fatalf("%v: DecodeText() error = %v", codec, err)
		}
		if got != "targetTemp:45" {
			t.Errorf("%v: round trip = %q, want %q", codec, got, "targetTemp:45")
		}
	}
}

func TestVerb(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{TargetTemp(45), "targetTemp"},
		{HeaterOn(3), "heaterON"},
		{HeaterOff(0), "heaterOFF"},
		{PowerOnCmd, "powerON"},
		{PowerOffCmd, "powerOFF"},
	}
	for _, tt := range tests {
		if got := tt.cmd.Verb(); got != tt.want {
			t.Errorf("%q.Verb() = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
