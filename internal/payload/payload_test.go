package payload

import (
	"errors"
	"testing"
)

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in      string
		want    Codec
		wantErr bool
	}{
		{"", Raw, false},
		{"raw", Raw, false},
		{"base64", Base64, false},
		{"hex", Raw, true},
	}
	for _, tt := range tests {
		got, err := ParseCodec(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCodec(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCodec(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBase64Encode(t *testing.T) {
	got := string(Base64.Encode("powerON"))
	if got != "cG93ZXJPTg==" {
		t.Errorf("Base64.Encode(powerON) = %q, want %q", got, "cG93ZXJPTg==")
	}
}

func TestDecodeEmpty(t *testing.T) {
	for _, c := range []Codec{Raw, Base64} {
		if _, err := c.Decode(nil); !errors.Is(err, ErrEmpty) {
			t.Errorf("%v.Decode(nil) error = %v, want ErrEmpty", c, err)
		}
	}
}

func TestDecodeInvalidBase64(t *testing.T) {
	if _, err := Base64.Decode([]byte("not base64!")); err == nil {
		t.Error("Base64.Decode should fail on invalid input")
	}
}
