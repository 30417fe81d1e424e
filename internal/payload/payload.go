// Package payload converts between characteristic values and the UTF-8
// text the warmer firmware speaks.
//
// Some BLE bindings hand characteristic values around as base64 strings,
// and firmware built against them stores the encoded text verbatim. The
// Base64 codec covers that case; Raw puts the UTF-8 bytes on air as-is.
package payload

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Codec selects how text is represented inside a characteristic value.
type Codec int

const (
	// Raw sends UTF-8 bytes unchanged.
	Raw Codec = iota
	// Base64 sends the standard base64 encoding of the UTF-8 bytes.
	Base64
)

// ErrEmpty is returned when decoding a zero-length value.
var ErrEmpty = errors.New("payload: empty value")

// ParseCodec maps a config value ("raw" or "base64") to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "raw":
		return Raw, nil
	case "base64":
		return Base64, nil
	default:
		return Raw, fmt.Errorf("payload: unknown encoding %q", name)
	}
}

func (c Codec) String() string {
	switch c {
	case Base64:
		return "base64"
	default:
		return "raw"
	}
}

// Encode wraps text for writing to a characteristic.
func (c Codec) Encode(text string) []byte {
	if c == Base64 {
		return []byte(base64.StdEncoding.EncodeToString([]byte(text)))
	}
	return []byte(text)
}

// Decode unwraps a characteristic value into text.
func (c Codec) Decode(value []byte) (string, error) {
	if len(value) == 0 {
		return "", ErrEmpty
	}
	if c == Base64 {
		b, err := base64.StdEncoding.DecodeString(string(value))
		if err != nil {
			return "", fmt.Errorf("payload: base64: %w", err)
		}
		return string(b), nil
	}
	return string(value), nil
}
