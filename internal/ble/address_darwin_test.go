//go:build darwin

package ble

import "testing"

func TestParseAddress(t *testing.T) {
	const want = "2aae64b6-8f24-4643-9302-0ba146f8d9f2"
	for _, in := range []string{want, "2AAE64B6-8F24-4643-9302-0BA146F8D9F2"} {
		addr, err := parseAddress(in)
		if err != nil {
			t.Fatalf("parseAddress(%q) error = %v", in, err)
		}
		if addr.String() != want {
			t.Errorf("parseAddress(%q) = %q, want %q", in, addr.String(), want)
		}
	}
	if _, err := parseAddress("AA:BB:CC:DD:EE:FF"); err == nil {
		t.Error("parseAddress(MAC) succeeded on macOS")
	}
}
