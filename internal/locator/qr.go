package locator

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// qrPayload is the JSON carried by the sticker on the warmer.
type qrPayload struct {
	DeviceID string `json:"deviceId"`
}

// ParseQRPayload extracts the device identifier from QR text of the form
// {"deviceId": "<id>"}. ok is false for anything else.
func ParseQRPayload(text string) (id string, ok bool) {
	var p qrPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return "", false
	}
	id = strings.TrimSpace(p.DeviceID)
	return id, id != ""
}

// CodeScanner turns decoded QR payloads into a device identifier. It
// accepts the first valid payload, then disarms and closes until Arm is
// called. Invalid payloads are skipped and leave it active.
type CodeScanner struct {
	mu      sync.Mutex
	armed   bool
	onScan  func(id string)
	onClose func()
}

// NewCodeScanner returns an armed scanner. onScan receives the identifier
// and onClose fires right after it; either may be nil.
func NewCodeScanner(onScan func(id string), onClose func()) *CodeScanner {
	return &CodeScanner{armed: true, onScan: onScan, onClose: onClose}
}

// Feed offers one decoded payload. It returns true when the payload was
// accepted.
func (c *CodeScanner) Feed(data string) bool {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return false
	}
	id, ok := ParseQRPayload(data)
	if !ok {
		c.mu.Unlock()
		slog.Debug("[SCAN] ignoring QR payload without deviceId")
		return false
	}
	c.armed = false
	onScan, onClose := c.onScan, c.onClose
	c.mu.Unlock()

	slog.Info("[SCAN] QR code scanned", "id", id)
	if onScan != nil {
		onScan(id)
	}
	if onClose != nil {
		onClose()
	}
	return true
}

// Arm re-enables the scanner after a successful scan.
func (c *CodeScanner) Arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
}

// Active reports whether the scanner is waiting for a payload.
func (c *CodeScanner) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// ScanPayloads feeds every payload from src until one is accepted and
// returns its identifier.
func ScanPayloads(ctx context.Context, src <-chan string) (string, error) {
	var id string
	sc := NewCodeScanner(func(v string) { id = v }, nil)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case data, ok := <-src:
			if !ok {
				return "", io.EOF
			}
			if sc.Feed(data) {
				return id, nil
			}
		}
	}
}

// LinePayloads streams non-empty lines of r, as written by a QR decoder
// such as `zbarcam --raw`. The channel closes at EOF or when ctx is done.
func LinePayloads(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
