package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/magwarm/internal/ble"
	"github.com/chaz8081/magwarm/internal/payload"
)

// ErrNoDevice is returned when a write is attempted with no connected
// session. No transport call is made.
var ErrNoDevice = errors.New("command: no device connected")

// Target hands out the characteristic of the live session, or nil.
type Target interface {
	Handle() ble.Characteristic
}

// Writer sends commands with write-with-response. There is no queue and
// no retry; concurrent writes reach the device in transport order.
type Writer struct {
	target Target
	codec  payload.Codec
	report func(Command, error)
}

// NewWriter creates a Writer for target. report, if non-nil, is called
// with every outcome (used for metrics).
func NewWriter(target Target, codec payload.Codec, report func(Command, error)) *Writer {
	return &Writer{target: target, codec: codec, report: report}
}

// Write sends cmd to the connected device.
func (w *Writer) Write(ctx context.Context, cmd Command) error {
	err := w.write(ctx, cmd)
	if w.report != nil {
		w.report(cmd, err)
	}
	return err
}

func (w *Writer) write(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	var char ble.Characteristic
	if w.target != nil {
		char = w.target.Handle()
	}
	if char == nil {
		slog.Warn("[CMD] no device", "command", cmd)
		return ErrNoDevice
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Debug("[CMD] send", "command", cmd, "encoding", w.codec)
	if err := char.Write(Encode(cmd, w.codec)); err != nil {
		slog.Error("[CMD] send failed", "command", cmd, "error", err)
		return fmt.Errorf("command: write %s: %w", cmd, err)
	}
	slog.Info("[CMD] sent", "command", cmd)
	return nil
}
