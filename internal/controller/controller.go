// Package controller keeps the user's requested warmer settings and turns
// changes to them into commands.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/magwarm/internal/command"
)

// ErrOutOfRange is returned when a target temperature falls outside the
// configured bounds. No command is sent.
var ErrOutOfRange = errors.New("controller: target temperature out of range")

// Sender writes one command to the device. *command.Writer satisfies it.
type Sender interface {
	Write(ctx context.Context, cmd command.Command) error
}

// Policy decides what happens to a requested value when its command fails.
type Policy int

const (
	// Keep leaves the requested value in place after a failed write.
	Keep Policy = iota
	// Revert restores the previous value after a failed write.
	Revert
)

// ParsePolicy maps a commands.on_failure value to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "keep":
		return Keep, nil
	case "revert":
		return Revert, nil
	default:
		return Keep, fmt.Errorf("controller: unknown failure policy %q", name)
	}
}

func (p Policy) String() string {
	if p == Revert {
		return "revert"
	}
	return "keep"
}

// Defaults for the target temperature control.
const (
	DefaultTargetMin  = 30
	DefaultTargetMax  = 60
	DefaultTargetTemp = 40
)

// Options configures a Controller. Zero values fall back to the defaults.
type Options struct {
	TargetMin int
	TargetMax int
	Initial   int // starting target temperature, clamped into range
	Channels  int // heater channels known up front; see SetChannels
	OnFailure Policy
}

// State is the locally requested configuration. It reflects what the user
// asked for, not what the device last reported.
type State struct {
	TargetTemp int
	HeaterOff  []bool // indexed by channel; missing entries mean on
	PowerOn    bool
}

// Controller holds the requested warmer settings. A change is applied
// locally, then sent once; nothing is queued or retried.
type Controller struct {
	sender Sender
	opts   Options

	mu       sync.Mutex
	state    State
	channels int
}

// New creates a Controller that sends through sender.
func New(sender Sender, opts Options) *Controller {
	if opts.TargetMin == 0 && opts.TargetMax == 0 {
		opts.TargetMin, opts.TargetMax = DefaultTargetMin, DefaultTargetMax
	}
	if opts.Initial == 0 {
		opts.Initial = DefaultTargetTemp
	}
	opts.Initial = min(max(opts.Initial, opts.TargetMin), opts.TargetMax)
	return &Controller{
		sender: sender,
		opts:     opts,
		state:    State{TargetTemp: opts.Initial, PowerOn: true},
		channels: max(opts.Channels, 0),
	}
}

// State returns a copy of the requested configuration.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.HeaterOff = append([]bool(nil), c.state.HeaterOff...)
	return st
}

// SetChannels records how many heater channels the device reports. Until
// it is called with n > 0, every heater toggle is rejected.
func (c *Controller) SetChannels(n int) {
	c.mu.Lock()
	c.channels = max(n, 0)
	c.mu.Unlock()
}

// Channels returns the heater channel count last reported.
func (c *Controller) Channels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels
}

// Bounds returns the accepted target temperature range.
func (c *Controller) Bounds() (lo, hi int) {
	return c.opts.TargetMin, c.opts.TargetMax
}

// SetTargetTemp requests a new target temperature in degrees Celsius.
func (c *Controller) SetTargetTemp(ctx context.Context, celsius int) error {
	if celsius < c.opts.TargetMin || celsius > c.opts.TargetMax {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, celsius, c.opts.TargetMin, c.opts.TargetMax)
	}

	c.mu.Lock()
	prev := c.state.TargetTemp
	c.state.TargetTemp = celsius
	c.mu.Unlock()

	err := c.sender.Write(ctx, command.TargetTemp(celsius))
	if err != nil && c.opts.OnFailure == Revert {
		c.mu.Lock()
		if c.state.TargetTemp == celsius {
			c.state.TargetTemp = prev
		}
		c.mu.Unlock()
	}
	return c.result("target temperature", err)
}

// StepTargetTemp moves the target by delta degrees. A step that would
// leave the range is ignored.
func (c *Controller) StepTargetTemp(ctx context.Context, delta int) error {
	next := c.State().TargetTemp + delta
	if next < c.opts.TargetMin || next > c.opts.TargetMax {
		return nil
	}
	return c.SetTargetTemp(ctx, next)
}

// ToggleHeater switches heater channel i off if it was on and on if it was
// off. Channels start on. i must be below the reported channel count.
func (c *Controller) ToggleHeater(ctx context.Context, i int) error {
	c.mu.Lock()
	if i < 0 || i >= c.channels {
		n := c.channels
		c.mu.Unlock()
		return fmt.Errorf("%w: heater index %d not in [0, %d)", command.ErrInvalid, i, n)
	}
	for len(c.state.HeaterOff) <= i {
		c.state.HeaterOff = append(c.state.HeaterOff, false)
	}
	wasOff := c.state.HeaterOff[i]
	c.state.HeaterOff[i] = !wasOff
	c.mu.Unlock()

	err := c.sender.Write(ctx, command.Heater(i, wasOff))
	if err != nil && c.opts.OnFailure == Revert {
		c.mu.Lock()
		if c.state.HeaterOff[i] == !wasOff {
			c.state.HeaterOff[i] = wasOff
		}
		c.mu.Unlock()
	}
	return c.result(fmt.Sprintf("heater %d", i), err)
}

// TogglePower flips the power flag and sends the matching command.
func (c *Controller) TogglePower(ctx context.Context) error {
	c.mu.Lock()
	wasOn := c.state.PowerOn
	c.state.PowerOn = !wasOn
	c.mu.Unlock()

	err := c.sender.Write(ctx, command.Power(!wasOn))
	if err != nil && c.opts.OnFailure == Revert {
		c.mu.Lock()
		if c.state.PowerOn == !wasOn {
			c.state.PowerOn = wasOn
		}
		c.mu.Unlock()
	}
	return c.result("power", err)
}

func (c *Controller) result(what string, err error) error {
	if err == nil {
		return nil
	}
	slog.Debug("[CMD] change failed", "setting", what, "policy", c.opts.OnFailure, "error", err)
	return err
}
