// Package command builds the short text commands the warmer accepts and
// writes them to the device characteristic.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chaz8081/magwarm/internal/payload"
)

// ErrInvalid is returned for text that is not a known command.
var ErrInvalid = errors.New("command: invalid")

var grammar = regexp.MustCompile(`^(targetTemp:\d+|heater(ON|OFF):\d+|power(ON|OFF))$`)

// Command is one `<verb>[:<arg>]` instruction.
type Command string

const (
	verbTargetTemp = "targetTemp"
	verbHeaterOn   = "heaterON"
	verbHeaterOff  = "heaterOFF"

	PowerOnCmd  Command = "powerON"
	PowerOffCmd Command = "powerOFF"
)

// TargetTemp sets the target temperature in °C.
func TargetTemp(celsius int) Command {
	return Command(verbTargetTemp + ":" + strconv.Itoa(celsius))
}

// HeaterOn enables heater channel i.
func HeaterOn(i int) Command {
	return Command(verbHeaterOn + ":" + strconv.Itoa(i))
}

// HeaterOff disables heater channel i.
func HeaterOff(i int) Command {
	return Command(verbHeaterOff + ":" + strconv.Itoa(i))
}

// Heater returns HeaterOn(i) or HeaterOff(i).
func Heater(i int, on bool) Command {
	if on {
		return HeaterOn(i)
	}
	return HeaterOff(i)
}

// Power returns PowerOnCmd or PowerOffCmd.
func Power(on bool) Command {
	if on {
		return PowerOnCmd
	}
	return PowerOffCmd
}

// Parse validates text against the command grammar.
func Parse(text string) (Command, error) {
	c := Command(text)
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// Validate reports whether c matches the command grammar. Negative
// arguments are rejected by construction: the grammar only allows digits.
func (c Command) Validate() error {
	if !grammar.MatchString(string(c)) {
		return fmt.Errorf("%w: %q", ErrInvalid, string(c))
	}
	return nil
}

func (c Command) String() string { return string(c) }

// Verb returns the part of c before the argument separator.
func (c Command) Verb() string {
	verb, _, _ := strings.Cut(string(c), ":")
	return verb
}

// Encode converts c into a characteristic value.
func Encode(c Command, codec payload.Codec) []byte {
	return codec.Encode(string(c))
}

// DecodeText recovers command text from a characteristic value.
func DecodeText(value []byte, codec payload.Codec) (string, error) {
	return codec.Decode(value)
}
