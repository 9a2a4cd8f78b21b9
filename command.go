package itla

import (
	"fmt"
	"math"
)

// CommandKind tags a Command.
type CommandKind int

const (
	CmdSetFrequency CommandKind = iota + 1
	CmdSetPower
	CmdLaserOn
	CmdLaserOff
)

// Command is an outbound instruction for the device. Value carries the
// frequency in THz or the power in dBm.
type Command struct {
	Kind  CommandKind
	Value float64
}

// SetFrequency returns a command tuning the laser to thz.
func SetFrequency(thz float64) Command {
	return Command{Kind: CmdSetFrequency, Value: thz}
}

// SetPower returns a command setting the output power to dbm.
func SetPower(dbm float64) Command {
	return Command{Kind: CmdSetPower, Value: dbm}
}

var (
	LaserOn  = Command{Kind: CmdLaserOn}
	LaserOff = Command{Kind: CmdLaserOff}
)

// Encode renders c as one wire line without the newline. Unknown kinds
// encode to "".
func Encode(c Command) string {
	switch c.Kind {
	case CmdSetFrequency:
		return fmt.Sprintf("SET_FREQUENCY %.6f", c.Value)
	case CmdSetPower:
		return fmt.Sprintf("SET_POWER %.3f", c.Value)
	case CmdLaserOn:
		return "LASER_ON"
	case CmdLaserOff:
		return "LASER_OFF"
	default:
		return ""
	}
}

func (c Command) String() string {
	if line := Encode(c); line != "" {
		return line
	}
	return fmt.Sprintf("Command(%d)", int(c.Kind))
}

func (c Command) validate() error {
	switch c.Kind {
	case CmdSetFrequency, CmdSetPower:
		if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			return fmt.Errorf("%w: %s value %v", ErrInvalidCommand, c.name(), c.Value)
		}
	case CmdLaserOn, CmdLaserOff:
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidCommand, int(c.Kind))
	}
	return nil
}

// name is the wire token, used as the metrics label.
func (c Command) name() string {
	switch c.Kind {
	case CmdSetFrequency:
		return "SET_FREQUENCY"
	case CmdSetPower:
		return "SET_POWER"
	case CmdLaserOn:
		return "LASER_ON"
	case CmdLaserOff:
		return "LASER_OFF"
	default:
		return "UNKNOWN"
	}
}
