package fdc

import "fmt"

// Command is a decoded command class. The low nibble of a command byte holds
// flags that don't change which class it belongs to.
type Command int

const (
	CmdRestore Command = iota
	CmdSeek
	CmdStep
	CmdStepIn
	CmdStepOut
	CmdReadSector
	CmdWriteSector
	CmdReadAddress
	CmdForceInterrupt
	CmdReadTrack
	CmdWriteTrack
)

var commandNames = map[Command]string{
	CmdRestore:        "Restore",
	CmdSeek:           "Seek",
	CmdStep:           "Step",
	CmdStepIn:         "Step-In",
	CmdStepOut:        "Step-Out",
	CmdReadSector:     "Read Sector",
	CmdWriteSector:    "Write Sector",
	CmdReadAddress:    "Read Address",
	CmdForceInterrupt: "Force Interrupt",
	CmdReadTrack:      "Read Track",
	CmdWriteTrack:     "Write Track",
}

func (c Command) String() string {
	name, ok := commandNames[c]
	if ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// DecodeCommand returns the command class selected by the high nibble of a
// command byte. Odd high nibbles of the stepping and sector commands are the
// track-update and multiple-sector variants.
func DecodeCommand(value byte) Command {
	switch value & 0xF0 {
	case 0x00:
		return CmdRestore
	case 0x10:
		return CmdSeek
	case 0x20, 0x30:
		return CmdStep
	case 0x40, 0x50:
		return CmdStepIn
	case 0x60, 0x70:
		return CmdStepOut
	case 0x80, 0x90:
		return CmdReadSector
	case 0xA0, 0xB0:
		return CmdWriteSector
	case 0xC0:
		return CmdReadAddress
	case 0xD0:
		return CmdForceInterrupt
	case 0xE0:
		return CmdReadTrack
	default:
		return CmdWriteTrack
	}
}
