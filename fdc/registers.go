package fdc

import "fmt"

// Register identifies one of the controller's addressable registers.
type Register int

const (
	StatusRegister Register = iota
	TrackRegister
	SectorRegister
	DataRegister
	// ControlRegister is the Beta Disk system register rather than part of the
	// WD1793. It selects the drive and side.
	ControlRegister
)

func (r Register) String() string {
	switch r {
	case StatusRegister:
		return "status"
	case TrackRegister:
		return "track"
	case SectorRegister:
		return "sector"
	case DataRegister:
		return "data"
	case ControlRegister:
		return "control"
	default:
		return fmt.Sprintf("Register(%d)", int(r))
	}
}

// Beta Disk I/O ports. Only the low byte of a port address is decoded.
const (
	PortStatus  = 0x1F
	PortTrack   = 0x3F
	PortSector  = 0x5F
	PortData    = 0x7F
	PortControl = 0xFF
)

// RegisterForPort maps a port address to a register. The second return value
// is false if the port doesn't belong to the controller.
func RegisterForPort(port uint16) (Register, bool) {
	switch port & 0xFF {
	case PortStatus:
		return StatusRegister, true
	case PortTrack:
		return TrackRegister, true
	case PortSector:
		return SectorRegister, true
	case PortData:
		return DataRegister, true
	case PortControl:
		return ControlRegister, true
	default:
		return 0, false
	}
}

// Status register bits.
const (
	StatusBusy           = 0x01
	StatusDataRequest    = 0x02
	StatusLostData       = 0x04
	StatusCRCError       = 0x08
	StatusRecordNotFound = 0x10
	StatusWriteProtect   = 0x40
	StatusNotReady       = 0x80
)

// Control register bits.
const (
	ControlDriveMask = 0x03
	ControlHeadLoad  = 0x08
	ControlSide      = 0x10
	ControlDensity   = 0x40
)
