// Package fdc emulates the WD1793 floppy disk controller of a Beta Disk
// interface.
//
// The controller is driven entirely by its caller: register reads and writes
// through [Controller.ReadPort] and [Controller.WritePort], and the passage of
// time through [Controller.Tick]. Disk I/O happens synchronously inside those
// calls. Head movement delays are simulated so software polling the busy bit
// sees realistic timing.
//
// Error conditions such as a missing disk never come back as Go errors. They
// show up in the status register, the same way software on the real machine
// sees them.
package fdc

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dargueta/betadisk"
	c "github.com/dargueta/betadisk/drivers/common"
)

// NumDrives is the number of drives a Beta Disk interface can address.
const NumDrives = 4

// State is the controller's position in its command state machine.
type State int

const (
	Idle State = iota
	// Busy means a head movement is in progress and will finish after enough
	// ticks.
	Busy
	// TransferringRead means the data register has bytes waiting to be read.
	TransferringRead
	// TransferringWrite means the controller is collecting bytes written to
	// the data register.
	TransferringWrite
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Busy:
		return "Busy"
	case TransferringRead:
		return "Transferring(Read)"
	case TransferringWrite:
		return "Transferring(Write)"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// pendingWrite is where a Write Sector command will commit its buffer.
type pendingWrite struct {
	device betadisk.SectorDevice
	track  uint8
	side   uint8
	sector uint8
}

// Controller is a WD1793 with the Beta Disk system register in front of it.
// It's not safe for concurrent use.
type Controller struct {
	config Config
	logger *slog.Logger

	// status never holds StatusNotReady; that bit is computed when read.
	status  uint8
	track   uint8
	sector  uint8
	data    uint8
	control uint8

	drive uint8
	side  uint8

	state State
	delay uint32

	buffer    [betadisk.SectorSize]byte
	bufferPos int
	bufferLen int
	write     pendingWrite

	drives [NumDrives]betadisk.SectorDevice

	pending   []Signal
	listeners []SignalListener
}

// New creates a controller with no disks attached. Zero fields of `config`
// take their values from [DefaultConfig].
func New(config Config) *Controller {
	defaults := DefaultConfig()
	if config.TStatesPerMillisecond == 0 {
		config.TStatesPerMillisecond = defaults.TStatesPerMillisecond
	}
	if config.MaxTrack == 0 {
		config.MaxTrack = defaults.MaxTrack
	}

	ctl := &Controller{
		config: config,
		logger: c.LoggerOrDiscard(config.Logger),
	}
	ctl.Reset()
	return ctl
}

// Reset puts the registers back to their power-on values and aborts whatever
// is in progress. Attached disks stay attached.
func (ctl *Controller) Reset() {
	ctl.status = 0
	ctl.track = 0
	ctl.sector = 1
	ctl.data = 0
	ctl.state = Idle
	ctl.delay = 0
	ctl.bufferPos = 0
	ctl.bufferLen = 0
	ctl.write = pendingWrite{}
}

// Attach inserts a disk into a drive, replacing whatever was there. The
// controller doesn't take ownership of `device`.
func (ctl *Controller) Attach(drive int, device betadisk.SectorDevice) error {
	if drive < 0 || drive >= NumDrives {
		return betadisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("drive %d not in [0, %d)", drive, NumDrives))
	}
	if device == nil {
		return betadisk.ErrInvalidArgument.WithMessage("can't attach a nil device; use Detach")
	}
	ctl.drives[drive] = device
	ctl.logger.Debug("attached disk", slog.Int("drive", drive))
	return nil
}

// Detach removes the disk from a drive. The disk isn't closed.
func (ctl *Controller) Detach(drive int) error {
	if drive < 0 || drive >= NumDrives {
		return betadisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("drive %d not in [0, %d)", drive, NumDrives))
	}
	ctl.drives[drive] = nil
	ctl.logger.Debug("detached disk", slog.Int("drive", drive))
	return nil
}

// Drive returns the disk in a drive, or nil.
func (ctl *Controller) Drive(drive int) betadisk.SectorDevice {
	if drive < 0 || drive >= NumDrives {
		return nil
	}
	return ctl.drives[drive]
}

// currentDevice returns the disk in the selected drive. Closed disks count as
// missing.
func (ctl *Controller) currentDevice() betadisk.SectorDevice {
	device := ctl.drives[ctl.drive]
	if device == nil || device.IsClosed() {
		return nil
	}
	return device
}

func (ctl *Controller) State() State {
	return ctl.state
}

// SelectedDrive gives the drive and side chosen by the control register.
func (ctl *Controller) SelectedDrive() (drive, side uint8) {
	return ctl.drive, ctl.side
}

// DelayRemaining gives the number of ticks until the current head movement
// finishes.
func (ctl *Controller) DelayRemaining() uint32 {
	return ctl.delay
}

// Status returns the status register.
func (ctl *Controller) Status() uint8 {
	status := ctl.status
	if ctl.currentDevice() == nil {
		status |= StatusNotReady
	}
	return status
}

////////////////////////////////////////////////////////////////////////////////
// Register access

// ReadPort reads the register mapped to `port`. Ports that don't belong to the
// controller read as 0xFF.
func (ctl *Controller) ReadPort(port uint16) uint8 {
	register, ok := RegisterForPort(port)
	if !ok {
		return 0xFF
	}
	return ctl.ReadRegister(register)
}

// WritePort writes the register mapped to `port`. Writes to other ports are
// ignored.
func (ctl *Controller) WritePort(port uint16, value uint8) {
	register, ok := RegisterForPort(port)
	if ok {
		ctl.WriteRegister(register, value)
	}
}

func (ctl *Controller) ReadRegister(register Register) uint8 {
	switch register {
	case StatusRegister:
		return ctl.Status()
	case TrackRegister:
		return ctl.track
	case SectorRegister:
		return ctl.sector
	case DataRegister:
		return ctl.readData()
	case ControlRegister:
		return ctl.control
	default:
		return 0xFF
	}
}

// WriteRegister writes a register. Writing the status register issues a
// command, which is fully decoded before this returns.
func (ctl *Controller) WriteRegister(register Register, value uint8) {
	switch register {
	case StatusRegister:
		ctl.execute(value)
	case TrackRegister:
		ctl.track = value
	case SectorRegister:
		ctl.sector = value
	case DataRegister:
		ctl.writeData(value)
	case ControlRegister:
		ctl.control = value
		ctl.drive = value & ControlDriveMask
		ctl.side = 0
		if value&ControlSide != 0 {
			ctl.side = 1
		}
	}
}

func (ctl *Controller) readData() uint8 {
	if ctl.state != TransferringRead || ctl.bufferPos >= ctl.bufferLen {
		return ctl.data
	}

	ctl.data = ctl.buffer[ctl.bufferPos]
	ctl.bufferPos++
	if ctl.bufferPos >= ctl.bufferLen {
		ctl.finishTransfer()
	}
	return ctl.data
}

func (ctl *Controller) writeData(value uint8) {
	ctl.data = value
	if ctl.state != TransferringWrite || ctl.bufferPos >= ctl.bufferLen {
		return
	}

	ctl.buffer[ctl.bufferPos] = value
	ctl.bufferPos++
	if ctl.bufferPos < ctl.bufferLen {
		return
	}

	target := ctl.write
	if target.device == nil || target.device.IsClosed() {
		ctl.status |= StatusRecordNotFound
	} else {
		err := target.device.WriteSector(target.track, target.side, target.sector, ctl.buffer[:])
		if err != nil {
			ctl.logger.Debug(
				"sector write failed",
				slog.Int("track", int(target.track)),
				slog.Int("side", int(target.side)),
				slog.Int("sector", int(target.sector)),
				slog.Any("error", err),
			)
			ctl.status |= StatusRecordNotFound
		}
	}
	ctl.write = pendingWrite{}
	ctl.finishTransfer()
}

// finishTransfer ends a data transfer and raises the completion signal.
func (ctl *Controller) finishTransfer() {
	ctl.status &^= StatusDataRequest | StatusBusy
	ctl.state = Idle
	ctl.emit(DRQ, false)
	ctl.emit(IRQ, true)
}

////////////////////////////////////////////////////////////////////////////////
// Timing

// Tick advances emulated time. When a head movement's delay runs out, the
// controller goes idle and raises IRQ.
func (ctl *Controller) Tick(tstates uint32) {
	if ctl.delay == 0 {
		return
	}
	if tstates < ctl.delay {
		ctl.delay -= tstates
		return
	}

	ctl.delay = 0
	if ctl.state == Busy {
		ctl.status &^= StatusBusy
		ctl.state = Idle
		ctl.emit(IRQ, true)
	}
}

// milliseconds converts a delay to ticks, saturating at the largest delay the
// counter can hold.
func (ctl *Controller) milliseconds(ms uint32) uint32 {
	ticks := uint64(ms) * uint64(ctl.config.TStatesPerMillisecond)
	if ticks > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ticks)
}

////////////////////////////////////////////////////////////////////////////////
// Commands

func (ctl *Controller) execute(value uint8) {
	command := DecodeCommand(value)
	ctl.logger.Debug(
		"executing command",
		slog.String("command", command.String()),
		slog.Int("value", int(value)),
		slog.Int("track", int(ctl.track)),
		slog.Int("sector", int(ctl.sector)),
		slog.Int("drive", int(ctl.drive)),
		slog.Int("side", int(ctl.side)),
	)

	if command == CmdForceInterrupt {
		ctl.forceInterrupt(value)
		return
	}

	ctl.status |= StatusBusy
	ctl.status &^= StatusDataRequest | StatusLostData | StatusCRCError |
		StatusRecordNotFound | StatusWriteProtect

	switch command {
	case CmdRestore:
		ctl.track = 0
		ctl.startMovement(headSettleDelay)
	case CmdSeek:
		distance := int(ctl.data) - int(ctl.track)
		if distance < 0 {
			distance = -distance
		}
		ctl.track = ctl.data
		ctl.startMovement(headSettleDelay + uint32(distance))
	case CmdStep:
		ctl.startMovement(stepDelay)
	case CmdStepIn:
		if ctl.track < ctl.config.MaxTrack {
			ctl.track++
		}
		ctl.startMovement(stepDelay)
	case CmdStepOut:
		if ctl.track > 0 {
			ctl.track--
		}
		ctl.startMovement(stepDelay)
	case CmdReadSector:
		ctl.readSector()
	case CmdWriteSector:
		ctl.writeSector()
	case CmdReadAddress:
		ctl.readAddress()
	default:
		// Read Track and Write Track aren't supported and do nothing.
		ctl.status &^= StatusBusy
		ctl.state = Idle
		ctl.delay = 0
	}
}

func (ctl *Controller) startMovement(ms uint32) {
	ctl.delay = ctl.milliseconds(ms)
	ctl.state = Busy
}

// fail ends the current command immediately with the given status bits set.
func (ctl *Controller) fail(statusBits uint8) {
	ctl.status |= statusBits
	ctl.status &^= StatusBusy
	ctl.state = Idle
	ctl.delay = 0
	ctl.emit(IRQ, true)
}

// startTransfer sets up the buffer for `length` bytes and raises DRQ.
func (ctl *Controller) startTransfer(state State, length int) {
	ctl.bufferPos = 0
	ctl.bufferLen = length
	ctl.state = state
	ctl.delay = 0
	ctl.status |= StatusDataRequest
	ctl.emit(DRQ, true)
}

// physicalSector converts the 1-based sector register to a 0-based sector
// number. Sector 0 doesn't exist, so it's treated as 1.
func (ctl *Controller) physicalSector() uint8 {
	if ctl.sector == 0 {
		return 0
	}
	return ctl.sector - 1
}

func (ctl *Controller) readSector() {
	device := ctl.currentDevice()
	if device == nil {
		ctl.fail(StatusRecordNotFound)
		return
	}

	data, err := device.ReadSector(ctl.track, ctl.side, ctl.physicalSector())
	if err != nil {
		ctl.logger.Debug(
			"sector read failed",
			slog.Int("track", int(ctl.track)),
			slog.Int("side", int(ctl.side)),
			slog.Int("sector", int(ctl.sector)),
			slog.Any("error", err),
		)
		ctl.fail(StatusRecordNotFound)
		return
	}

	copy(ctl.buffer[:], data)
	ctl.startTransfer(TransferringRead, betadisk.SectorSize)
}

func (ctl *Controller) writeSector() {
	device := ctl.currentDevice()
	if device == nil {
		ctl.fail(StatusRecordNotFound)
		return
	}
	if device.IsReadOnly() {
		ctl.fail(StatusWriteProtect)
		return
	}

	clear(ctl.buffer[:])
	ctl.write = pendingWrite{
		device: device,
		track:  ctl.track,
		side:   ctl.side,
		sector: ctl.physicalSector(),
	}
	ctl.startTransfer(TransferringWrite, betadisk.SectorSize)
}

// readAddress produces the ID field of the sector under the head: track,
// side, sector, size code (1 = 256 bytes), and two CRC bytes, which are always
// zero here.
func (ctl *Controller) readAddress() {
	clear(ctl.buffer[:6])
	ctl.buffer[0] = ctl.track
	ctl.buffer[1] = ctl.side
	ctl.buffer[2] = ctl.sector
	ctl.buffer[3] = 1
	ctl.startTransfer(TransferringRead, 6)
}

// forceInterrupt aborts whatever's in progress. If any of the low four bits
// are set, IRQ is raised immediately.
func (ctl *Controller) forceInterrupt(value uint8) {
	hadDataRequest := ctl.status&StatusDataRequest != 0

	ctl.status &^= StatusBusy | StatusDataRequest
	ctl.state = Idle
	ctl.delay = 0
	ctl.bufferPos = 0
	ctl.bufferLen = 0
	ctl.write = pendingWrite{}

	if hadDataRequest {
		ctl.emit(DRQ, false)
	}
	if value&0x0F != 0 {
		ctl.emit(IRQ, true)
	}
}
