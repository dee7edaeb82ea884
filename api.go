// Package betadisk emulates the floppy subsystem of a Beta Disk interface: a
// WD1793-compatible controller and the TR-DOS image formats it reads from.
package betadisk

// SectorSize is the size of every sector on a TR-DOS disk, in bytes.
const SectorSize = 256

// SectorsPerTrack is fixed for all TR-DOS disk types.
const SectorsPerTrack = 16

// SectorDevice is the narrow contract the disk controller needs from a mounted
// image. Both raw images and unpacked archives implement it, so the controller
// doesn't care which container format backs a drive.
//
// Sector numbers are zero-based within a track.
type SectorDevice interface {
	// ReadSector returns a fresh SectorSize-byte copy of the sector.
	ReadSector(track, side, sector uint8) ([]byte, error)
	// WriteSector replaces the contents of the sector. `data` must be exactly
	// SectorSize bytes.
	WriteSector(track, side, sector uint8, data []byte) error
	// IsReadOnly reports whether WriteSector will always fail with ErrReadOnly.
	IsReadOnly() bool
	// IsClosed reports whether the device has been released. A closed device
	// must be treated as if no disk were inserted.
	IsClosed() bool
}
