package trd

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dargueta/betadisk"
	"github.com/dargueta/betadisk/disks"
	"github.com/noxer/bytewriter"
)

// Format writes a freshly formatted, empty image of the given type to
// `output`: every sector zeroed, an empty catalog, and a disk information
// record with the whole disk except the catalog track free.
func Format(output io.Writer, diskType disks.DiskType, label string) error {
	geometry := diskType.Geometry()
	if geometry.Tracks == 0 || geometry.Sides == 0 || geometry.Sides > 2 {
		return betadisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("disk type %q has unusable geometry %s", diskType.Slug, geometry))
	}
	if len(label) > 8 {
		return betadisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("label %q is longer than 8 characters", label))
	}

	info := DiskInfo{
		DiskType:    diskType.Code,
		FreeSectors: uint16(geometry.TotalSectors() - betadisk.SectorsPerTrack),
		FormatID:    TRDOSFormatID,
	}
	copy(info.Password[:], "         ")
	copy(info.Label[:], "        ")
	copy(info.Label[:], label)

	firstTrack := make([]byte, betadisk.SectorsPerTrack*betadisk.SectorSize)
	infoWriter := bytewriter.New(firstTrack[DiskInfoSector*betadisk.SectorSize:])
	err := binary.Write(infoWriter, binary.LittleEndian, &info)
	if err != nil {
		return err
	}

	_, err = output.Write(firstTrack)
	if err != nil {
		return betadisk.ErrIOFault.Wrap(err)
	}

	emptyTrack := make([]byte, len(firstTrack))
	remainingTracks := int(geometry.Tracks)*int(geometry.Sides) - 1
	for i := 0; i < remainingTracks; i++ {
		_, err = output.Write(emptyTrack)
		if err != nil {
			return betadisk.ErrIOFault.Wrap(err)
		}
	}
	return nil
}
