package testing

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/dargueta/betadisk"
	"github.com/dargueta/betadisk/disks"
	"github.com/dargueta/betadisk/drivers/trd"
	"github.com/dargueta/betadisk/utilities/compression"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// LoadDiskImage takes a compressed disk image and returns a stream to access the
// uncompressed data.
//
//   - Writes to the stream do not affect `compressedImageBytes`.
//   - The stream's size is fixed to `totalBytes`. Writing past the end fails.
func LoadDiskImage(t *testing.T, compressedImageBytes []byte, totalBytes int64) io.ReadWriteSeeker {
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err)
	require.EqualValues(t, totalBytes, len(imageBytes), "uncompressed image is wrong size")
	return bytesextra.NewReadWriteSeeker(imageBytes)
}

// CreateBlankImageBytes returns a zeroed image of `totalBytes` bytes with a disk
// information record carrying `diskTypeCode`. If the code is unknown, the
// record's free sector count is left at 0.
func CreateBlankImageBytes(t *testing.T, totalBytes int64, diskTypeCode uint8, label string) []byte {
	image := make([]byte, totalBytes)
	require.GreaterOrEqual(
		t, totalBytes, int64(trd.DiskInfoSector+1)*betadisk.SectorSize, "image too small")

	info := trd.DiskInfo{
		DiskType: diskTypeCode,
		FormatID: trd.TRDOSFormatID,
	}
	copy(info.Label[:], label)
	if diskType, ok := disks.LookupDiskType(diskTypeCode); ok {
		// Track 0 on side 0 is reserved for the catalog.
		info.FreeSectors = uint16(diskType.Geometry().TotalSectors() - betadisk.SectorsPerTrack)
	}

	writer := bytewriter.New(image[trd.DiskInfoSector*betadisk.SectorSize:])
	err := binary.Write(writer, binary.LittleEndian, &info)
	require.NoError(t, err, "failed to write disk info")
	return image
}

// CreateBlankImage is like [CreateBlankImageBytes] but wraps the image in a
// fixed-size stream.
func CreateBlankImage(t *testing.T, totalBytes int64, diskTypeCode uint8, label string) io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(CreateBlankImageBytes(t, totalBytes, diskTypeCode, label))
}

// PutCatalogEntry writes `entry` into catalog slot `slot` of a raw image.
func PutCatalogEntry(t *testing.T, image []byte, slot int, entry trd.CatalogEntry) {
	require.Less(t, slot, trd.MaxCatalogEntries, "catalog slot out of range")
	offset := slot * trd.CatalogEntrySize
	writer := bytewriter.New(image[offset : offset+trd.CatalogEntrySize])
	require.NoError(t, binary.Write(writer, binary.LittleEndian, &entry))
}

// MakeCatalogEntry builds a catalog entry from a name and a type character.
func MakeCatalogEntry(name string, extension byte, sectorsUsed uint8) trd.CatalogEntry {
	entry := trd.CatalogEntry{
		Extension:   extension,
		LengthBytes: uint16(sectorsUsed) * betadisk.SectorSize,
		SectorsUsed: sectorsUsed,
	}
	copy(entry.Name[:], bytes.Repeat([]byte{' '}, len(entry.Name)))
	copy(entry.Name[:], name)
	return entry
}
