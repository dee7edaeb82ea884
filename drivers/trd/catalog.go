package trd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dargueta/betadisk"
)

// Catalog layout on track 0, side 0.
const (
	CatalogSectors       = 8
	CatalogEntrySize     = 16
	EntriesPerSector     = betadisk.SectorSize / CatalogEntrySize
	MaxCatalogEntries    = CatalogSectors * EntriesPerSector
	DiskInfoSector       = 8
	DiskInfoSize         = 29
	TRDOSFormatID        = 0x10
	catalogEndMarker     = 0x00
	catalogDeletedMarker = 0x01
)

// CatalogEntry is one 16-byte record in the catalog. The on-disk layout is
// packed, little-endian, and exactly the field order below.
type CatalogEntry struct {
	Name [8]byte
	// Extension is a one-character type tag, e.g. 'B' for BASIC programs or
	// 'C' for code blocks.
	Extension byte
	// StartParam is the load address for code, the autostart line for BASIC,
	// and so on. Its meaning depends on Extension.
	StartParam  uint16
	LengthBytes uint16
	SectorsUsed uint8
	StartSector uint8
	StartTrack  uint8
}

// IsValid reports whether the slot holds a file. 0x00 marks an unused slot and
// 0x01 marks a deleted file.
func (e CatalogEntry) IsValid() bool {
	return e.Name[0] != catalogEndMarker && e.Name[0] != catalogDeletedMarker
}

// Stem returns the name with trailing spaces and NULs removed.
func (e CatalogEntry) Stem() string {
	return strings.TrimRight(printable(e.Name[:]), " \x00")
}

// Filename returns the name as it's usually written, e.g. "GAME.C".
func (e CatalogEntry) Filename() string {
	return e.Stem() + "." + printable([]byte{e.Extension})
}

func (e CatalogEntry) String() string {
	return fmt.Sprintf(
		"%s (%d bytes, %d sectors at %d:%d)",
		e.Filename(),
		e.LengthBytes,
		e.SectorsUsed,
		e.StartTrack,
		e.StartSector,
	)
}

// DiskInfo is the disk information record at the start of sector 8 of track 0,
// side 0.
type DiskInfo struct {
	DiskType     uint8
	FileCount    uint8
	FreeSectors  uint16
	FormatID     uint8
	Reserved     [2]uint8
	Password     [9]byte
	Unused1      uint8
	DeletedFiles uint8
	Label        [8]byte
	Unused2      [3]uint8
}

// LabelString returns the disk label with trailing padding removed.
func (info DiskInfo) LabelString() string {
	return strings.TrimRight(printable(info.Label[:]), " \x00")
}

// printable replaces anything outside of printable ASCII with '?'. Names are
// stored in the machine's own character set, which only matches ASCII in that
// range.
func printable(raw []byte) string {
	var builder strings.Builder
	for _, c := range raw {
		if c == 0 || (c >= 0x20 && c < 0x7f) {
			builder.WriteByte(c)
		} else {
			builder.WriteByte('?')
		}
	}
	return builder.String()
}

// DecodeDiskInfo parses a disk information record from the beginning of a
// sector.
func DecodeDiskInfo(sector []byte) (DiskInfo, error) {
	var info DiskInfo
	if len(sector) < DiskInfoSize {
		return info, betadisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("disk info needs %d bytes, got %d", DiskInfoSize, len(sector)))
	}
	err := binary.Read(bytes.NewReader(sector[:DiskInfoSize]), binary.LittleEndian, &info)
	return info, err
}

// DecodeCatalogSector parses all 16 entries in a catalog sector, valid or not.
func DecodeCatalogSector(sector []byte) ([]CatalogEntry, error) {
	if len(sector) != betadisk.SectorSize {
		return nil, betadisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("catalog sector must be %d bytes, got %d", betadisk.SectorSize, len(sector)))
	}

	entries := make([]CatalogEntry, EntriesPerSector)
	err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, entries)
	return entries, err
}

// ListFiles writes a table of all files in the image's catalog to `w`.
func ListFiles(w io.Writer, image *Image) error {
	info, err := image.DiskInfo()
	if err != nil {
		return err
	}
	entries, err := image.Catalog()
	if err != nil {
		return err
	}

	fmt.Fprintf(
		w,
		"Label: %q  Files: %d  Free sectors: %d  Geometry: %s\n\n",
		info.LabelString(),
		info.FileCount,
		info.FreeSectors,
		image.Geometry(),
	)

	table := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(table, "NAME\tTYPE\tSTART\tLENGTH\tSECTORS\tTRACK\tSECTOR")
	for _, entry := range entries {
		fmt.Fprintf(
			table,
			"%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			entry.Stem(),
			printable([]byte{entry.Extension}),
			entry.StartParam,
			entry.LengthBytes,
			entry.SectorsUsed,
			entry.StartTrack,
			entry.StartSector,
		)
	}
	return table.Flush()
}
