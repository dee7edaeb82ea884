package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/dargueta/betadisk"
	"github.com/gocarina/gocsv"
)

////////////////////////////////////////////////////////////////////////////////
// Geometry

// DiskGeometry describes the physical layout of a TR-DOS disk. Sectors per
// track and bytes per sector are fixed by the format, so only the number of
// tracks and sides vary.
type DiskGeometry struct {
	// Tracks gives the number of tracks per side, in [1, 254].
	Tracks uint8
	// Sides is either 1 or 2.
	Sides uint8
}

// BytesPerTrack gives the size of one track on one side.
func (g DiskGeometry) BytesPerTrack() int64 {
	return betadisk.SectorsPerTrack * betadisk.SectorSize
}

// TotalSectors gives the number of addressable sectors on the disk.
func (g DiskGeometry) TotalSectors() uint {
	return uint(g.Tracks) * uint(g.Sides) * betadisk.SectorsPerTrack
}

// TotalSizeBytes gives the exact size an image with this geometry occupies.
func (g DiskGeometry) TotalSizeBytes() int64 {
	return int64(g.TotalSectors()) * betadisk.SectorSize
}

// Contains reports whether the (track, side, sector) triple is addressable.
func (g DiskGeometry) Contains(track, side, sector uint8) bool {
	return track < g.Tracks && side < g.Sides && sector < betadisk.SectorsPerTrack
}

// SectorOffset converts a track/side/sector address into a byte offset from the
// beginning of the image. Tracks are stored track-major with sides interleaved:
// track 0 side 0, track 0 side 1, track 1 side 0, and so on.
func (g DiskGeometry) SectorOffset(track, side, sector uint8) (int64, error) {
	if !g.Contains(track, side, sector) {
		return -1, betadisk.ErrAddressOutOfRange.WithMessage(
			fmt.Sprintf(
				"track %d side %d sector %d not in [0, %d) x [0, %d) x [0, %d)",
				track,
				side,
				sector,
				g.Tracks,
				g.Sides,
				betadisk.SectorsPerTrack,
			),
		)
	}

	offset := int64(track) * int64(g.Sides) * g.BytesPerTrack()
	offset += int64(side) * g.BytesPerTrack()
	offset += int64(sector) * betadisk.SectorSize
	return offset, nil
}

func (g DiskGeometry) String() string {
	sideSuffix := "s"
	if g.Sides == 1 {
		sideSuffix = ""
	}
	return fmt.Sprintf("%d tracks, %d side%s", g.Tracks, g.Sides, sideSuffix)
}

////////////////////////////////////////////////////////////////////////////////
// Disk types

// Type codes TR-DOS writes into the disk information sector.
const (
	DiskType80DS = 0x16
	DiskType40DS = 0x17
	DiskType80SS = 0x18
)

// DiskType is one row of the table of disk type codes TR-DOS writes into the
// disk information sector.
type DiskType struct {
	Code   uint8  `csv:"code"`
	Slug   string `csv:"slug"`
	Name   string `csv:"name"`
	Tracks uint8  `csv:"tracks"`
	Sides  uint8  `csv:"sides"`
	// InferredFromSizes is a space-separated list of image sizes, in bytes,
	// for which this type is assumed when nothing better is known.
	InferredFromSizes string `csv:"inferred_from_sizes"`
	Notes             string `csv:"notes"`
}

// Geometry returns the disk geometry for this type.
func (t DiskType) Geometry() DiskGeometry {
	return DiskGeometry{Tracks: t.Tracks, Sides: t.Sides}
}

//go:embed disk-types.csv
var diskTypesRawCSV string

var diskTypesByCode map[uint8]DiskType
var diskTypesBySlug map[string]DiskType
var diskTypesBySize map[int64]DiskType

// LookupDiskType returns the disk type for a type code from the disk
// information sector. The second return value is false if the code is unknown.
func LookupDiskType(code uint8) (DiskType, bool) {
	diskType, ok := diskTypesByCode[code]
	return diskType, ok
}

// GetPredefinedDiskType returns a disk type by its slug, e.g. "80ds".
func GetPredefinedDiskType(slug string) (DiskType, error) {
	diskType, ok := diskTypesBySlug[slug]
	if ok {
		return diskType, nil
	}

	err := fmt.Errorf("no predefined disk type exists with slug %q", slug)
	return DiskType{}, err
}

// GeometryForSize guesses the geometry of a raw image from its size in bytes.
// Unsupported sizes fail with [betadisk.ErrUnsupportedSize].
func GeometryForSize(size int64) (DiskGeometry, error) {
	diskType, ok := diskTypesBySize[size]
	if !ok {
		return DiskGeometry{}, betadisk.ErrUnsupportedSize.WithMessage(
			fmt.Sprintf("no known disk geometry is %d bytes", size))
	}
	return diskType.Geometry(), nil
}

func init() {
	csvReader := csv.NewReader(strings.NewReader(diskTypesRawCSV))
	csvReader.Comma = '|'

	var rows []DiskType
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		panic(fmt.Errorf("failed to decode disk type table: %w", err))
	}

	diskTypesByCode = make(map[uint8]DiskType, len(rows))
	diskTypesBySlug = make(map[string]DiskType, len(rows))
	diskTypesBySize = make(map[int64]DiskType)

	for i, row := range rows {
		_, exists := diskTypesByCode[row.Code]
		if exists {
			panic(fmt.Errorf("duplicate definition for disk type %#02x on row %d", row.Code, i+1))
		}
		diskTypesByCode[row.Code] = row
		diskTypesBySlug[row.Slug] = row

		for _, field := range strings.Fields(row.InferredFromSizes) {
			size, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				panic(fmt.Errorf("bad image size %q for disk type %q: %w", field, row.Slug, err))
			}
			if other, exists := diskTypesBySize[size]; exists {
				panic(
					fmt.Errorf(
						"image size %d claimed by both %q and %q", size, other.Slug, row.Slug))
			}
			diskTypesBySize[size] = row
		}
	}
}
