package scl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/betadisk"
	"github.com/dargueta/betadisk/disks"
	c "github.com/dargueta/betadisk/drivers/common"
	"github.com/dargueta/betadisk/drivers/common/blockcache"
	"github.com/dargueta/betadisk/drivers/trd"
	"github.com/noxer/bytewriter"
)

// ConvertedLabel is the disk label written into every unpacked archive.
const ConvertedLabel = "SCLCONV"

// Files are placed starting at logical track 1. Logical track 0 holds the
// catalog and disk info.
const firstDataTrack = 1

// Options controls unpacking.
type Options struct {
	// TempDir is where [Open] creates the unpacked image. Defaults to
	// [os.TempDir].
	TempDir string
	Logger  *slog.Logger
}

// ConvertedGeometry is the geometry of every unpacked archive.
func ConvertedGeometry() disks.DiskGeometry {
	diskType, ok := disks.LookupDiskType(disks.DiskType80DS)
	if !ok {
		panic("80 track double-sided disk type missing from table")
	}
	return diskType.Geometry()
}

// Convert reads an entire archive from `source` and writes the equivalent raw
// image to `output`. The image is always 80 tracks, double-sided. Each file's
// data is stored at the track and sector its catalog entry gives.
//
// A truncated archive, or one whose files don't fit on the disk, fails with
// [betadisk.ErrIncompatibleFormat].
func Convert(source io.Reader, output io.ReadWriteSeeker, opts Options) ([]Descriptor, error) {
	logger := c.LoggerOrDiscard(opts.Logger)

	descriptors, err := ReadHeader(source)
	if err != nil {
		return nil, err
	}

	geometry := ConvertedGeometry()
	totalSectors := geometry.TotalSectors()

	cache, err := prepareOutput(output, geometry)
	if err != nil {
		return nil, err
	}

	allocated := bitmap.New(int(totalSectors))
	for i := 0; i < firstDataTrack*betadisk.SectorsPerTrack; i++ {
		allocated.Set(i, true)
	}

	catalog := make([]byte, trd.CatalogSectors*betadisk.SectorSize)
	catalogWriter := bytewriter.New(catalog)

	track := uint(firstDataTrack)
	sector := uint(0)
	for i, descriptor := range descriptors {
		start := c.LogicalTrackToBlock(track, sector)
		end := uint(start) + uint(descriptor.SectorsUsed)
		if end > totalSectors {
			return nil, betadisk.ErrIncompatibleFormat.WithMessage(
				fmt.Sprintf(
					"file %d (%s) needs sectors [%d, %d) but the disk only has %d",
					i,
					descriptor.Filename(),
					start,
					end,
					totalSectors,
				),
			)
		}

		payload := make([]byte, descriptor.PayloadSize())
		_, err = io.ReadFull(source, payload)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, betadisk.ErrIncompatibleFormat.Wrap(
				fmt.Errorf("data for file %d (%s) is truncated: %w", i, descriptor.Filename(), err))
		}

		err = cache.Write(start, payload)
		if err != nil {
			return nil, err
		}
		for block := uint(start); block < end; block++ {
			allocated.Set(int(block), true)
		}

		entry := descriptor.CatalogEntry(uint8(track), uint8(sector))
		err = binary.Write(catalogWriter, binary.LittleEndian, &entry)
		if err != nil {
			return nil, err
		}

		logger.Debug(
			"placed file",
			slog.String("file", descriptor.Filename()),
			slog.Int("track", int(track)),
			slog.Int("sector", int(sector)),
			slog.Int("sectors", int(descriptor.SectorsUsed)),
		)

		sector += uint(descriptor.SectorsUsed)
		track += sector / betadisk.SectorsPerTrack
		sector %= betadisk.SectorsPerTrack
	}

	err = cache.Write(0, catalog)
	if err != nil {
		return nil, err
	}

	info := trd.DiskInfo{
		DiskType:    disks.DiskType80DS,
		FileCount:   uint8(len(descriptors)),
		FreeSectors: uint16(countFree(allocated, totalSectors)),
		FormatID:    trd.TRDOSFormatID,
	}
	copy(info.Label[:], ConvertedLabel)

	infoSector := make([]byte, betadisk.SectorSize)
	err = binary.Write(bytewriter.New(infoSector), binary.LittleEndian, &info)
	if err != nil {
		return nil, err
	}
	err = cache.Write(trd.DiskInfoSector, infoSector)
	if err != nil {
		return nil, err
	}

	logger.Debug(
		"writing image",
		slog.Int("sectors", int(cache.TotalBlocks())),
		slog.Int("dirty_sectors", int(cache.DirtyBlocks())),
	)
	err = cache.Flush()
	if err != nil {
		return nil, err
	}

	logger.Debug(
		"converted archive",
		slog.Int("files", len(descriptors)),
		slog.Int("free_sectors", int(info.FreeSectors)),
	)
	return descriptors, nil
}

// prepareOutput wraps `output` in a cache sized to exactly one image. Anything
// already in the stream that isn't zero is cleared, so the image comes out
// the same whether or not `output` started empty. A stream of the wrong size
// must implement [c.Truncator].
func prepareOutput(output io.ReadWriteSeeker, geometry disks.DiskGeometry) (*blockcache.BlockCache, error) {
	totalSectors := geometry.TotalSectors()
	size, err := c.DetermineStreamSize(output)
	if err != nil {
		return nil, betadisk.ErrIOFault.Wrap(err)
	}

	// A partial sector at the end is treated as new space and zeroed by the
	// resize.
	existingSectors := min(uint(size/betadisk.SectorSize), totalSectors)
	cache := blockcache.WrapStream(output, betadisk.SectorSize, existingSectors)
	if size != geometry.TotalSizeBytes() {
		err = cache.Resize(totalSectors)
		if err != nil {
			return nil, err
		}
	}

	for block := c.LogicalBlock(0); uint(block) < existingSectors; block++ {
		sector, err := cache.GetSlice(block, 1)
		if err != nil {
			return nil, err
		}
		if allZero(sector) {
			continue
		}
		clear(sector)
		err = cache.MarkBlockRangeDirty(block, 1)
		if err != nil {
			return nil, err
		}
	}
	return cache, nil
}

func allZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func countFree(allocated bitmap.Bitmap, totalSectors uint) uint {
	free := uint(0)
	for i := 0; uint(i) < totalSectors; i++ {
		if !allocated.Get(i) {
			free++
		}
	}
	return free
}
