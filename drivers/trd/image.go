// Package trd implements raw TR-DOS sector images: a flat dump of every sector
// on the disk, track-major with sides interleaved.
package trd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dargueta/betadisk"
	"github.com/dargueta/betadisk/disks"
	c "github.com/dargueta/betadisk/drivers/common"
	"github.com/hashicorp/go-multierror"
)

// Options controls how a stream-backed image is opened.
type Options struct {
	// ReadOnly prevents any writes to the stream.
	ReadOnly bool
	// Name is used in log messages. Defaults to the file path for [OpenFile].
	Name   string
	Logger *slog.Logger
}

// Image is a raw sector image. It implements [betadisk.SectorDevice].
type Image struct {
	stream       io.ReadWriteSeeker
	name         string
	geometry     disks.DiskGeometry
	readOnly     bool
	dirty        bool
	closed       bool
	catalogStale bool
	diskInfo     DiskInfo
	catalog      []CatalogEntry
	logger       *slog.Logger
}

var _ betadisk.SectorDevice = (*Image)(nil)

// Open opens the image at `path`. If `wantReadWrite` is set but the file can't
// be opened for writing, the image is silently opened read-only instead.
func Open(path string, wantReadWrite bool) (*Image, error) {
	return OpenFile(path, Options{ReadOnly: !wantReadWrite})
}

// OpenFile is like [Open] but takes the full set of options. The image owns the
// file and closes it in [Image.Close].
func OpenFile(path string, opts Options) (*Image, error) {
	logger := c.LoggerOrDiscard(opts.Logger)
	if opts.Name == "" {
		opts.Name = path
	}

	var file *os.File
	var err error
	if !opts.ReadOnly {
		file, err = os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			logger.Info(
				"can't open image for writing, falling back to read-only",
				slog.String("path", path),
				slog.Any("error", err),
			)
			opts.ReadOnly = true
		}
	}
	if opts.ReadOnly {
		file, err = os.Open(path)
		if err != nil {
			return nil, betadisk.ErrIOFault.Wrap(err)
		}
	}

	image, err := New(file, opts)
	if err != nil {
		file.Close()
		return nil, err
	}
	return image, nil
}

// New creates an image over an existing stream. The stream's size must match
// one of the known disk sizes. If the stream implements [io.Closer], the image
// takes ownership of it.
func New(stream io.ReadWriteSeeker, opts Options) (*Image, error) {
	image := &Image{
		stream:   stream,
		name:     opts.Name,
		readOnly: opts.ReadOnly,
		logger:   c.LoggerOrDiscard(opts.Logger),
	}
	if image.name == "" {
		image.name = "<stream>"
	}

	size, err := c.DetermineStreamSize(stream)
	if err != nil {
		return nil, betadisk.ErrIOFault.Wrap(err)
	}

	image.geometry, err = disks.GeometryForSize(size)
	if err != nil {
		return nil, err
	}

	err = image.reloadCatalog()
	if err != nil {
		return nil, err
	}
	image.applyDiskType()

	image.logger.Debug(
		"opened raw image",
		slog.String("name", image.name),
		slog.Int64("size", size),
		slog.String("geometry", image.geometry.String()),
		slog.Bool("read_only", image.readOnly),
		slog.Int("files", len(image.catalog)),
	)
	return image, nil
}

// applyDiskType replaces the geometry guessed from the size with the one the
// disk type code declares, if the code is known. Geometry is only resolved
// once, when the image is opened; rewriting the disk information later
// doesn't move any sectors.
func (image *Image) applyDiskType() {
	diskType, ok := disks.LookupDiskType(image.diskInfo.DiskType)
	if !ok {
		return
	}

	geometry := diskType.Geometry()
	if geometry != image.geometry {
		image.logger.Debug(
			"disk type overrides geometry",
			slog.String("name", image.name),
			slog.String("disk_type", diskType.Slug),
			slog.String("size_geometry", image.geometry.String()),
			slog.String("geometry", geometry.String()),
		)
	}
	image.geometry = geometry
}

// reloadCatalog rereads the disk information record and the catalog. Track 0,
// side 0 is at the start of the image for every geometry, so this never
// depends on which geometry is in use.
func (image *Image) reloadCatalog() error {
	infoSector, err := image.ReadSector(0, 0, DiskInfoSector)
	if err != nil {
		return betadisk.ErrCatalogReadFailure.Wrap(err)
	}
	info, err := DecodeDiskInfo(infoSector)
	if err != nil {
		return betadisk.ErrCatalogReadFailure.Wrap(err)
	}

	catalog := make([]CatalogEntry, 0, MaxCatalogEntries)
	for sector := uint8(0); sector < CatalogSectors && len(catalog) < MaxCatalogEntries; sector++ {
		rawSector, err := image.ReadSector(0, 0, sector)
		if err != nil {
			image.logger.Warn(
				"stopped reading catalog early",
				slog.String("name", image.name),
				slog.Int("sector", int(sector)),
				slog.Any("error", err),
			)
			break
		}

		entries, err := DecodeCatalogSector(rawSector)
		if err != nil {
			break
		}
		for _, entry := range entries {
			if entry.IsValid() {
				catalog = append(catalog, entry)
			}
		}
	}

	image.diskInfo = info
	image.catalog = catalog
	image.catalogStale = false
	return nil
}

// Geometry returns the resolved geometry of the image.
func (image *Image) Geometry() disks.DiskGeometry {
	return image.geometry
}

func (image *Image) Name() string {
	return image.name
}

func (image *Image) IsReadOnly() bool {
	return image.readOnly
}

func (image *Image) IsClosed() bool {
	return image.closed
}

// IsDirty reports whether there are writes that haven't been flushed yet.
func (image *Image) IsDirty() bool {
	return image.dirty
}

// Catalog returns the valid catalog entries in the order they appear on disk.
// The returned slice is a copy.
func (image *Image) Catalog() ([]CatalogEntry, error) {
	err := image.refreshIfStale()
	if err != nil {
		return nil, err
	}
	result := make([]CatalogEntry, len(image.catalog))
	copy(result, image.catalog)
	return result, nil
}

// DiskInfo returns the disk information record.
func (image *Image) DiskInfo() (DiskInfo, error) {
	err := image.refreshIfStale()
	return image.diskInfo, err
}

func (image *Image) refreshIfStale() error {
	if image.closed {
		return betadisk.ErrClosed
	}
	if !image.catalogStale {
		return nil
	}
	return image.reloadCatalog()
}

// ReadSector returns a copy of one sector. Sector numbers are zero-based.
func (image *Image) ReadSector(track, side, sector uint8) ([]byte, error) {
	if image.closed {
		return nil, betadisk.ErrClosed
	}
	offset, err := image.geometry.SectorOffset(track, side, sector)
	if err != nil {
		return nil, err
	}

	_, err = image.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return nil, betadisk.ErrIOFault.Wrap(err)
	}

	buffer := make([]byte, betadisk.SectorSize)
	_, err = io.ReadFull(image.stream, buffer)
	if err != nil {
		return nil, betadisk.ErrIOFault.Wrap(
			fmt.Errorf("short read of track %d side %d sector %d: %w", track, side, sector, err))
	}
	return buffer, nil
}

// WriteSector overwrites one sector. `data` must be exactly one sector long.
func (image *Image) WriteSector(track, side, sector uint8, data []byte) error {
	if image.closed {
		return betadisk.ErrClosed
	}
	if image.readOnly {
		return betadisk.ErrReadOnly
	}
	if len(data) != betadisk.SectorSize {
		return betadisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("sector data must be %d bytes, got %d", betadisk.SectorSize, len(data)))
	}

	offset, err := image.geometry.SectorOffset(track, side, sector)
	if err != nil {
		return err
	}

	_, err = image.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return betadisk.ErrIOFault.Wrap(err)
	}

	n, err := image.stream.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return betadisk.ErrIOFault.Wrap(
			fmt.Errorf("failed to write track %d side %d sector %d: %w", track, side, sector, err))
	}

	image.dirty = true
	if track == 0 && side == 0 && sector <= DiskInfoSector {
		image.catalogStale = true
	}
	return nil
}

// Flush forces all writes out to durable storage. It does nothing for
// read-only images.
func (image *Image) Flush() error {
	if image.readOnly {
		return nil
	}
	if image.closed {
		return betadisk.ErrClosed
	}

	if syncer, ok := image.stream.(c.Syncer); ok {
		err := syncer.Sync()
		if err != nil {
			return betadisk.ErrIOFault.Wrap(err)
		}
	}
	image.dirty = false
	return nil
}

// Close flushes pending writes and releases the backing stream. The image
// can't be used afterwards.
func (image *Image) Close() error {
	if image.closed {
		return betadisk.ErrClosed
	}

	var result *multierror.Error
	if image.dirty {
		result = multierror.Append(result, image.Flush())
	}
	if closer, ok := image.stream.(io.Closer); ok {
		result = multierror.Append(result, closer.Close())
	}

	image.closed = true
	image.logger.Debug("closed raw image", slog.String("name", image.name))
	return result.ErrorOrNil()
}
