package trd_test

import (
	"bytes"
	"crypto/rand"
	_ "embed"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/betadisk"
	"github.com/dargueta/betadisk/disks"
	"github.com/dargueta/betadisk/drivers/trd"
	diskotest "github.com/dargueta/betadisk/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

//go:embed testdata/ambiguous-40ds.trd.rle.gz
var ambiguous40dsImage []byte

//go:embed testdata/ambiguous-80ss.trd.rle.gz
var ambiguous80ssImage []byte

//go:embed testdata/ambiguous-untyped.trd.rle.gz
var ambiguousUntypedImage []byte

// monitoredStream counts I/O calls and can be told to fail reads.
type monitoredStream struct {
	io.ReadWriteSeeker
	reads     int
	writes    int
	seeks     int
	failReads bool
}

var errInjected = errors.New("injected read failure")

func (s *monitoredStream) Read(p []byte) (int, error) {
	s.reads++
	if s.failReads {
		return 0, errInjected
	}
	return s.ReadWriteSeeker.Read(p)
}

func (s *monitoredStream) Write(p []byte) (int, error) {
	s.writes++
	return s.ReadWriteSeeker.Write(p)
}

func (s *monitoredStream) Seek(offset int64, whence int) (int64, error) {
	s.seeks++
	return s.ReadWriteSeeker.Seek(offset, whence)
}

func (s *monitoredStream) resetCounters() {
	s.reads = 0
	s.writes = 0
	s.seeks = 0
}

func newBlankImage(t *testing.T, totalBytes int64, diskTypeCode uint8) *trd.Image {
	stream := diskotest.CreateBlankImage(t, totalBytes, diskTypeCode, "BLANK")
	image, err := trd.New(stream, trd.Options{})
	require.NoError(t, err)
	return image
}

func TestNew__GeometryFromSize(t *testing.T) {
	image := newBlankImage(t, 655360, 0x16)
	assert.Equal(t, disks.DiskGeometry{Tracks: 80, Sides: 2}, image.Geometry())
	assert.False(t, image.IsReadOnly())
	assert.False(t, image.IsDirty())

	info, err := image.DiskInfo()
	require.NoError(t, err)
	assert.Equal(t, "BLANK", info.LabelString())
	assert.EqualValues(t, trd.TRDOSFormatID, info.FormatID)
}

func TestNew__AmbiguousSizeFixtures(t *testing.T) {
	tests := []struct {
		name     string
		fixture  []byte
		geometry disks.DiskGeometry
		label    string
	}{
		{"40 tracks double sided", ambiguous40dsImage, disks.DiskGeometry{Tracks: 40, Sides: 2}, "FORTY"},
		{"80 tracks single sided", ambiguous80ssImage, disks.DiskGeometry{Tracks: 80, Sides: 1}, "ONESIDE"},
		{"unknown type code", ambiguousUntypedImage, disks.DiskGeometry{Tracks: 80, Sides: 2}, "UNTYPED"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			stream := diskotest.LoadDiskImage(t, test.fixture, 327680)
			image, err := trd.New(stream, trd.Options{ReadOnly: true})
			require.NoError(t, err)
			assert.Equal(t, test.geometry, image.Geometry())

			info, err := image.DiskInfo()
			require.NoError(t, err)
			assert.Equal(t, test.label, info.LabelString())

			catalog, err := image.Catalog()
			require.NoError(t, err)
			require.Len(t, catalog, 2)
			assert.Equal(t, "GAME.B", catalog[0].Filename())
			assert.Equal(t, "DATA.C", catalog[1].Filename())
			assert.EqualValues(t, 1, catalog[1].StartTrack)
			assert.EqualValues(t, 3, catalog[1].StartSector)
		})
	}
}

func TestNew__UnsupportedSize(t *testing.T) {
	for _, size := range []int{0, 256, 163840, 655360 + 256} {
		stream := bytesextra.NewReadWriteSeeker(make([]byte, size))
		_, err := trd.New(stream, trd.Options{})
		assert.ErrorIsf(t, err, betadisk.ErrUnsupportedSize, "size %d should be rejected", size)
	}
}

func TestNew__DiskInfoUnreadable(t *testing.T) {
	stream := &monitoredStream{
		ReadWriteSeeker: diskotest.CreateBlankImage(t, 655360, 0x16, ""),
		failReads:       true,
	}
	_, err := trd.New(stream, trd.Options{})
	assert.ErrorIs(t, err, betadisk.ErrCatalogReadFailure)
	assert.ErrorIs(t, err, errInjected)
}

func TestReadWriteSector__RoundTrip(t *testing.T) {
	// Single-sided, so the track stride differs from the default geometry.
	image := newBlankImage(t, 327680, 0x18)

	geometry := image.Geometry()
	written := make(map[[3]uint8][]byte)
	for track := uint8(0); track < geometry.Tracks; track++ {
		for side := uint8(0); side < geometry.Sides; side++ {
			for sector := uint8(0); sector < betadisk.SectorsPerTrack; sector++ {
				data := make([]byte, betadisk.SectorSize)
				_, err := rand.Read(data)
				require.NoError(t, err)

				err = image.WriteSector(track, side, sector, data)
				require.NoErrorf(t, err, "failed to write %d/%d/%d", track, side, sector)
				written[[3]uint8{track, side, sector}] = data
			}
		}
	}
	assert.True(t, image.IsDirty())

	for address, expected := range written {
		actual, err := image.ReadSector(address[0], address[1], address[2])
		require.NoErrorf(t, err, "failed to read %v", address)
		assert.Equalf(t, expected, actual, "data at %v is wrong", address)
	}

	require.NoError(t, image.Flush())
	assert.False(t, image.IsDirty())
}

func TestReadSector__Layout(t *testing.T) {
	imageBytes := diskotest.CreateBlankImageBytes(t, 655360, 0x16, "")
	// Track 3, side 1, sector 5: 3*2*4096 + 4096 + 5*256
	copy(imageBytes[30976:], bytes.Repeat([]byte{0x77}, betadisk.SectorSize))

	image, err := trd.New(bytesextra.NewReadWriteSeeker(imageBytes), trd.Options{})
	require.NoError(t, err)

	data, err := image.ReadSector(3, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x77}, betadisk.SectorSize), data)

	data, err = image.ReadSector(3, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, betadisk.SectorSize), data)
}

func TestReadWriteSector__OutOfRangeNeverTouchesStream(t *testing.T) {
	stream := &monitoredStream{
		ReadWriteSeeker: diskotest.CreateBlankImage(t, 327680, 0x17, ""),
	}
	image, err := trd.New(stream, trd.Options{})
	require.NoError(t, err)
	stream.resetCounters()

	addresses := [][3]uint8{
		{40, 0, 0},
		{0, 2, 0},
		{0, 0, 16},
		{39, 1, 255},
		{255, 0, 0},
	}
	data := make([]byte, betadisk.SectorSize)
	for _, address := range addresses {
		_, err := image.ReadSector(address[0], address[1], address[2])
		assert.ErrorIsf(t, err, betadisk.ErrAddressOutOfRange, "reading %v", address)

		err = image.WriteSector(address[0], address[1], address[2], data)
		assert.ErrorIsf(t, err, betadisk.ErrAddressOutOfRange, "writing %v", address)
	}

	assert.Zero(t, stream.reads, "stream was read")
	assert.Zero(t, stream.writes, "stream was written")
	assert.Zero(t, stream.seeks, "stream was seeked")
	assert.False(t, image.IsDirty())
}

func TestReadSector__IOFault(t *testing.T) {
	stream := &monitoredStream{
		ReadWriteSeeker: diskotest.CreateBlankImage(t, 655360, 0x16, ""),
	}
	image, err := trd.New(stream, trd.Options{})
	require.NoError(t, err)

	stream.failReads = true
	_, err = image.ReadSector(10, 1, 3)
	assert.ErrorIs(t, err, betadisk.ErrIOFault)
}

func TestReadSector__GeometryLargerThanStream(t *testing.T) {
	// Type code says 80 tracks on two sides, but the image only has half that.
	image := newBlankImage(t, 327680, 0x16)
	require.Equal(t, disks.DiskGeometry{Tracks: 80, Sides: 2}, image.Geometry())

	_, err := image.ReadSector(79, 1, 15)
	assert.ErrorIs(t, err, betadisk.ErrIOFault)
}

func TestWriteSector__ReadOnly(t *testing.T) {
	imageBytes := diskotest.CreateBlankImageBytes(t, 655360, 0x16, "")
	original := bytes.Clone(imageBytes)

	image, err := trd.New(bytesextra.NewReadWriteSeeker(imageBytes), trd.Options{ReadOnly: true})
	require.NoError(t, err)
	assert.True(t, image.IsReadOnly())

	err = image.WriteSector(1, 0, 0, bytes.Repeat([]byte{0xaa}, betadisk.SectorSize))
	assert.ErrorIs(t, err, betadisk.ErrReadOnly)
	assert.False(t, image.IsDirty())
	assert.Equal(t, original, imageBytes, "read-only image was modified")

	assert.NoError(t, image.Flush())
}

func TestWriteSector__WrongSize(t *testing.T) {
	image := newBlankImage(t, 655360, 0x16)
	err := image.WriteSector(1, 0, 0, make([]byte, 255))
	assert.ErrorIs(t, err, betadisk.ErrInvalidArgument)
	assert.False(t, image.IsDirty())
}

func TestCatalog__SkipsEmptyAndDeletedSlots(t *testing.T) {
	imageBytes := diskotest.CreateBlankImageBytes(t, 655360, 0x16, "")

	diskotest.PutCatalogEntry(t, imageBytes, 0, diskotest.MakeCatalogEntry("FIRST", 'B', 1))
	deleted := diskotest.MakeCatalogEntry("GONE", 'C', 1)
	deleted.Name[0] = 0x01
	diskotest.PutCatalogEntry(t, imageBytes, 1, deleted)
	empty := diskotest.MakeCatalogEntry("EMPTY", 'C', 1)
	empty.Name[0] = 0x00
	diskotest.PutCatalogEntry(t, imageBytes, 2, empty)
	diskotest.PutCatalogEntry(t, imageBytes, 17, diskotest.MakeCatalogEntry("SECOND", 'C', 4))
	diskotest.PutCatalogEntry(t, imageBytes, 127, diskotest.MakeCatalogEntry("LAST", 'D', 2))

	image, err := trd.New(bytesextra.NewReadWriteSeeker(imageBytes), trd.Options{})
	require.NoError(t, err)

	catalog, err := image.Catalog()
	require.NoError(t, err)
	require.Len(t, catalog, 3)
	assert.Equal(t, "FIRST.B", catalog[0].Filename())
	assert.Equal(t, "SECOND.C", catalog[1].Filename())
	assert.Equal(t, "LAST.D", catalog[2].Filename())
	assert.EqualValues(t, 4, catalog[1].SectorsUsed)
}

func TestCatalog__NeverExceedsMaximum(t *testing.T) {
	imageBytes := diskotest.CreateBlankImageBytes(t, 655360, 0x16, "")
	for slot := 0; slot < trd.MaxCatalogEntries; slot++ {
		diskotest.PutCatalogEntry(t, imageBytes, slot, diskotest.MakeCatalogEntry("FILE", 'C', 1))
	}
	// Garbage right after the catalog must not be picked up as more entries.
	copy(imageBytes[trd.DiskInfoSector*betadisk.SectorSize+trd.DiskInfoSize:], "NOTAFILE")

	image, err := trd.New(bytesextra.NewReadWriteSeeker(imageBytes), trd.Options{})
	require.NoError(t, err)

	catalog, err := image.Catalog()
	require.NoError(t, err)
	assert.Len(t, catalog, trd.MaxCatalogEntries)
}

func TestCatalog__RefreshedAfterWrite(t *testing.T) {
	image := newBlankImage(t, 655360, 0x16)
	catalog, err := image.Catalog()
	require.NoError(t, err)
	require.Empty(t, catalog)

	sector := make([]byte, betadisk.SectorSize)
	diskotest.PutCatalogEntry(t, sector, 0, diskotest.MakeCatalogEntry("NEWFILE", 'B', 1))
	require.NoError(t, image.WriteSector(0, 0, 0, sector))

	catalog, err = image.Catalog()
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, "NEWFILE.B", catalog[0].Filename())
}

func TestCatalog__RefreshKeepsGeometry(t *testing.T) {
	image := newBlankImage(t, 327680, disks.DiskType80SS)
	singleSided := disks.DiskGeometry{Tracks: 80, Sides: 1}
	require.Equal(t, singleSided, image.Geometry())

	marked := bytes.Repeat([]byte{0xaa}, betadisk.SectorSize)
	require.NoError(t, image.WriteSector(1, 0, 0, marked))

	infoSector, err := image.ReadSector(0, 0, trd.DiskInfoSector)
	require.NoError(t, err)
	infoSector[0] = disks.DiskType80DS
	require.NoError(t, image.WriteSector(0, 0, trd.DiskInfoSector, infoSector))

	info, err := image.DiskInfo()
	require.NoError(t, err)
	assert.EqualValues(t, disks.DiskType80DS, info.DiskType, "disk info wasn't refreshed")

	_, err = image.Catalog()
	require.NoError(t, err)
	assert.Equal(t, singleSided, image.Geometry(), "geometry changed after refresh")

	data, err := image.ReadSector(1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, marked, data)

	_, err = image.ReadSector(79, 0, 15)
	assert.NoError(t, err, "last track became unreachable")
}

func TestClose(t *testing.T) {
	image := newBlankImage(t, 655360, 0x16)
	require.NoError(t, image.Close())
	assert.True(t, image.IsClosed())

	_, err := image.ReadSector(0, 0, 0)
	assert.ErrorIs(t, err, betadisk.ErrClosed)
	err = image.WriteSector(0, 0, 0, make([]byte, betadisk.SectorSize))
	assert.ErrorIs(t, err, betadisk.ErrClosed)
	assert.ErrorIs(t, image.Close(), betadisk.ErrClosed)
}

func writeImageFile(t *testing.T, totalBytes int64, diskTypeCode uint8) string {
	path := filepath.Join(t.TempDir(), "disk.trd")
	imageBytes := diskotest.CreateBlankImageBytes(t, totalBytes, diskTypeCode, "ONDISK")
	require.NoError(t, os.WriteFile(path, imageBytes, 0o644))
	return path
}

func TestOpen__WritesPersist(t *testing.T) {
	path := writeImageFile(t, 655360, 0x16)

	image, err := trd.Open(path, true)
	require.NoError(t, err)
	require.False(t, image.IsReadOnly())

	data := bytes.Repeat([]byte{0x5a}, betadisk.SectorSize)
	require.NoError(t, image.WriteSector(12, 1, 9, data))
	require.NoError(t, image.Close())

	image, err = trd.Open(path, false)
	require.NoError(t, err)
	defer image.Close()
	assert.True(t, image.IsReadOnly())

	actual, err := image.ReadSector(12, 1, 9)
	require.NoError(t, err)
	assert.Equal(t, data, actual)
}

func TestOpen__DegradesToReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions aren't enforced for root")
	}

	path := writeImageFile(t, 655360, 0x16)
	require.NoError(t, os.Chmod(path, 0o444))

	image, err := trd.Open(path, true)
	require.NoError(t, err, "opening a read-only file for writing should degrade, not fail")
	defer image.Close()
	assert.True(t, image.IsReadOnly())

	err = image.WriteSector(1, 0, 0, make([]byte, betadisk.SectorSize))
	assert.ErrorIs(t, err, betadisk.ErrReadOnly)
}

func TestOpen__MissingFile(t *testing.T) {
	_, err := trd.Open(filepath.Join(t.TempDir(), "nope.trd"), true)
	assert.ErrorIs(t, err, betadisk.ErrIOFault)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestListFiles(t *testing.T) {
	imageBytes := diskotest.CreateBlankImageBytes(t, 655360, 0x16, "MYDISK")
	diskotest.PutCatalogEntry(t, imageBytes, 0, diskotest.MakeCatalogEntry("GAME", 'C', 2))

	image, err := trd.New(bytesextra.NewReadWriteSeeker(imageBytes), trd.Options{})
	require.NoError(t, err)

	var output bytes.Buffer
	require.NoError(t, trd.ListFiles(&output, image))
	assert.Contains(t, output.String(), `Label: "MYDISK"`)
	assert.Contains(t, output.String(), "GAME")
	assert.Contains(t, output.String(), "80 tracks, 2 sides")
}
