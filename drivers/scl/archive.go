// Package scl reads SCL archives. An archive is a list of TR-DOS files with
// no disk layout of its own, so it's unpacked into a raw image before use.
package scl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dargueta/betadisk"
	"github.com/dargueta/betadisk/drivers/trd"
)

// Signature is the magic string at the start of every archive.
const Signature = "SINCLAIR"

// DescriptorSize is the size of one file descriptor in the archive header.
const DescriptorSize = 14

// Descriptor describes one file in an archive. It's a catalog entry without
// the location on disk.
type Descriptor struct {
	Name        [8]byte
	Extension   byte
	StartParam  uint16
	LengthBytes uint16
	SectorsUsed uint8
}

// Filename returns the name as it's usually written, e.g. "GAME.C".
func (d Descriptor) Filename() string {
	return d.CatalogEntry(0, 0).Filename()
}

// PayloadSize gives the number of bytes the file's data takes in the archive.
func (d Descriptor) PayloadSize() int {
	return int(d.SectorsUsed) * betadisk.SectorSize
}

// CatalogEntry converts the descriptor into a catalog entry for a file stored
// at the given logical track and sector.
func (d Descriptor) CatalogEntry(startTrack, startSector uint8) trd.CatalogEntry {
	return trd.CatalogEntry{
		Name:        d.Name,
		Extension:   d.Extension,
		StartParam:  d.StartParam,
		LengthBytes: d.LengthBytes,
		SectorsUsed: d.SectorsUsed,
		StartSector: startSector,
		StartTrack:  startTrack,
	}
}

func (d Descriptor) String() string {
	return fmt.Sprintf(
		"%s (%d bytes, %d sectors)", d.Filename(), d.LengthBytes, d.SectorsUsed)
}

// ReadHeader reads the signature, file count, and descriptor table from the
// beginning of an archive. On success, `source` is positioned at the first
// byte of the first file's payload.
func ReadHeader(source io.Reader) ([]Descriptor, error) {
	header := make([]byte, len(Signature)+1)
	_, err := io.ReadFull(source, header)
	if err != nil {
		return nil, betadisk.ErrIncompatibleFormat.Wrap(
			fmt.Errorf("can't read archive header: %w", err))
	}

	if !bytes.Equal(header[:len(Signature)], []byte(Signature)) {
		return nil, betadisk.ErrIncompatibleFormat.WithMessage(
			fmt.Sprintf("bad signature: expected %q, got %q", Signature, header[:len(Signature)]))
	}

	fileCount := int(header[len(Signature)])
	if fileCount > trd.MaxCatalogEntries {
		return nil, betadisk.ErrIncompatibleFormat.WithMessage(
			fmt.Sprintf(
				"archive has %d files, a disk can only hold %d", fileCount, trd.MaxCatalogEntries))
	}

	descriptors := make([]Descriptor, fileCount)
	err = binary.Read(source, binary.LittleEndian, descriptors)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, betadisk.ErrIncompatibleFormat.Wrap(
			fmt.Errorf("descriptor table truncated: %w", err))
	}
	return descriptors, nil
}
