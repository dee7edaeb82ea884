// Package common contains definitions of fundamental types and functions used
// across multiple image format implementations.
package common

import (
	"io"
	"log/slog"

	"github.com/dargueta/betadisk"
)

// LogicalBlock is the linear index of a sector from the beginning of an image.
type LogicalBlock uint

// Truncator is an interface for objects that support a Truncate() method. This
// method must behave just like [os.File.Truncate].
type Truncator interface {
	Truncate(size int64) error
}

// Syncer is implemented by backing stores that can force their contents to
// durable storage, such as [os.File].
type Syncer interface {
	Sync() error
}

// LogicalTrackToBlock converts a TR-DOS logical track and a zero-based sector
// number into a linear block index. Logical tracks count both sides of a
// physical track, so on a double-sided disk logical track 1 is physical track 0,
// side 1.
func LogicalTrackToBlock(logicalTrack, sector uint) LogicalBlock {
	return LogicalBlock(logicalTrack*betadisk.SectorsPerTrack + sector)
}

// DetermineStreamSize gives the total size of a stream in bytes, and leaves the
// stream pointer at the beginning.
func DetermineStreamSize(stream io.Seeker) (int64, error) {
	size, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	_, err = stream.Seek(0, io.SeekStart)
	return size, err
}

// LoggerOrDiscard returns `logger`, or a logger that drops everything if it's
// nil.
func LoggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
