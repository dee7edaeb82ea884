package scl

import (
	"bufio"
	"log/slog"
	"os"

	"github.com/dargueta/betadisk"
	c "github.com/dargueta/betadisk/drivers/common"
	"github.com/dargueta/betadisk/drivers/trd"
	"github.com/hashicorp/go-multierror"
)

// Image is an archive unpacked into a temporary raw image. It's always
// read-only. The temporary file is deleted by [Image.Close].
type Image struct {
	*trd.Image
	descriptors []Descriptor
	tempPath    string
	logger      *slog.Logger
}

var _ betadisk.SectorDevice = (*Image)(nil)

// Open unpacks the archive at `path`. The archive file itself is closed before
// this returns.
func Open(path string, opts Options) (*Image, error) {
	logger := c.LoggerOrDiscard(opts.Logger)

	source, err := os.Open(path)
	if err != nil {
		return nil, betadisk.ErrIOFault.Wrap(err)
	}
	defer source.Close()

	tempFile, err := os.CreateTemp(opts.TempDir, "betadisk-scl-*.trd")
	if err != nil {
		return nil, betadisk.ErrIOFault.Wrap(err)
	}
	tempPath := tempFile.Name()

	discard := func(cause error) (*Image, error) {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, cause
	}

	descriptors, err := Convert(bufio.NewReader(source), tempFile, opts)
	if err != nil {
		return discard(err)
	}

	rawImage, err := trd.New(
		tempFile,
		trd.Options{ReadOnly: true, Name: path, Logger: opts.Logger},
	)
	if err != nil {
		return discard(err)
	}

	logger.Debug(
		"unpacked archive",
		slog.String("path", path),
		slog.String("temp_path", tempPath),
		slog.Int("files", len(descriptors)),
	)
	return &Image{
		Image:       rawImage,
		descriptors: descriptors,
		tempPath:    tempPath,
		logger:      logger,
	}, nil
}

// Descriptors returns the file descriptors from the archive header, in order.
func (image *Image) Descriptors() []Descriptor {
	result := make([]Descriptor, len(image.descriptors))
	copy(result, image.descriptors)
	return result
}

// TempPath gives the path of the unpacked raw image. It doesn't exist after
// the image is closed.
func (image *Image) TempPath() string {
	return image.tempPath
}

// Close releases the unpacked image and deletes its file.
func (image *Image) Close() error {
	var result *multierror.Error
	result = multierror.Append(result, image.Image.Close())

	err := os.Remove(image.tempPath)
	if err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, betadisk.ErrIOFault.Wrap(err))
	}
	image.logger.Debug("removed unpacked archive", slog.String("temp_path", image.tempPath))
	return result.ErrorOrNil()
}
