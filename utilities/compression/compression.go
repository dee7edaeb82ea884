package compression

import (
	"bytes"
	"compress/gzip"
	"io"
)

// CompressImage run-length encodes a raw image and gzips the result. It
// returns the number of bytes passed to the gzip writer, which is the size of
// the RLE8 stream, not the final output.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	gzWriter, err := gzip.NewWriterLevel(output, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	n, err := EncodeRLE8(input, gzWriter)
	if err != nil {
		gzWriter.Close()
		return n, err
	}
	return n, gzWriter.Close()
}

// DecompressImage reverses [CompressImage], returning the size of the raw
// image.
func DecompressImage(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, err
	}
	defer gzReader.Close()
	return DecodeRLE8(gzReader, output)
}

// DecompressImageToBytes is like [DecompressImage] but returns the raw image
// as a new slice.
func DecompressImageToBytes(input io.Reader) ([]byte, error) {
	var buffer bytes.Buffer
	_, err := DecompressImage(input, &buffer)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
