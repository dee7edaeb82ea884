package compression

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// maxRunLength is the longest run a single RLE8 group can hold.
const maxRunLength = 257

// byteRun is a sequence of one repeated byte value.
type byteRun struct {
	value  byte
	length int
}

// nextRun reads the longest run of identical bytes at the start of `source`.
// It returns io.EOF only if no bytes at all were available.
func nextRun(source *bufio.Reader) (byteRun, error) {
	first, err := source.ReadByte()
	if err != nil {
		return byteRun{}, err
	}

	run := byteRun{value: first, length: 1}
	for {
		current, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			return run, nil
		} else if err != nil {
			return run, err
		}

		if current != first {
			return run, source.UnreadByte()
		}
		run.length++
	}
}

// encodeRun converts a run into its RLE8 representation.
func encodeRun(run byteRun) []byte {
	encoded := make([]byte, 0, 3*(run.length/maxRunLength+1))
	remaining := run.length
	for remaining >= 2 {
		groupLength := min(remaining, maxRunLength)
		encoded = append(encoded, run.value, run.value, byte(groupLength-2))
		remaining -= groupLength
	}
	if remaining == 1 {
		encoded = append(encoded, run.value)
	}
	return encoded
}

// EncodeRLE8 compresses everything in `input` and writes it to `output`. It
// returns the number of bytes written.
func EncodeRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	written := int64(0)

	for {
		run, err := nextRun(source)
		if errors.Is(err, io.EOF) {
			return written, nil
		} else if err != nil {
			return written, fmt.Errorf("error reading input: %w", err)
		}

		n, err := output.Write(encodeRun(run))
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}

// DecodeRLE8 reverses [EncodeRLE8]. A stream that ends between a repeated pair
// and its count fails with an error wrapping [io.ErrUnexpectedEOF].
func DecodeRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	written := int64(0)
	previous := -1

	for {
		current, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			return written, nil
		} else if err != nil {
			return written, fmt.Errorf("error reading input: %w", err)
		}

		decoded := []byte{current}
		if int(current) == previous {
			count, err := source.ReadByte()
			if errors.Is(err, io.EOF) {
				return written, fmt.Errorf(
					"%w: no repeat count after pair of %#02x", io.ErrUnexpectedEOF, current)
			} else if err != nil {
				return written, fmt.Errorf("error reading input: %w", err)
			}

			// One copy of the pair was already written on the previous pass.
			decoded = make([]byte, int(count)+1)
			for i := range decoded {
				decoded[i] = current
			}
			// A new group starts after the count byte, so the next byte can't
			// complete a pair with this one.
			previous = -1
		} else {
			previous = int(current)
		}

		n, err := output.Write(decoded)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}
