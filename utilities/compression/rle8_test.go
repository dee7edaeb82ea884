package compression_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	c "github.com/dargueta/betadisk/utilities/compression"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRLE8(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{"empty", []byte{}, []byte{}},
		{"pair only", []byte{4, 4}, []byte{4, 4, 0}},
		{"no runs", []byte{0, 1, 2, 3, 4}, []byte{0, 1, 2, 3, 4}},
		{"pair at end", []byte{6, 1, 3, 0, 0}, []byte{6, 1, 3, 0, 0, 0}},
		{"short run", []byte{9, 5, 5, 5, 5, 5, 3, 7}, []byte{9, 5, 5, 3, 3, 7}},
		{
			"adjacent runs",
			[]byte{9, 5, 5, 5, 5, 5, 5, 3, 3, 3, 3, 7},
			[]byte{9, 5, 5, 4, 3, 3, 2, 7},
		},
		{"longest group", bytes.Repeat([]byte{8}, 257), []byte{8, 8, 255}},
		{"one over", bytes.Repeat([]byte{8}, 258), []byte{8, 8, 255, 8}},
		{"two over", bytes.Repeat([]byte{8}, 259), []byte{8, 8, 255, 8, 8, 0}},
		{
			"one sector of formatting filler",
			bytes.Repeat([]byte{0xe5}, 1024),
			[]byte{0xe5, 0xe5, 255, 0xe5, 0xe5, 255, 0xe5, 0xe5, 255, 0xe5, 0xe5, 251},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			output := make([]byte, len(test.expected)+8)
			n, err := c.EncodeRLE8(bytes.NewReader(test.input), bytewriter.New(output))
			require.NoError(t, err)
			assert.EqualValues(t, len(test.expected), n, "wrong number of bytes written")
			assert.Equal(t, test.expected, output[:n])
		})
	}
}

func TestRLE8RoundTrip(t *testing.T) {
	randomData := make([]byte, 1852)
	_, err := rand.Read(randomData)
	require.NoError(t, err)

	tests := map[string][]byte{
		"random":    randomData,
		"nulls":     make([]byte, 571),
		"non-null":  bytes.Repeat([]byte{182}, 934),
		"empty":     {},
		"one track": append(bytes.Repeat([]byte{0}, 4000), 1, 2, 2, 3, 3, 3),
	}

	for name, original := range tests {
		t.Run(name, func(t *testing.T) {
			var compressed bytes.Buffer
			_, err := c.EncodeRLE8(bytes.NewReader(original), &compressed)
			require.NoError(t, err)

			var decompressed bytes.Buffer
			n, err := c.DecodeRLE8(&compressed, &decompressed)
			require.NoError(t, err)
			assert.EqualValues(t, len(original), n)
			assert.True(t, bytes.Equal(original, decompressed.Bytes()), "data differs after round trip")
		})
	}
}

func TestDecodeRLE8__MissingRepeatCount(t *testing.T) {
	var output bytes.Buffer
	_, err := c.DecodeRLE8(bytes.NewReader([]byte{9, 1, 4, 4}), &output)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
