package testing

import (
	"encoding/binary"
	"testing"

	"github.com/dargueta/betadisk"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/require"
)

// ArchiveFile describes one file to put into an archive built by
// [BuildArchive].
type ArchiveFile struct {
	Name        string
	Extension   byte
	StartParam  uint16
	LengthBytes uint16
	SectorsUsed uint8
	// Fill is the value every payload byte is set to.
	Fill byte
}

// BuildArchive returns the bytes of an archive holding `files`, payloads
// included.
func BuildArchive(t *testing.T, files []ArchiveFile) []byte {
	size := 9 + 14*len(files)
	for _, file := range files {
		size += int(file.SectorsUsed) * betadisk.SectorSize
	}

	buffer := make([]byte, size)
	writer := bytewriter.New(buffer)

	_, err := writer.Write([]byte("SINCLAIR"))
	require.NoError(t, err)
	_, err = writer.Write([]byte{byte(len(files))})
	require.NoError(t, err)

	for _, file := range files {
		name := []byte("        ")
		copy(name, file.Name)
		_, err = writer.Write(name)
		require.NoError(t, err)
		_, err = writer.Write([]byte{file.Extension})
		require.NoError(t, err)
		require.NoError(t, binary.Write(writer, binary.LittleEndian, file.StartParam))
		require.NoError(t, binary.Write(writer, binary.LittleEndian, file.LengthBytes))
		_, err = writer.Write([]byte{file.SectorsUsed})
		require.NoError(t, err)
	}

	for _, file := range files {
		payload := make([]byte, int(file.SectorsUsed)*betadisk.SectorSize)
		for i := range payload {
			payload[i] = file.Fill
		}
		_, err = writer.Write(payload)
		require.NoError(t, err)
	}
	return buffer
}
