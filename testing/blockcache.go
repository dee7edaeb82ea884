package testing

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/dargueta/betadisk"
	c "github.com/dargueta/betadisk/drivers/common"
	"github.com/dargueta/betadisk/drivers/common/blockcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateRandomImage returns `totalBlocks` blocks of random bytes, or fails the
// test.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}

// CreateDefaultCache creates a block cache over `backingData`, which must be at
// least `bytesPerBlock * totalBlocks` bytes. Passing nil gets random data. The
// cache can't be resized.
//
// If `writable` is false, any attempt to flush a block fails the test. The
// callbacks also fail the test on out-of-bounds access, so this can't be used
// to check that the cache itself rejects bad addresses.
func CreateDefaultCache(
	bytesPerBlock,
	totalBlocks uint,
	writable bool,
	backingData []byte,
	t *testing.T,
) *blockcache.BlockCache {
	if backingData == nil {
		backingData = CreateRandomImage(bytesPerBlock, totalBlocks, t)
	}

	checkBounds := func(action string, blockIndex c.LogicalBlock) error {
		if uint(blockIndex) < totalBlocks {
			return nil
		}
		message := fmt.Sprintf(
			"attempted to %s outside bounds: block %d not in [0, %d)",
			action,
			blockIndex,
			totalBlocks,
		)
		t.Error(message)
		return betadisk.ErrAddressOutOfRange.WithMessage(message)
	}

	fetchCallback := func(blockIndex c.LogicalBlock, buffer []byte) error {
		if err := checkBounds("read", blockIndex); err != nil {
			return err
		}
		start := uint(blockIndex) * bytesPerBlock
		copy(buffer, backingData[start:start+bytesPerBlock])
		return nil
	}

	flushCallback := func(blockIndex c.LogicalBlock, buffer []byte) error {
		if !writable {
			message := fmt.Sprintf(
				"attempted to write %d bytes to block %d of read-only image",
				len(buffer),
				blockIndex,
			)
			t.Error(message)
			return betadisk.ErrReadOnly.WithMessage(message)
		}
		if err := checkBounds("write", blockIndex); err != nil {
			return err
		}
		start := uint(blockIndex) * bytesPerBlock
		copy(backingData[start:start+bytesPerBlock], buffer)
		return nil
	}

	cache := blockcache.New(bytesPerBlock, totalBlocks, fetchCallback, flushCallback, nil)
	assert.EqualValues(t, totalBlocks, cache.TotalBlocks(), "wrong total blocks")
	return cache
}
