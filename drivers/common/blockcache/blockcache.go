// Package blockcache provides a sector-oriented write-back cache over a backing
// stream. It's used to assemble whole images in memory before committing them
// to storage in one pass, resizing the storage to fit if needed.
//
// All block indices begin at 0.

package blockcache

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/betadisk"
	c "github.com/dargueta/betadisk/drivers/common"
)

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the backing storage into `buffer`. The following guarantees
// apply:
//
// - `blockIndex` is in the range [0, TotalBlocks).
// - `buffer` is always BytesPerBlock bytes.
type FetchBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

// FlushBlockCallback is a pointer to a function that writes the contents of the
// given buffer to a block in the backing storage. All restrictions and
// guarantees in [FetchBlockCallback] apply here too.
type FlushBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

// ResizeCallback is a pointer to a function that is called to grow or shrink
// the backing storage. It takes one argument, the new total number of blocks.
type ResizeCallback func(newTotalBlocks uint) error

type BlockCache struct {
	loadedBlocks  bitmap.Bitmap
	dirtyBlocks   bitmap.Bitmap
	fetch         FetchBlockCallback
	flush         FlushBlockCallback
	resize        ResizeCallback
	bytesPerBlock uint
	totalBlocks   uint
	data          []byte
}

// New creates a new BlockCache. If `resizeCb` is nil, resizing always fails
// with [betadisk.ErrInvalidArgument].
func New(
	bytesPerBlock uint,
	totalBlocks uint,
	fetchCb FetchBlockCallback,
	flushCb FlushBlockCallback,
	resizeCb ResizeCallback,
) *BlockCache {
	if resizeCb == nil {
		resizeCb = func(newTotalBlocks uint) error {
			return betadisk.ErrInvalidArgument.WithMessage(
				fmt.Sprintf(
					"resizing is not supported; size fixed at %d bytes",
					bytesPerBlock*totalBlocks,
				),
			)
		}
	}

	return &BlockCache{
		loadedBlocks:  bitmap.New(int(totalBlocks)),
		dirtyBlocks:   bitmap.New(int(totalBlocks)),
		data:          make([]byte, int(bytesPerBlock*totalBlocks)),
		fetch:         fetchCb,
		flush:         flushCb,
		resize:        resizeCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// WrapStream creates a [BlockCache] over an [io.ReadWriteSeeker]. Resizing is
// only possible if `stream` implements [common.Truncator].
func WrapStream(
	stream io.ReadWriteSeeker,
	bytesPerBlock uint,
	totalBlocks uint,
) *BlockCache {
	cache := &BlockCache{}

	fetchCb := func(block c.LogicalBlock, buffer []byte) error {
		err := seekToBlock(stream, block, cache.totalBlocks, bytesPerBlock)
		if err != nil {
			return err
		}

		_, err = io.ReadFull(stream, buffer)
		return err
	}

	flushCb := func(block c.LogicalBlock, buffer []byte) error {
		err := seekToBlock(stream, block, cache.totalBlocks, bytesPerBlock)
		if err != nil {
			return err
		}
		_, err = stream.Write(buffer)
		return err
	}

	var resizeCb ResizeCallback
	if truncator, ok := stream.(c.Truncator); ok {
		resizeCb = func(newTotalBlocks uint) error {
			return truncator.Truncate(int64(newTotalBlocks) * int64(bytesPerBlock))
		}
	}

	*cache = *New(bytesPerBlock, totalBlocks, fetchCb, flushCb, resizeCb)
	return cache
}

// seekToBlock sets the stream pointer for a stream to the offset of a block.
func seekToBlock(stream io.Seeker, block c.LogicalBlock, totalBlocks, bytesPerBlock uint) error {
	if uint(block) >= totalBlocks {
		return betadisk.ErrAddressOutOfRange.WithMessage(
			fmt.Sprintf("invalid block number: %d not in range [0, %d)", block, totalBlocks),
		)
	}

	blockOffset := int64(block) * int64(bytesPerBlock)
	_, err := stream.Seek(blockOffset, io.SeekStart)
	return err
}

// TotalBlocks returns the size of the cache, in blocks. To change the size of
// the cache, use the Resize() function.
func (cache *BlockCache) TotalBlocks() uint {
	return cache.totalBlocks
}

// LengthToNumBlocks gives the minimum number of blocks required to hold the
// given number of bytes.
func (cache *BlockCache) LengthToNumBlocks(size uint) uint {
	return (size + cache.bytesPerBlock - 1) / cache.bytesPerBlock
}

// checkBounds verifies that `count` blocks can be accessed in the cache
// starting from block `start`.
func (cache *BlockCache) checkBounds(start c.LogicalBlock, count uint) error {
	if uint(start) >= cache.totalBlocks || uint(start)+count > cache.totalBlocks {
		return betadisk.ErrAddressOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't access %d blocks from block %d; range not in [0, %d)",
				count,
				start,
				cache.totalBlocks,
			),
		)
	}
	return nil
}

// GetSlice returns a slice pointing to the cache's storage, beginning at block
// `start` and continuing for `count` blocks.
//
// If the returned slice is modified, the modified blocks MUST be marked as
// dirty.
func (cache *BlockCache) GetSlice(start c.LogicalBlock, count uint) ([]byte, error) {
	err := cache.loadBlockRange(start, count)
	if err != nil {
		return nil, err
	}

	startOffset := uint(start) * cache.bytesPerBlock
	endOffset := startOffset + (count * cache.bytesPerBlock)
	return cache.data[startOffset:endOffset], nil
}

// loadBlockRange ensures that all blocks in the range [start, start + count) are
// present in the cache, and loads any missing ones from storage.
func (cache *BlockCache) loadBlockRange(start c.LogicalBlock, count uint) error {
	if count == 0 {
		return nil
	}
	err := cache.checkBounds(start, count)
	if err != nil {
		return err
	}

	for blockIndex := int(start); uint(blockIndex) < uint(start)+count; blockIndex++ {
		// Dirty blocks are present by definition, so checking `loadedBlocks`
		// is enough.
		if cache.loadedBlocks.Get(blockIndex) {
			continue
		}

		offset := uint(blockIndex) * cache.bytesPerBlock
		buffer := cache.data[offset : offset+cache.bytesPerBlock]

		err = cache.fetch(c.LogicalBlock(blockIndex), buffer)
		if err != nil {
			return betadisk.ErrIOFault.Wrap(
				fmt.Errorf("failed to load block %d from source: %w", blockIndex, err))
		}

		cache.loadedBlocks.Set(blockIndex, true)
		cache.dirtyBlocks.Set(blockIndex, false)
	}

	return nil
}

// Flush writes out all dirty blocks (and only dirty blocks) to the underlying
// storage and marks them as clean.
func (cache *BlockCache) Flush() error {
	for blockIndex := 0; uint(blockIndex) < cache.totalBlocks; blockIndex++ {
		if !cache.dirtyBlocks.Get(blockIndex) {
			continue
		}

		offset := uint(blockIndex) * cache.bytesPerBlock
		err := cache.flush(
			c.LogicalBlock(blockIndex), cache.data[offset:offset+cache.bytesPerBlock])
		if err != nil {
			return betadisk.ErrIOFault.Wrap(
				fmt.Errorf("failed to flush block %d to storage: %w", blockIndex, err))
		}
		cache.dirtyBlocks.Set(blockIndex, false)
	}
	return nil
}

// DirtyBlocks gives the number of blocks that will be written on the next call
// to Flush.
func (cache *BlockCache) DirtyBlocks() uint {
	count := uint(0)
	for i := 0; uint(i) < cache.totalBlocks; i++ {
		if cache.dirtyBlocks.Get(i) {
			count++
		}
	}
	return count
}

// Write copies data into the cache from `buffer`, beginning at block `start`.
// All modified blocks are marked as dirty. `buffer` does not need to be an
// exact multiple of the size of one block.
//
// Attempting to write past the end of the cache will result in an error, and
// the cache will be left unmodified.
func (cache *BlockCache) Write(start c.LogicalBlock, buffer []byte) error {
	numBlocks := cache.LengthToNumBlocks(uint(len(buffer)))
	targetSlice, err := cache.GetSlice(start, numBlocks)
	if err != nil {
		return err
	}

	copy(targetSlice, buffer)
	return cache.MarkBlockRangeDirty(start, numBlocks)
}

// Resize changes the number of blocks in the cache. Blocks are added to and
// removed from the end.
//
// New blocks are zeroed out and treated as dirty, so flushing the cache will
// write them out.
func (cache *BlockCache) Resize(newTotalBlocks uint) error {
	err := cache.resize(newTotalBlocks)
	if err != nil {
		return err
	}

	newCacheData := make([]byte, newTotalBlocks*cache.bytesPerBlock)
	copy(newCacheData, cache.data)

	newDirtyBlocks := bitmap.New(int(newTotalBlocks))
	newLoadedBlocks := bitmap.New(int(newTotalBlocks))
	copy(newDirtyBlocks, cache.dirtyBlocks)
	copy(newLoadedBlocks, cache.loadedBlocks)

	// If we didn't mark new blocks dirty, they wouldn't get written and the
	// backing store could end up with trailing garbage.
	for i := cache.totalBlocks; i < newTotalBlocks; i++ {
		newDirtyBlocks.Set(int(i), true)
		newLoadedBlocks.Set(int(i), true)
	}

	cache.data = newCacheData
	cache.dirtyBlocks = newDirtyBlocks
	cache.loadedBlocks = newLoadedBlocks
	cache.totalBlocks = newTotalBlocks
	return nil
}

// MarkBlockRangeDirty marks a range of blocks as modified. They will be written
// out to the backing storage on the next call to [BlockCache.Flush].
func (cache *BlockCache) MarkBlockRangeDirty(start c.LogicalBlock, count uint) error {
	if count == 0 {
		return nil
	}
	err := cache.checkBounds(start, count)
	if err != nil {
		return err
	}

	for i := uint(0); i < count; i++ {
		bitIndex := int(start) + int(i)
		cache.dirtyBlocks.Set(bitIndex, true)
		cache.loadedBlocks.Set(bitIndex, true)
	}
	return nil
}
