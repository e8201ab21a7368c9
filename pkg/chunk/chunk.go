// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package chunk splits object payloads into fixed size chunks and
// reassembles them.
//
// The payload of an object is the concatenation of its metadata and its
// data. Chunk i covers the byte range [i*size, min((i+1)*size, total)) of
// that payload. An empty payload is transferred as a single empty chunk.
package chunk

import (
	"math"

	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for the chunk package.
	Error = errs.Class("chunk")

	// ErrIncomplete is returned when the result of an assembly is requested
	// before every chunk has been received.
	ErrIncomplete = errs.Class("incomplete")
)

// Layout describes how an object payload is divided into chunks.
type Layout struct {
	MetadataSize uint64
	DataSize     uint64
	ChunkSize    uint64
}

// NewLayout returns the layout for an object with the given sizes.
func NewLayout(metadataSize, dataSize uint64, chunkSize int) (Layout, error) {
	if chunkSize <= 0 {
		return Layout{}, Error.New("invalid chunk size %d", chunkSize)
	}
	if metadataSize > math.MaxUint64-dataSize {
		return Layout{}, Error.New("object size overflows")
	}
	layout := Layout{
		MetadataSize: metadataSize,
		DataSize:     dataSize,
		ChunkSize:    uint64(chunkSize),
	}
	if layout.count() > math.MaxUint32 {
		return Layout{}, Error.New("object needs %d chunks, more than a chunk index can address", layout.count())
	}
	return layout, nil
}

// Total returns the size of the whole payload.
func (layout Layout) Total() uint64 { return layout.MetadataSize + layout.DataSize }

func (layout Layout) count() uint64 {
	total := layout.Total()
	if total == 0 {
		return 1
	}
	return (total + layout.ChunkSize - 1) / layout.ChunkSize
}

// Count returns the number of chunks.
func (layout Layout) Count() uint32 { return uint32(layout.count()) }

// Range returns the payload byte range covered by chunk index.
func (layout Layout) Range(index uint32) (start, end uint64) {
	start = uint64(index) * layout.ChunkSize
	end = start + layout.ChunkSize
	if total := layout.Total(); end > total {
		end = total
	}
	if start > end {
		start = end
	}
	return start, end
}

// Len returns the length of chunk index.
func (layout Layout) Len(index uint32) uint64 {
	start, end := layout.Range(index)
	return end - start
}

// Valid checks whether index belongs to the layout.
func (layout Layout) Valid(index uint32) error {
	if index >= layout.Count() {
		return Error.New("chunk index %d out of range [0, %d)", index, layout.Count())
	}
	return nil
}
