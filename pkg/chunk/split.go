// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package chunk

// Source reads chunks from an object's metadata and data without
// concatenating them.
type Source struct {
	Layout   Layout
	metadata []byte
	data     []byte
}

// NewSource returns a chunk source over metadata followed by data.
func NewSource(metadata, data []byte, chunkSize int) (*Source, error) {
	layout, err := NewLayout(uint64(len(metadata)), uint64(len(data)), chunkSize)
	if err != nil {
		return nil, err
	}
	return &Source{Layout: layout, metadata: metadata, data: data}, nil
}

// Chunk returns the payload of chunk index. The returned slice aliases the
// source unless the chunk spans the metadata and data boundary.
func (source *Source) Chunk(index uint32) ([]byte, error) {
	if err := source.Layout.Valid(index); err != nil {
		return nil, err
	}

	start, end := source.Layout.Range(index)
	split := source.Layout.MetadataSize
	switch {
	case end <= split:
		return source.metadata[start:end], nil
	case start >= split:
		return source.data[start-split : end-split], nil
	}

	payload := make([]byte, 0, end-start)
	payload = append(payload, source.metadata[start:]...)
	payload = append(payload, source.data[:end-split]...)
	return payload, nil
}

// Split divides metadata followed by data into chunks of chunkSize.
func Split(metadata, data []byte, chunkSize int) ([][]byte, error) {
	source, err := NewSource(metadata, data, chunkSize)
	if err != nil {
		return nil, err
	}

	chunks := make([][]byte, source.Layout.Count())
	for i := range chunks {
		chunks[i], err = source.Chunk(uint32(i))
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}
