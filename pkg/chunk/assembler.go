// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package chunk

// Assembler collects the chunks of one object in any order.
//
// The zero value is not usable, use NewAssembler.
type Assembler struct {
	layout   Layout
	buffer   []byte
	received []bool
	count    uint32
}

// NewAssembler allocates the buffer for an object with the given layout.
func NewAssembler(layout Layout) *Assembler {
	return &Assembler{
		layout:   layout,
		buffer:   make([]byte, layout.Total()),
		received: make([]bool, layout.Count()),
	}
}

// Layout returns the layout being assembled.
func (assembler *Assembler) Layout() Layout { return assembler.layout }

// Add stores the payload of chunk index. It returns false when the chunk
// was already received, in which case the payload is ignored.
func (assembler *Assembler) Add(index uint32, payload []byte) (added bool, err error) {
	if err := assembler.layout.Valid(index); err != nil {
		return false, err
	}
	if expected := assembler.layout.Len(index); uint64(len(payload)) != expected {
		return false, Error.New("chunk %d has %d bytes, expected %d", index, len(payload), expected)
	}
	if assembler.received[index] {
		return false, nil
	}

	start, _ := assembler.layout.Range(index)
	copy(assembler.buffer[start:], payload)
	assembler.received[index] = true
	assembler.count++
	return true, nil
}

// Received returns the number of distinct chunks received.
func (assembler *Assembler) Received() uint32 { return assembler.count }

// Complete returns whether every chunk has been received.
func (assembler *Assembler) Complete() bool { return assembler.count == assembler.layout.Count() }

// Missing returns the indexes that have not been received yet.
func (assembler *Assembler) Missing() []uint32 {
	var missing []uint32
	for i, ok := range assembler.received {
		if !ok {
			missing = append(missing, uint32(i))
		}
	}
	return missing
}

// Result returns the assembled metadata and data.
func (assembler *Assembler) Result() (metadata, data []byte, err error) {
	if !assembler.Complete() {
		return nil, nil, ErrIncomplete.New("received %d of %d chunks", assembler.count, assembler.layout.Count())
	}
	split := assembler.layout.MetadataSize
	return assembler.buffer[:split:split], assembler.buffer[split:], nil
}
