// Package broadcast implements the Market-Data Broadcast Hub (component H):
// a fixed-size block publisher/subscriber abstraction with sequence
// numbering, a bounded drop-oldest queue, and multi-subscriber fan-out. An
// in-process transport and a websocket transport satisfy the same
// contract; callers pick one at construction time.
package broadcast

import (
	"encoding/binary"

	"qaultra-core/internal/qerrors"
	"qaultra-core/pkg/qtypes"
)

// BlockSize is the fixed wire size of every block, 64-byte aligned.
const BlockSize = 8192

// HeaderSize is the normative 32-byte header at the front of every block.
const HeaderSize = 32

// PayloadSize is the usable payload capacity after the header.
const PayloadSize = BlockSize - HeaderSize

// Block is a fixed-size 8192-byte market-data record: a 32-byte header
// followed by an opaque 8160-byte payload. The payload layout is agreed
// out of band between producer and subscriber via DataType.
type Block struct {
	SequenceNumber uint64
	TimestampNs    uint64
	RecordCount    uint64
	DataType       qtypes.MarketDataType
	Flags          uint8
	payload        [PayloadSize]byte
	payloadLen     int
}

// SetPayload copies src into the block's payload area. Returns an
// OverflowError without modifying the block if src exceeds PayloadSize.
func (b *Block) SetPayload(src []byte) error {
	if len(src) > PayloadSize {
		return &qerrors.OverflowError{Size: len(src), Capacity: PayloadSize}
	}
	n := copy(b.payload[:], src)
	b.payloadLen = n
	return nil
}

// Payload returns the portion of the payload area written by SetPayload.
// The wire layout carries no payload length, so after UnmarshalBinary it
// is the whole PayloadSize area, zero padding included. The returned slice aliases the block's internal storage and is only
// valid until the block is reused by the transport; callers that need to
// retain it must copy.
func (b *Block) Payload() []byte {
	return b.payload[:b.payloadLen]
}

// Clear resets a block to its zero state so it can be reused by a pool.
func (b *Block) Clear() {
	b.SequenceNumber = 0
	b.TimestampNs = 0
	b.RecordCount = 0
	b.DataType = qtypes.Unknown
	b.Flags = 0
	b.payloadLen = 0
	for i := range b.payload {
		b.payload[i] = 0
	}
}

// MarshalBinary renders the block into the normative 8192-byte wire
// layout: sequence_number, timestamp_ns, record_count (u64 each,
// little-endian), data_type, flags, 6 reserved bytes, then the payload
// area padded with zeros to PayloadSize.
func (b *Block) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint64(buf[0:8], b.SequenceNumber)
	binary.LittleEndian.PutUint64(buf[8:16], b.TimestampNs)
	binary.LittleEndian.PutUint64(buf[16:24], b.RecordCount)
	buf[24] = byte(b.DataType)
	buf[25] = b.Flags
	copy(buf[HeaderSize:], b.payload[:b.payloadLen])
	return buf, nil
}

// UnmarshalBinary parses the normative wire layout produced by
// MarshalBinary. Returns an error if data is shorter than BlockSize.
func (b *Block) UnmarshalBinary(data []byte) error {
	if len(data) < BlockSize {
		return &qerrors.TransportError{Op: "unmarshal", Err: errShortBlock}
	}
	b.SequenceNumber = binary.LittleEndian.Uint64(data[0:8])
	b.TimestampNs = binary.LittleEndian.Uint64(data[8:16])
	b.RecordCount = binary.LittleEndian.Uint64(data[16:24])
	b.DataType = qtypes.MarketDataType(data[24])
	b.Flags = data[25]
	n := copy(b.payload[:], data[HeaderSize:BlockSize])
	b.payloadLen = n
	return nil
}

var errShortBlock = blockSizeError{}

type blockSizeError struct{}

func (blockSizeError) Error() string { return "block shorter than 8192 bytes" }
