package kekbit

import (
	"encoding/binary"
	"io"
)

// Encodable is an entity which can be written into a channel. An encoder may
// emit the raw binary representation of the data or any well-known format;
// readers receive the encoded bytes verbatim.
type Encodable interface {
	// Encode writes the entity into w and returns the number of bytes
	// written. Returning an error aborts the enclosing write operation.
	Encode(w io.Writer) (int, error)
}

// Bytes adapts a byte slice to [Encodable] without copying.
type Bytes []byte

// Encode writes the raw bytes into w.
func (b Bytes) Encode(w io.Writer) (int, error) {
	return w.Write(b)
}

// Handler decorates write operations. Handlers can add metadata to a record
// (timestamp, sequence number, checksum) before or after the record body is
// pushed into the channel, or transform the record entirely.
//
// Handlers compose: see [Link]. Most handlers implement Incoming and/or
// Outgoing and inherit no-op behavior for the rest by embedding
// [NopHandler]. Handlers that sit at the bottom of a chain, like
// [EncoderHandler], implement Handle.
type Handler interface {
	// Incoming runs before a record body is pushed into the channel.
	// If it fails the write is aborted and no further hooks run.
	Incoming(data Encodable, w io.Writer) (int, error)

	// Outgoing runs after a record body is pushed into the channel.
	// If it fails the write is aborted.
	Outgoing(data Encodable, w io.Writer) (int, error)

	// Handle performs the composite write action for this handler.
	Handle(data Encodable, w io.Writer) (int, error)
}

// NopHandler is an embeddable base whose hooks all succeed without writing
// anything.
type NopHandler struct{}

// Incoming writes nothing.
func (NopHandler) Incoming(Encodable, io.Writer) (int, error) { return 0, nil }

// Outgoing writes nothing.
func (NopHandler) Outgoing(Encodable, io.Writer) (int, error) { return 0, nil }

// Handle writes nothing.
func (NopHandler) Handle(Encodable, io.Writer) (int, error) { return 0, nil }

// EncoderHandler is the leaf of every handler chain: it writes the
// user-supplied payload and nothing else. It is also the handler to use
// directly for channels that carry no per-record metadata.
type EncoderHandler struct {
	NopHandler
}

// Handle encodes data into the channel.
func (EncoderHandler) Handle(data Encodable, w io.Writer) (int, error) {
	return data.Encode(w)
}

// ChainedHandler composes a decorator around an inner handler. Its Handle
// runs decorator.Incoming, then the inner handler's Handle, then
// decorator.Outgoing, which yields symmetric pre/post framing around a
// record.
type ChainedHandler struct {
	NopHandler

	handler   Handler
	decorator Handler
}

// Link chains a decorator around handler. The returned handler owns both.
func Link(handler, decorator Handler) *ChainedHandler {
	return &ChainedHandler{handler: handler, decorator: decorator}
}

// Handle runs the composed pipeline and returns the total bytes written.
func (c *ChainedHandler) Handle(data Encodable, w io.Writer) (int, error) {
	pre, err := c.decorator.Incoming(data, w)
	if err != nil {
		return pre, err
	}

	body, err := c.handler.Handle(data, w)
	if err != nil {
		return pre + body, err
	}

	post, err := c.decorator.Outgoing(data, w)

	return pre + body + post, err
}

// TimestampHandler prefixes every record with the current wall-clock time
// in the given tick unit, as a little-endian u64.
type TimestampHandler struct {
	NopHandler

	tick TickUnit
}

// NewTimestampHandler returns a timestamp decorator sampling in tick units.
func NewTimestampHandler(tick TickUnit) *TimestampHandler {
	return &TimestampHandler{tick: tick}
}

// Incoming writes the timestamp prefix.
func (h *TimestampHandler) Incoming(_ Encodable, w io.Writer) (int, error) {
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], h.tick.NixTime())

	return w.Write(buf[:])
}

// SequenceHandler prefixes every record with a strictly increasing sequence
// number, as a little-endian u64 starting at 1.
type SequenceHandler struct {
	NopHandler

	seq uint64
}

// NewSequenceHandler returns a sequence-number decorator.
func NewSequenceHandler() *SequenceHandler {
	return &SequenceHandler{}
}

// Incoming writes the next sequence number.
func (h *SequenceHandler) Incoming(_ Encodable, w io.Writer) (int, error) {
	var buf [8]byte

	h.seq++
	binary.LittleEndian.PutUint64(buf[:], h.seq)

	return w.Write(buf[:])
}
