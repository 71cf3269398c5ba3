package kekbit

import (
	"encoding/binary"
	"fmt"
)

// Channel metadata format constants.
const (
	// metadataLen is the fixed size of the metadata block at the start of
	// every channel file.
	metadataLen = 128

	// metadataSignature is the marker at byte 0 of every channel file
	// ("*KEKBIT*" read as a little-endian u64).
	metadataSignature uint64 = 0x2A54_4942_4B45_4B2A

	// minCapacity is the smallest data region a channel may carry.
	minCapacity = 16 * 1024
)

// Metadata field offsets (bytes from file start, little-endian).
const (
	offSignature    = 0  // uint64
	offVersion      = 8  // uint64, packed major<<48 | minor<<32 | patch
	offWriterID     = 16 // uint64
	offChannelID    = 24 // uint64
	offCapacity     = 32 // uint32
	offMaxMsgLen    = 36 // uint32
	offTimeout      = 40 // uint64, in tick units
	offCreationTime = 48 // uint64, in tick units
	offTickUnit     = 56 // uint8
	// Bytes 57..127 are reserved and zero.
)

// computeMaxMsgLen caps the maximum message length at a fraction (1/128th)
// of the channel capacity, minus the record header.
func computeMaxMsgLen(capacity uint32) uint32 {
	return (capacity >> 7) - recHeaderLen
}

// Metadata describes a channel: identity, geometry and time base. It is
// written once at creation, validated on every open, and immutable
// afterwards.
type Metadata struct {
	writerID     uint64
	channelID    uint64
	capacity     uint32
	maxMsgLen    uint32
	timeout      uint64
	creationTime uint64
	tickUnit     TickUnit
	version      version
}

// NewMetadata defines the metadata for a new channel.
//
// capacityHint is rounded up to the record alignment and raised to the
// 16 KiB minimum. maxMsgLenHint is clamped so a single record can never
// claim more than 1/128th of the capacity; the stored value accounts for
// the record header and is 8-byte aligned, so it may differ from the hint
// in both directions.
//
// timeout is the write-inactivity interval after which readers may consider
// the channel abandoned, expressed in tickUnit, as is the creation time
// sampled by this call.
func NewMetadata(writerID, channelID uint64, capacityHint, maxMsgLenHint uint32, timeout uint64, tickUnit TickUnit) Metadata {
	capacity := align8(capacityHint)
	if capacity < minCapacity {
		capacity = minCapacity
	}

	// The limit is aligned down so clamped hints never round past it.
	maxMsgLen := computeMaxMsgLen(capacity) &^ (recAlignment - 1)
	if maxMsgLenHint < maxMsgLen-recHeaderLen {
		maxMsgLen = align8(maxMsgLenHint + recHeaderLen)
	}

	return Metadata{
		writerID:     writerID,
		channelID:    channelID,
		capacity:     capacity,
		maxMsgLen:    maxMsgLen,
		timeout:      timeout,
		creationTime: tickUnit.NixTime(),
		tickUnit:     tickUnit,
		version:      latestVersion,
	}
}

// readMetadata reads and validates the metadata block at the start of buf.
// Any violation of the format invariants is a hard failure.
func readMetadata(buf []byte) (Metadata, error) {
	if len(buf) < metadataLen {
		return Metadata{}, fmt.Errorf("metadata block is %d bytes, need %d: %w", len(buf), metadataLen, ErrAccessError)
	}

	signature := binary.LittleEndian.Uint64(buf[offSignature:])
	if signature != metadataSignature {
		return Metadata{}, fmt.Errorf("expected signature %#016x, got %#016x: %w", metadataSignature, signature, ErrInvalidSignature)
	}

	storedVersion := version(binary.LittleEndian.Uint64(buf[offVersion:]))
	if !latestVersion.isCompatible(storedVersion) {
		return Metadata{}, fmt.Errorf("storage version %s is newer than supported %s: %w", storedVersion, latestVersion, ErrIncompatibleVersion)
	}

	capacity := binary.LittleEndian.Uint32(buf[offCapacity:])
	if capacity < minCapacity {
		return Metadata{}, fmt.Errorf("capacity %d below minimum %d: %w", capacity, uint32(minCapacity), ErrInvalidCapacity)
	}

	if !isAligned8(capacity) {
		return Metadata{}, fmt.Errorf("capacity %d is not 8-byte aligned: %w", capacity, ErrInvalidCapacity)
	}

	maxMsgLen := binary.LittleEndian.Uint32(buf[offMaxMsgLen:])
	if maxMsgLen > align8(computeMaxMsgLen(capacity)) {
		return Metadata{}, fmt.Errorf("max message length %d exceeds limit %d for capacity %d: %w",
			maxMsgLen, align8(computeMaxMsgLen(capacity)), capacity, ErrInvalidMaxMessageLength)
	}

	if !isAligned8(maxMsgLen) {
		return Metadata{}, fmt.Errorf("max message length %d is not 8-byte aligned: %w", maxMsgLen, ErrInvalidMaxMessageLength)
	}

	tickUnit, err := TickUnitFromID(buf[offTickUnit])
	if err != nil {
		return Metadata{}, fmt.Errorf("%v: %w", err, ErrAccessError)
	}

	return Metadata{
		writerID:     binary.LittleEndian.Uint64(buf[offWriterID:]),
		channelID:    binary.LittleEndian.Uint64(buf[offChannelID:]),
		capacity:     capacity,
		maxMsgLen:    maxMsgLen,
		timeout:      binary.LittleEndian.Uint64(buf[offTimeout:]),
		creationTime: binary.LittleEndian.Uint64(buf[offCreationTime:]),
		tickUnit:     tickUnit,
		version:      storedVersion,
	}, nil
}

// writeTo serializes the metadata into the first 128 bytes of buf and
// returns the number of bytes written. Reserved bytes are zeroed.
func (m Metadata) writeTo(buf []byte) int {
	binary.LittleEndian.PutUint64(buf[offSignature:], metadataSignature)
	binary.LittleEndian.PutUint64(buf[offVersion:], uint64(m.version))
	binary.LittleEndian.PutUint64(buf[offWriterID:], m.writerID)
	binary.LittleEndian.PutUint64(buf[offChannelID:], m.channelID)
	binary.LittleEndian.PutUint32(buf[offCapacity:], m.capacity)
	binary.LittleEndian.PutUint32(buf[offMaxMsgLen:], m.maxMsgLen)
	binary.LittleEndian.PutUint64(buf[offTimeout:], m.timeout)
	binary.LittleEndian.PutUint64(buf[offCreationTime:], m.creationTime)
	buf[offTickUnit] = m.tickUnit.ID()

	for i := offTickUnit + 1; i < metadataLen; i++ {
		buf[i] = 0
	}

	return metadataLen
}

// WriterID returns the identifier of the producer that created the channel.
func (m Metadata) WriterID() uint64 {
	return m.writerID
}

// ChannelID returns the channel identifier.
func (m Metadata) ChannelID() uint64 {
	return m.channelID
}

// Capacity returns the size of the data region in bytes.
func (m Metadata) Capacity() uint32 {
	return m.capacity
}

// MaxMsgLen returns the maximum encoded record length in bytes.
func (m Metadata) MaxMsgLen() uint32 {
	return m.maxMsgLen
}

// Timeout returns the write-inactivity interval, in the channel's tick
// unit, after which readers may consider the channel abandoned.
func (m Metadata) Timeout() uint64 {
	return m.timeout
}

// CreationTime returns the channel creation time, in the channel's tick
// unit, relative to the Unix epoch.
func (m Metadata) CreationTime() uint64 {
	return m.creationTime
}

// TickUnit returns the time granularity shared by all timestamps of this
// channel.
func (m Metadata) TickUnit() TickUnit {
	return m.tickUnit
}

// Version returns the channel format version as a "major.minor.patch"
// string.
func (m Metadata) Version() string {
	return m.version.String()
}

// Len returns the length of the serialized metadata block.
func (m Metadata) Len() int {
	return metadataLen
}
