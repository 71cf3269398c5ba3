package kekbit

import (
	"fmt"
	"syscall"

	"github.com/calvinalkan/kekbit/pkg/fs"
)

// Reader is the consumer side of a channel.
//
// Implementations in this package are [ShmReader] and the [TimeoutReader]
// decorator.
type Reader interface {
	// TryRead attempts to read the next record without blocking.
	//
	// Returns (payload, nil) when a record is available, (nil, nil) when no
	// record is ready yet, and (nil, err) when the reader is exhausted.
	// Heartbeats are consumed silently and never surface.
	//
	// The returned slice borrows the shared mapping and stays valid only
	// until the reader is closed; it must not be modified.
	//
	// Read errors latch: once TryRead fails, every subsequent call returns
	// the same error and no record will ever be delivered again.
	TryRead() ([]byte, error)

	// Exhausted returns the latched read error, or nil while the channel
	// may still deliver records. It answers "will iteration ever yield
	// again": a nil result means polling is still worthwhile.
	Exhausted() error
}

// ShmReader consumes records from a memory-mapped channel. Create one with
// [OpenChannel] or [OpenChannelWithRetry].
//
// A ShmReader is not safe for concurrent use. Any number of independent
// readers may observe the same channel, each with its own cursor; readers
// never mutate the shared region.
type ShmReader struct {
	meta       Metadata
	data       []byte // full mapping: metadata + data region + footer
	file       fs.File
	readOffset uint32
	failure    error // latched exhaustion cause
	closed     bool
}

// Compile-time interface satisfaction check.
var _ Reader = (*ShmReader)(nil)

// newShmReader validates the mapped channel and positions the cursor at the
// start of the data region.
func newShmReader(data []byte, file fs.File) (*ShmReader, error) {
	meta, err := readMetadata(data)
	if err != nil {
		return nil, err
	}

	return &ShmReader{
		meta: meta,
		data: data,
		file: file,
	}, nil
}

// dataRegion returns the mapped bytes starting at the data region,
// extending into the footer so the trailing sentinel slot is addressable.
func (r *ShmReader) dataRegion() []byte {
	return r.data[metadataLen:]
}

// TryRead implements [Reader].
//
// Possible errors: [ErrClosed], [ErrFailed], [ErrChannelFull]. All latch.
func (r *ShmReader) TryRead() ([]byte, error) {
	if r.failure != nil {
		return nil, r.failure
	}

	region := r.dataRegion()
	capacity := r.meta.Capacity()
	maxMsgLen := uint64(r.meta.MaxMsgLen())

	// Heartbeats are consumed in place, so a single call may walk several
	// slots before producing a result.
	for {
		crt := r.readOffset

		if capacity-crt <= recHeaderLen {
			// Tail of the data region: no further record can fit, so the
			// slot holds a sentinel. The footer reservation keeps it
			// addressable. Distinguish a closed channel from a full one.
			if atomicLoadUint64(region[crt:]) == closeMark {
				return nil, r.latch(fmt.Errorf("producer closed the channel: %w", ErrClosed))
			}

			return nil, r.latch(fmt.Errorf("reached the end of the data region at position %d: %w", crt, ErrChannelFull))
		}

		marker := atomicLoadUint64(region[crt:])

		if marker <= maxMsgLen {
			recSize := align8(recHeaderLen + uint32(marker))
			if crt+recSize > capacity {
				return nil, r.latch(fmt.Errorf("record of %d bytes at position %d overruns the data region: %w", marker, crt, ErrFailed))
			}

			r.readOffset = crt + recSize

			if marker == 0 {
				// Heartbeat: producer liveness, nothing to surface.
				continue
			}

			return region[crt+recHeaderLen : crt+recHeaderLen+uint32(marker)], nil
		}

		switch marker {
		case watermark:
			return nil, nil
		case closeMark:
			return nil, r.latch(fmt.Errorf("producer closed the channel: %w", ErrClosed))
		default:
			return nil, r.latch(fmt.Errorf("unknown marker %#016x at position %d: %w", marker, crt, ErrFailed))
		}
	}
}

// Exhausted implements [Reader].
func (r *ShmReader) Exhausted() error {
	return r.failure
}

// latch records the first failure; later failures are ignored and every
// subsequent read reports the latched one.
func (r *ShmReader) latch(failure error) error {
	if r.failure == nil {
		r.failure = failure
	}

	return r.failure
}

// Position returns the current read position: the total bytes consumed so
// far, including record headers and padding.
func (r *ShmReader) Position() uint32 {
	return r.readOffset
}

// Metadata returns the metadata of the channel this reader observes.
func (r *ShmReader) Metadata() Metadata {
	return r.meta
}

// TryIter returns a non-blocking iterator over the remaining records.
func (r *ShmReader) TryIter() *TryIter {
	return &TryIter{reader: r}
}

// Close releases the mapping. The reader keeps its latched state but can no
// longer deliver records; slices returned by earlier reads become invalid.
// Close is idempotent.
func (r *ShmReader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true
	r.latch(fmt.Errorf("reader closed: %w", ErrFailed))

	unmapErr := syscall.Munmap(r.data)
	r.data = nil

	closeErr := r.file.Close()

	if unmapErr != nil {
		return fmt.Errorf("munmap: %w", unmapErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close channel file: %w", closeErr)
	}

	return nil
}

// TryIter is a non-blocking iterator over the records of a [Reader]. Each
// Next call yields a record if one is ready; it never blocks waiting for
// the producer.
type TryIter struct {
	reader Reader
}

// NewTryIter returns a non-blocking iterator over r.
func NewTryIter(r Reader) *TryIter {
	return &TryIter{reader: r}
}

// Next returns the next record if one is ready.
//
// ok is false when nothing is currently available or the reader is
// exhausted; use [TryIter.Exhausted] to tell the two apart. A nil result
// with a nil Exhausted means the producer may still publish: keep polling.
func (it *TryIter) Next() ([]byte, bool) {
	if it.reader.Exhausted() != nil {
		return nil, false
	}

	record, err := it.reader.TryRead()
	if err != nil || record == nil {
		return nil, false
	}

	return record, true
}

// Exhausted returns the latched read error of the underlying reader, or nil
// while records may still arrive.
func (it *TryIter) Exhausted() error {
	return it.reader.Exhausted()
}
