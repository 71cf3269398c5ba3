package kekbit

import (
	"fmt"
	"syscall"

	"github.com/calvinalkan/kekbit/pkg/fs"

	"golang.org/x/sys/unix"
)

// Writer is the producer side of a channel: it appends opaque records that
// any number of readers observe in publication order.
//
// Implementations in this package are [ShmWriter], which owns the channel it
// is bound to, and [RetryWriter], which lets threads in one process share an
// underlying writer cooperatively.
type Writer interface {
	// Write appends p as one record. Returns the total bytes consumed in
	// the channel: record header, payload (including any handler
	// decoration) and alignment padding.
	Write(p []byte) (uint32, error)

	// WriteRecord appends one record produced by data. Same accounting as
	// Write.
	WriteRecord(data Encodable) (uint32, error)

	// Flush forces outstanding modifications of the backing storage to
	// disk. Not normally needed: publication to other processes happens
	// through the shared mapping, not through flushes.
	Flush() error
}

// ShmWriter appends records to a memory-mapped channel. Create one with
// [CreateChannel].
//
// A ShmWriter exclusively holds the channel it is bound to and is not safe
// for concurrent use; see [RetryWriter] for cooperative sharing between
// threads. Closing the writer closes the channel permanently.
type ShmWriter struct {
	meta        Metadata
	data        []byte // full mapping: metadata + data region + footer
	file        fs.File
	handler     Handler
	sink        recordSink
	writeOffset uint32
	closed      bool
}

// Compile-time interface satisfaction check.
var _ Writer = (*ShmWriter)(nil)

// newShmWriter validates the freshly initialized mapping and publishes the
// initial watermark, making the empty channel observable to readers.
func newShmWriter(data []byte, file fs.File, handler Handler) (*ShmWriter, error) {
	meta, err := readMetadata(data)
	if err != nil {
		return nil, err
	}

	if handler == nil {
		handler = EncoderHandler{}
	}

	w := &ShmWriter{
		meta:    meta,
		data:    data,
		file:    file,
		handler: handler,
	}

	atomicStoreUint64(w.dataRegion(), watermark)

	return w, nil
}

// dataRegion returns the mapped bytes starting at the data region. The
// slice deliberately extends into the footer so the trailing sentinel slot
// is always addressable.
func (w *ShmWriter) dataRegion() []byte {
	return w.data[metadataLen:]
}

// Write appends p as one record.
//
// Possible errors: [ErrChannelFull], [ErrNoSpaceForRecord], [ErrEncoding].
// All failures leave the channel consistent and the cursor unchanged; a
// failed write consumes no space.
func (w *ShmWriter) Write(p []byte) (uint32, error) {
	return w.WriteRecord(Bytes(p))
}

// WriteRecord encodes data directly into the channel through the handler
// pipeline and publishes it as one record.
func (w *ShmWriter) WriteRecord(data Encodable) (uint32, error) {
	avail := w.Available()
	if avail <= recHeaderLen {
		return 0, fmt.Errorf("%d bytes left: %w", avail, ErrChannelFull)
	}

	slotCap := w.meta.MaxMsgLen()
	if avail-recHeaderLen < slotCap {
		slotCap = avail - recHeaderLen
	}

	payload := w.dataRegion()[w.writeOffset+recHeaderLen : w.writeOffset+recHeaderLen+slotCap]

	_, err := w.handler.Handle(data, w.sink.reset(payload))
	if err != nil {
		if w.sink.failed {
			return 0, fmt.Errorf("%v: %w", err, ErrNoSpaceForRecord)
		}

		return 0, fmt.Errorf("%v: %w", err, ErrEncoding)
	}

	if w.sink.failed {
		return 0, fmt.Errorf("record exceeds %d available bytes: %w", slotCap, ErrNoSpaceForRecord)
	}

	recLen := uint32(w.sink.total)
	alignedRecLen := align8(recHeaderLen + recLen)

	w.publish(uint64(recLen), alignedRecLen)

	return alignedRecLen, nil
}

// Heartbeat publishes a zero-length record. Readers recognize it as
// producer liveness but never surface it as a record.
//
// Possible errors: [ErrChannelFull].
func (w *ShmWriter) Heartbeat() (uint32, error) {
	avail := w.Available()
	if avail <= recHeaderLen {
		return 0, fmt.Errorf("%d bytes left: %w", avail, ErrChannelFull)
	}

	w.publish(0, recHeaderLen)

	return recHeaderLen, nil
}

// publish makes the record at the current write offset visible. Ordering
// matters: the watermark past the record is stored first, then the record's
// own marker. A reader that acquires the record marker therefore also
// observes the payload bytes and the new frontier written before it.
func (w *ShmWriter) publish(marker uint64, alignedRecLen uint32) {
	region := w.dataRegion()

	atomicStoreUint64(region[w.writeOffset+alignedRecLen:], watermark)
	atomicStoreUint64(region[w.writeOffset:], marker)

	w.writeOffset += alignedRecLen
}

// Available returns the space still available for records, rounded down to
// the record alignment.
func (w *ShmWriter) Available() uint32 {
	if w.writeOffset >= w.meta.Capacity() {
		return 0
	}

	return (w.meta.Capacity() - w.writeOffset) &^ (recAlignment - 1)
}

// WriteOffset returns the amount of data written into the channel so far,
// including record headers and padding.
func (w *ShmWriter) WriteOffset() uint32 {
	return w.writeOffset
}

// Metadata returns the metadata of the channel this writer is bound to.
func (w *ShmWriter) Metadata() Metadata {
	return w.meta
}

// Flush forces the channel's outstanding modifications to disk. Flushing
// happens automatically through the kernel's writeback; calling this is
// only useful to persist at a higher rate, and it costs a syscall.
func (w *ShmWriter) Flush() error {
	if w.closed {
		return nil
	}

	err := unix.Msync(w.data, unix.MS_SYNC)
	if err != nil {
		return fmt.Errorf("msync: %w", err)
	}

	return nil
}

// Close marks the channel as closed by publishing the terminal sentinel at
// the current watermark slot, flushes, and releases the mapping. The footer
// reservation guarantees the sentinel always fits. Close is idempotent.
//
// After Close every write fails with [ErrChannelFull]; a writer cannot be
// reopened.
func (w *ShmWriter) Close() error {
	if w.closed {
		return nil
	}

	atomicStoreUint64(w.dataRegion()[w.writeOffset:], closeMark)
	w.writeOffset = w.meta.Capacity()

	flushErr := w.Flush()

	w.closed = true

	unmapErr := syscall.Munmap(w.data)
	w.data = nil

	closeErr := w.file.Close()

	if flushErr != nil {
		return flushErr
	}

	if unmapErr != nil {
		return fmt.Errorf("munmap: %w", unmapErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close channel file: %w", closeErr)
	}

	return nil
}
