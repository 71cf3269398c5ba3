package kekbit

import (
	"encoding/binary"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// Record framing constants. Every record slot starts with an 8-byte marker
// holding either the record length or one of the two sentinels below. Both
// sentinels exceed any legal max message length, so the read path decodes a
// marker with a single compare.
const (
	// recHeaderLen is the size of the record marker in bytes.
	recHeaderLen = 8

	// recAlignment is the alignment of every record slot. Markers must stay
	// 8-byte aligned for the cross-process atomics to be valid.
	recAlignment = 8

	// footerLen is the reserved region past the data region. It guarantees
	// the writer always has room to publish the terminal sentinel, with the
	// rest reserved for future use.
	footerLen = 32

	// watermark marks the frontier of published data: the first slot no
	// record has been published to yet.
	watermark uint64 = 0xFFFF_FFFF_1111_1111

	// closeMark is the terminal sentinel. Once present no further data will
	// ever appear in the channel.
	closeMark uint64 = 0xFFFF_FFFF_FFFF_FFFF
)

// align8 rounds v up to the next multiple of the record alignment.
func align8(v uint32) uint32 {
	return (v + (recAlignment - 1)) &^ (recAlignment - 1)
}

// isAligned8 reports whether v is a multiple of the record alignment.
func isAligned8(v uint32) bool {
	return v&(recAlignment-1) == 0
}

// atomicLoadUint64 performs an atomic load of the 8 bytes at b[0:8].
// b must be 8-byte aligned; mapped channel regions guarantee this because
// the mapping is page aligned and all slot offsets are multiples of 8.
func atomicLoadUint64(b []byte) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&b[0])))
}

// atomicStoreUint64 performs an atomic store of v into b[0:8].
// Same alignment contract as [atomicLoadUint64].
func atomicStoreUint64(b []byte, v uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&b[0])), v)
}

// isLittleEndian is true if the CPU uses little-endian byte order.
// Computed once at package init time.
var isLittleEndian = func() bool {
	var buf [2]byte
	buf[0] = 0x01

	return binary.NativeEndian.Uint16(buf[:]) == 0x01
}()

// is64Bit is true if the architecture has 64-bit pointers. Required for the
// atomic 64-bit marker operations across processes.
var is64Bit = bits.UintSize == 64
