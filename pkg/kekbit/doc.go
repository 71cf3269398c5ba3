// Package kekbit implements persistent single-producer, multi-consumer
// message channels backed by memory-mapped files.
//
// A channel is a bounded stream of variable-length binary records. Exactly
// one writer appends records; any number of readers, possibly in other
// processes, observe them concurrently. After a channel is open the only
// coordination between producer and consumers is atomic loads and stores
// against the shared mapping: no locks, no sockets, no system calls on the
// hot path.
//
// The main entry points are:
//   - [CreateChannel]: create a channel and its [ShmWriter]
//   - [OpenChannel]: attach a [ShmReader] to an existing channel
//   - [WithTimeout]: decorate a reader with a writer-inactivity timeout
//   - [NewRetryWriter] / [NewRetryIter]: backoff adapters for cooperative
//     multi-threaded use within a process
//
// A channel lives in a single file of size metadata + capacity + footer.
// The writer publishes each record by storing a watermark sentinel past the
// record and then the record length at the record's slot, both with ordered
// 8-byte atomic stores. Readers issue an atomic load of the slot marker and
// therefore never observe torn frames.
//
// Exactly one writer may ever be attached to a channel. This is enforced by
// the creation protocol (creating over an existing file fails), not by
// in-band locking; attaching a second writer by other means is undefined
// behavior.
package kekbit
