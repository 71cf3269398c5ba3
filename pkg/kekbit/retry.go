package kekbit

import (
	"runtime"
	"sync"
	"time"
)

// Backoff configuration for the retry adapters.
const (
	// retryMaxAttempts is the number of backoff rounds before an adapter
	// gives up.
	retryMaxAttempts = 10

	// retryInitialBackoff is the initial sleep duration between attempts.
	retryInitialBackoff = 50 * time.Microsecond

	// retryMaxBackoff caps the exponential backoff growth.
	retryMaxBackoff = 1 * time.Millisecond
)

// retryBackoff waits for an exponentially increasing duration based on the
// attempt number (0-indexed). Returns the backoff duration used.
func retryBackoff(attempt int) time.Duration {
	if attempt == 0 {
		return 0 // First attempt is immediate
	}

	backoff := min(
		// Exponential: 50µs, 100µs, 200µs, ...
		retryInitialBackoff<<(attempt-1), retryMaxBackoff)

	// Stay on-CPU, yielding the processor between checks, rather than
	// parking on a timer.
	for deadline := time.Now().Add(backoff); time.Now().Before(deadline); {
		runtime.Gosched()
	}

	return backoff
}

// RetryIter wraps a non-blocking iterator and retries with backoff when no
// record is ready, smoothing over short producer pauses. Once the backoff
// budget is spent it reports "nothing" and leaves further pacing to the
// caller.
type RetryIter struct {
	inner *TryIter
}

// NewRetryIter returns a retrying iterator over it.
func NewRetryIter(it *TryIter) *RetryIter {
	return &RetryIter{inner: it}
}

// Next returns the next record, retrying with backoff while none is ready.
//
// ok is false once the reader is exhausted or the backoff budget is spent
// without a record arriving; use [RetryIter.Exhausted] to tell the two
// apart.
func (it *RetryIter) Next() ([]byte, bool) {
	for attempt := range retryMaxAttempts {
		retryBackoff(attempt)

		record, ok := it.inner.Next()
		if ok {
			return record, true
		}

		if it.inner.Exhausted() != nil {
			return nil, false
		}
	}

	return nil, false
}

// Exhausted returns the latched read error of the underlying reader, or nil
// while records may still arrive.
func (it *RetryIter) Exhausted() error {
	return it.inner.Exhausted()
}

// RetryWriter guards a [Writer] with a mutex so multiple threads in one
// process can share a channel cooperatively. The underlying writer remains
// the channel's sole publisher; RetryWriter only serializes access to it.
//
// Write attempts to acquire the writer with bounded backoff and fails with
// [ErrWait] on sustained contention, so no caller blocks indefinitely on
// the hot path.
type RetryWriter struct {
	mu    sync.Mutex
	inner Writer
}

// Compile-time interface satisfaction check.
var _ Writer = (*RetryWriter)(nil)

// NewRetryWriter returns a RetryWriter guarding w.
func NewRetryWriter(w Writer) *RetryWriter {
	return &RetryWriter{inner: w}
}

// Write appends p as one record once the underlying writer is acquired.
//
// Possible errors: [ErrWait] on contention, plus those of the underlying
// writer.
func (w *RetryWriter) Write(p []byte) (uint32, error) {
	return w.WriteRecord(Bytes(p))
}

// WriteRecord appends one record produced by data once the underlying
// writer is acquired.
func (w *RetryWriter) WriteRecord(data Encodable) (uint32, error) {
	for attempt := range retryMaxAttempts {
		retryBackoff(attempt)

		if w.mu.TryLock() {
			n, err := w.inner.WriteRecord(data)
			w.mu.Unlock()

			return n, err
		}
	}

	return 0, ErrWait
}

// Flush flushes the underlying writer. Unlike Write it blocks until the
// writer is acquired.
func (w *RetryWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.inner.Flush()
}
