package kekbit

// endOfTime is far enough in the future for any tick unit, including nanos.
const endOfTime = ^uint64(0)

// TimeoutReader decorates a [ShmReader] with a writer-inactivity policy:
// once the producer has published nothing for the channel's declared
// timeout interval, the reader exhausts with [ErrTimeout].
//
// The deadline arms when a read finds no data and disarms on any producer
// activity, including heartbeats. Like every read failure the timeout
// latches, which makes the decorator monotone.
type TimeoutReader struct {
	inner      *ShmReader
	expiration uint64 // in the channel's tick unit; endOfTime while disarmed
	lastPos    uint32
	failure    error
}

// Compile-time interface satisfaction check.
var _ Reader = (*TimeoutReader)(nil)

// WithTimeout decorates reader with the timeout declared in its channel's
// metadata.
func WithTimeout(reader *ShmReader) *TimeoutReader {
	return &TimeoutReader{
		inner:      reader,
		expiration: endOfTime,
		lastPos:    reader.Position(),
	}
}

// TryRead implements [Reader].
//
// Possible errors: those of the inner reader, plus [ErrTimeout] (as a
// [*TimeoutError] carrying the missed deadline).
func (t *TimeoutReader) TryRead() ([]byte, error) {
	if t.failure != nil {
		return nil, t.failure
	}

	record, err := t.inner.TryRead()
	if err != nil {
		return nil, err
	}

	// Any cursor movement counts as producer activity: consumed heartbeats
	// advance the position without surfacing a record.
	if pos := t.inner.Position(); record != nil || pos != t.lastPos {
		t.lastPos = pos
		t.expiration = endOfTime

		return record, nil
	}

	now := t.inner.Metadata().TickUnit().NixTime()

	if t.expiration == endOfTime {
		t.expiration = now + t.inner.Metadata().Timeout()

		return nil, nil
	}

	if now >= t.expiration {
		t.failure = &TimeoutError{Deadline: t.expiration}

		return nil, t.failure
	}

	return nil, nil
}

// Exhausted implements [Reader].
func (t *TimeoutReader) Exhausted() error {
	if t.failure != nil {
		return t.failure
	}

	return t.inner.Exhausted()
}

// TryIter returns a non-blocking iterator over the remaining records.
func (t *TimeoutReader) TryIter() *TryIter {
	return &TryIter{reader: t}
}

// Metadata returns the metadata of the decorated channel.
func (t *TimeoutReader) Metadata() Metadata {
	return t.inner.Metadata()
}

// Position returns the read position of the decorated reader.
func (t *TimeoutReader) Position() uint32 {
	return t.inner.Position()
}
