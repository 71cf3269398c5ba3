package kekbit

import "testing"

func Test_Align8_Rounds_Up_To_Record_Alignment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want uint32
	}{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{15, 16},
		{16, 16},
		{100, 104},
	}

	for _, c := range cases {
		if got := align8(c.in); got != c.want {
			t.Errorf("align8(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func Test_IsAligned8_Detects_Misalignment(t *testing.T) {
	t.Parallel()

	for _, v := range []uint32{0, 8, 16, 1024} {
		if !isAligned8(v) {
			t.Errorf("isAligned8(%d) = false", v)
		}
	}

	for _, v := range []uint32{1, 7, 9, 1023} {
		if isAligned8(v) {
			t.Errorf("isAligned8(%d) = true", v)
		}
	}
}

func Test_Sentinels_Exceed_Any_Legal_Max_Message_Length(t *testing.T) {
	t.Parallel()

	// The marker decoder relies on a single compare: any value above the
	// channel's max message length is a sentinel. The largest max message
	// length any metadata can carry is capacity/128 - 8, rounded up to the
	// record alignment, for a maximal capacity.
	maxPossible := uint64(align8(computeMaxMsgLen(^uint32(0) &^ 7)))

	if watermark <= maxPossible {
		t.Errorf("watermark %#x can be confused with record length %d", watermark, maxPossible)
	}

	if closeMark <= maxPossible {
		t.Errorf("close %#x can be confused with record length %d", closeMark, maxPossible)
	}
}

func Test_Atomic_Access_Round_Trips(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 16)

	atomicStoreUint64(buf, watermark)

	if got := atomicLoadUint64(buf); got != watermark {
		t.Fatalf("load = %#x, want %#x", got, watermark)
	}

	atomicStoreUint64(buf[8:], 42)

	if got := atomicLoadUint64(buf[8:]); got != 42 {
		t.Fatalf("load = %d, want 42", got)
	}

	// First word untouched.
	if got := atomicLoadUint64(buf); got != watermark {
		t.Fatalf("first word clobbered: %#x", got)
	}
}
