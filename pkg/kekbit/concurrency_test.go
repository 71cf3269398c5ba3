package kekbit_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/calvinalkan/kekbit/pkg/kekbit"
)

// A reader racing a live producer must observe exactly the published
// prefix, in order, with no duplicates, gaps or torn frames.
func Test_Reader_Observes_Ordered_Prefix_While_Producer_Is_Live(t *testing.T) {
	t.Parallel()

	const records = 500

	root := t.TempDir()
	meta := kekbit.NewMetadata(100, 70, 100_000, 100, forever, kekbit.Nanos)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	go func() {
		for i := range records {
			if _, writeErr := writer.Write(fmt.Appendf(nil, "record-%06d", i)); writeErr != nil {
				return
			}

			if i%50 == 0 {
				time.Sleep(time.Millisecond)
			}
		}

		_ = writer.Close()
	}()

	reader, err := kekbit.OpenChannel(root, 70)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer reader.Close()

	iter := reader.TryIter()

	next := 0
	deadline := time.Now().Add(10 * time.Second)

	for time.Now().Before(deadline) {
		record, ok := iter.Next()
		if ok {
			if want := fmt.Sprintf("record-%06d", next); string(record) != want {
				t.Fatalf("record %d = %q, want %q", next, record, want)
			}

			next++

			continue
		}

		if iter.Exhausted() != nil {
			break
		}

		time.Sleep(100 * time.Microsecond)
	}

	if next != records {
		t.Fatalf("observed %d records, want %d (exhausted: %v)", next, records, iter.Exhausted())
	}
}
