package kekbit_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/calvinalkan/kekbit/pkg/kekbit"
)

// fillChannel writes max-size records until the writer reports ChannelFull.
func fillChannel(t *testing.T, writer *kekbit.ShmWriter) {
	t.Helper()

	payload := make([]byte, writer.Metadata().MaxMsgLen()-8)

	for {
		_, err := writer.Write(payload)
		if err == nil {
			continue
		}

		if errors.Is(err, kekbit.ErrNoSpaceForRecord) {
			payload = make([]byte, writer.Available()-8)

			continue
		}

		if errors.Is(err, kekbit.ErrChannelFull) {
			return
		}

		t.Fatalf("fill: %v", err)
	}
}

func Test_Reader_Returns_Nothing_While_No_Record_Is_Published(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	meta := kekbit.NewMetadata(1, 20, 20_000, 100, forever, kekbit.Nanos)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	defer writer.Close()

	reader, err := kekbit.OpenChannel(root, 20)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer reader.Close()

	record, readErr := reader.TryRead()
	if readErr != nil || record != nil {
		t.Fatalf("TryRead on empty channel: record=%v err=%v", record, readErr)
	}

	if reader.Position() != 0 {
		t.Errorf("position moved on empty channel: %d", reader.Position())
	}

	if reader.Exhausted() != nil {
		t.Errorf("empty channel exhausted: %v", reader.Exhausted())
	}
}

func Test_Reader_Borrows_Payload_Bytes_Verbatim(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	meta := kekbit.NewMetadata(1, 21, 20_000, 100, forever, kekbit.Nanos)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	defer writer.Close()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}

	if _, err := writer.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader, err := kekbit.OpenChannel(root, 21)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer reader.Close()

	record, readErr := reader.TryRead()
	if readErr != nil {
		t.Fatalf("TryRead: %v", readErr)
	}

	if !bytes.Equal(record, payload) {
		t.Fatalf("record = %x, want %x", record, payload)
	}
}

func Test_Reader_Skips_Heartbeats_Silently(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	meta := kekbit.NewMetadata(1, 22, 20_000, 100, forever, kekbit.Nanos)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	defer writer.Close()

	for range 3 {
		if _, err := writer.Heartbeat(); err != nil {
			t.Fatalf("Heartbeat: %v", err)
		}
	}

	if _, err := writer.Write([]byte("actual data")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader, err := kekbit.OpenChannel(root, 22)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer reader.Close()

	record, readErr := reader.TryRead()
	if readErr != nil {
		t.Fatalf("TryRead: %v", readErr)
	}

	if string(record) != "actual data" {
		t.Fatalf("record = %q", record)
	}

	// Heartbeats were consumed: 3 headers plus the record.
	if want := uint32(3*8) + alignedRecordSize(len("actual data")); reader.Position() != want {
		t.Errorf("position = %d, want %d", reader.Position(), want)
	}
}

func Test_Reader_Latches_Closed_When_Producer_Closes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	meta := kekbit.NewMetadata(1, 23, 20_000, 100, forever, kekbit.Nanos)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	if _, err := writer.Write([]byte("last words")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := kekbit.OpenChannel(root, 23)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer reader.Close()

	if _, err := reader.TryRead(); err != nil {
		t.Fatalf("reading published record: %v", err)
	}

	_, readErr := reader.TryRead()
	if !errors.Is(readErr, kekbit.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", readErr)
	}

	// Exhaustion is idempotent: same latched error forever.
	for range 3 {
		_, again := reader.TryRead()
		if !errors.Is(again, kekbit.ErrClosed) {
			t.Fatalf("latched err = %v, want ErrClosed", again)
		}
	}

	if !errors.Is(reader.Exhausted(), kekbit.ErrClosed) {
		t.Fatalf("Exhausted() = %v, want ErrClosed", reader.Exhausted())
	}
}

func Test_Reader_Latches_Failed_When_Marker_Is_Corrupt(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	meta := kekbit.NewMetadata(1, 24, 20_000, 100, forever, kekbit.Nanos)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	n, writeErr := writer.Write([]byte("good record"))
	if writeErr != nil {
		t.Fatalf("Write: %v", writeErr)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Smash the sentinel after the record with a marker that is neither a
	// legal length nor a sentinel.
	channelPath := kekbit.StoragePath(root, 24)

	file, openErr := os.OpenFile(channelPath, os.O_RDWR, 0)
	if openErr != nil {
		t.Fatalf("open store: %v", openErr)
	}

	bogus := make([]byte, 8)
	binary.LittleEndian.PutUint64(bogus, 0xFFFF_FFFF_2222_2222)

	if _, err := file.WriteAt(bogus, int64(128+n)); err != nil {
		t.Fatalf("corrupt store: %v", err)
	}

	_ = file.Close()

	reader, err := kekbit.OpenChannel(root, 24)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer reader.Close()

	if _, err := reader.TryRead(); err != nil {
		t.Fatalf("reading record before corruption: %v", err)
	}

	_, readErr := reader.TryRead()
	if !errors.Is(readErr, kekbit.ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", readErr)
	}

	_, again := reader.TryRead()
	if !errors.Is(again, kekbit.ErrFailed) {
		t.Fatalf("latched err = %v, want ErrFailed", again)
	}
}

func Test_Reader_Latches_ChannelFull_At_Data_Region_Tail(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	meta := kekbit.NewMetadata(1, 25, 16_384, 1000, forever, kekbit.Nanos)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	defer writer.Close()

	fillChannel(t, writer)

	reader, err := kekbit.OpenChannel(root, 25)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer reader.Close()

	var records int

	for {
		record, readErr := reader.TryRead()
		if readErr != nil {
			if !errors.Is(readErr, kekbit.ErrChannelFull) {
				t.Fatalf("err = %v, want ErrChannelFull", readErr)
			}

			break
		}

		if record == nil {
			t.Fatal("Nothing before reaching the tail of a full channel")
		}

		records++
	}

	if records == 0 {
		t.Fatal("no records read from full channel")
	}

	if !errors.Is(reader.Exhausted(), kekbit.ErrChannelFull) {
		t.Fatalf("Exhausted() = %v, want ErrChannelFull", reader.Exhausted())
	}
}

func Test_Reader_Observes_Close_At_Tail_After_Writer_Drop(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	meta := kekbit.NewMetadata(1, 26, 16_384, 1000, forever, kekbit.Nanos)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	fillChannel(t, writer)

	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := kekbit.OpenChannel(root, 26)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer reader.Close()

	for {
		_, readErr := reader.TryRead()
		if readErr != nil {
			if !errors.Is(readErr, kekbit.ErrClosed) {
				t.Fatalf("err = %v, want ErrClosed", readErr)
			}

			return
		}
	}
}
