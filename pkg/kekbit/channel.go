package kekbit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/calvinalkan/kekbit/pkg/fs"

	"golang.org/x/sys/unix"
)

// StoragePath returns the path of the file backing a channel inside a kekbit
// root folder. Channels shard into directories by the high 32 bits of their
// id: channel 0xAAAA_BBBB_CCCC_DDDD lives at "aaaa_bbbb/cccc_dddd.kekbit".
// A pure function of (root, channelID); multiple roots may exist in a
// system.
func StoragePath(root string, channelID uint64) string {
	high := uint32(channelID >> 32)
	low := uint32(channelID)

	channelDir := fmt.Sprintf("%04x_%04x", high>>16, high&0xFFFF)
	channelFile := fmt.Sprintf("%04x_%04x.kekbit", low>>16, low&0xFFFF)

	return filepath.Join(root, channelDir, channelFile)
}

// lockFilePath returns the sibling lock file that hides a channel while it
// is initialized.
func lockFilePath(channelPath string) string {
	return strings.TrimSuffix(channelPath, filepath.Ext(channelPath)) + ".lock"
}

// checkPlatform rejects platforms where the cross-process marker protocol
// cannot work: the on-disk format is little-endian and markers are accessed
// with 64-bit atomics through the mapping.
func checkPlatform() error {
	if !is64Bit {
		return fmt.Errorf("kekbit requires a 64-bit architecture: %w", ErrMemoryMappingFailed)
	}

	if !isLittleEndian {
		return fmt.Errorf("kekbit requires a little-endian CPU: %w", ErrMemoryMappingFailed)
	}

	return nil
}

// CreateChannel creates a file-backed memory-mapped channel under root and
// returns the writer bound to it. The channel file is derived from the
// metadata's channel id via [StoragePath]; creation fails with
// [ErrStorageAlreadyExists] if that file is already present.
//
// While the channel is initialized a sibling ".lock" file exists; readers
// treat its presence as [ErrStorageNotReady]. The lock file is removed once
// the writer has published the initial watermark.
func CreateChannel(root string, meta Metadata, handler Handler) (*ShmWriter, error) {
	return CreateChannelFS(fs.NewReal(), root, meta, handler)
}

// CreateChannelFS is [CreateChannel] over an explicit filesystem.
func CreateChannelFS(fsys fs.FS, root string, meta Metadata, handler Handler) (*ShmWriter, error) {
	if err := checkPlatform(); err != nil {
		return nil, err
	}

	channelPath := StoragePath(root, meta.ChannelID())

	exists, err := fsys.Exists(channelPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", channelPath, err, ErrCouldNotAccessStorage)
	}

	if exists {
		return nil, fmt.Errorf("%s: %w", channelPath, ErrStorageAlreadyExists)
	}

	mkdirErr := fsys.MkdirAll(filepath.Dir(channelPath), 0o750)
	if mkdirErr != nil {
		return nil, fmt.Errorf("create channel directory: %w: %w", mkdirErr, ErrCouldNotAccessStorage)
	}

	lockPath := lockFilePath(channelPath)

	lockFile, lockErr := fsys.Create(lockPath)
	if lockErr != nil {
		return nil, fmt.Errorf("create lock file %s: %w: %w", lockPath, lockErr, ErrCouldNotAccessStorage)
	}

	_ = lockFile.Close()

	writer, createErr := createStore(fsys, channelPath, meta, handler)
	if createErr != nil {
		// A failed creation must not leave partial state visible to other
		// processes: drop the store, then the lock.
		_ = fsys.Remove(channelPath)
		_ = fsys.Remove(lockPath)

		return nil, createErr
	}

	removeErr := fsys.Remove(lockPath)
	if removeErr != nil {
		_ = writer.Close()
		_ = fsys.Remove(channelPath)

		return nil, fmt.Errorf("remove lock file %s: %w: %w", lockPath, removeErr, ErrCouldNotAccessStorage)
	}

	return writer, nil
}

// createStore sizes, maps and initializes the channel file, and constructs
// the writer that publishes the initial watermark.
func createStore(fsys fs.FS, channelPath string, meta Metadata, handler Handler) (*ShmWriter, error) {
	file, openErr := fsys.OpenFile(channelPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if openErr != nil {
		return nil, fmt.Errorf("create %s: %w: %w", channelPath, openErr, ErrCouldNotAccessStorage)
	}

	totalLen := int64(meta.Len()) + int64(meta.Capacity()) + footerLen

	truncErr := file.Truncate(totalLen)
	if truncErr != nil {
		_ = file.Close()

		return nil, fmt.Errorf("size %s to %d bytes: %w: %w", channelPath, totalLen, truncErr, ErrCouldNotAccessStorage)
	}

	data, mapErr := syscall.Mmap(int(file.Fd()), 0, int(totalLen), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if mapErr != nil {
		_ = file.Close()

		return nil, fmt.Errorf("mmap %s: %w: %w", channelPath, mapErr, ErrMemoryMappingFailed)
	}

	meta.writeTo(data[:metadataLen])

	syncErr := unix.Msync(data, unix.MS_SYNC)
	if syncErr != nil {
		_ = syscall.Munmap(data)
		_ = file.Close()

		return nil, fmt.Errorf("flush metadata: %w: %w", syncErr, ErrAccessError)
	}

	writer, err := newShmWriter(data, file, handler)
	if err != nil {
		_ = syscall.Munmap(data)
		_ = file.Close()

		return nil, err
	}

	return writer, nil
}

// OpenChannel attaches a reader to an existing channel under root,
// positioned at the start of the data region.
//
// Returns [ErrStorageNotFound] if the channel file does not exist and
// [ErrStorageNotReady] while its lock file is still present.
func OpenChannel(root string, channelID uint64) (*ShmReader, error) {
	return OpenChannelFS(fs.NewReal(), root, channelID)
}

// OpenChannelFS is [OpenChannel] over an explicit filesystem.
func OpenChannelFS(fsys fs.FS, root string, channelID uint64) (*ShmReader, error) {
	if err := checkPlatform(); err != nil {
		return nil, err
	}

	channelPath := StoragePath(root, channelID)

	exists, err := fsys.Exists(channelPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", channelPath, err, ErrCouldNotAccessStorage)
	}

	if !exists {
		return nil, fmt.Errorf("%s: %w", channelPath, ErrStorageNotFound)
	}

	lockPath := lockFilePath(channelPath)

	lockExists, err := fsys.Exists(lockPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", lockPath, err, ErrCouldNotAccessStorage)
	}

	if lockExists {
		return nil, fmt.Errorf("%s: %w", channelPath, ErrStorageNotReady)
	}

	file, openErr := fsys.OpenFile(channelPath, os.O_RDWR, 0)
	if openErr != nil {
		return nil, fmt.Errorf("open %s: %w: %w", channelPath, openErr, ErrCouldNotAccessStorage)
	}

	info, statErr := file.Stat()
	if statErr != nil {
		_ = file.Close()

		return nil, fmt.Errorf("stat %s: %w: %w", channelPath, statErr, ErrCouldNotAccessStorage)
	}

	size := info.Size()
	if size < metadataLen {
		_ = file.Close()

		return nil, fmt.Errorf("%s is %d bytes, too small for a channel: %w", channelPath, size, ErrAccessError)
	}

	// Readers need a shared writable mapping because the producer mutates
	// the region in place; the reader itself never stores to it.
	data, mapErr := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if mapErr != nil {
		_ = file.Close()

		return nil, fmt.Errorf("mmap %s: %w: %w", channelPath, mapErr, ErrMemoryMappingFailed)
	}

	reader, err := newShmReader(data, file)
	if err != nil {
		_ = syscall.Munmap(data)
		_ = file.Close()

		return nil, err
	}

	expected := int64(reader.meta.Len()) + int64(reader.meta.Capacity()) + footerLen
	if size < expected {
		_ = reader.Close()

		return nil, fmt.Errorf("%s is %d bytes, metadata requires %d: %w", channelPath, size, expected, ErrAccessError)
	}

	return reader, nil
}

// OpenChannelWithRetry calls [OpenChannel] up to tries times, sleeping
// durationMillis/tries milliseconds between attempts. Use it when the
// channel is expected to appear shortly, such as racing a producer that is
// still creating it. Returns the reader from the first successful attempt
// or the error of the last one.
func OpenChannelWithRetry(root string, channelID uint64, durationMillis, tries uint64) (*ShmReader, error) {
	return OpenChannelWithRetryFS(fs.NewReal(), root, channelID, durationMillis, tries)
}

// OpenChannelWithRetryFS is [OpenChannelWithRetry] over an explicit
// filesystem.
func OpenChannelWithRetryFS(fsys fs.FS, root string, channelID uint64, durationMillis, tries uint64) (*ShmReader, error) {
	if tries == 0 {
		return nil, errors.New("kekbit: tries must be > 0")
	}

	interval := time.Duration(durationMillis/tries) * time.Millisecond

	reader, err := OpenChannelFS(fsys, root, channelID)

	for triesLeft := tries - 1; err != nil && triesLeft > 0; triesLeft-- {
		time.Sleep(interval)

		reader, err = OpenChannelFS(fsys, root, channelID)
	}

	return reader, err
}
