// Package fs provides the filesystem abstraction used by the channel
// factory, plus implementations for production and for fault-injection
// testing.
//
// The main types are:
//   - [FS]: interface for the filesystem operations the factory needs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//   - [Chaos]: testing implementation that injects failures on demand
//
// Example usage:
//
//	fsys := fs.NewReal()
//	f, err := fsys.OpenFile("store.kekbit", os.O_RDWR, 0)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. The intent is os-like behavior:
// implementations must behave like [os.File], including that [File.Fd]
// returns a valid OS file descriptor usable with syscalls (for example
// [syscall.Mmap]) until the file is closed.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type File interface {
	// Embedded interfaces from [io] package.
	// These provide Read, Write, Close, and Seek methods.
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	// Used for low-level operations like [syscall.Mmap].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Truncate changes the size of the file. See [os.File.Truncate].
	// Used to size a channel file before mapping it.
	Truncate(size int64) error
}

// FS defines the filesystem operations needed to create, open and discard
// channel storage.
//
// Implementations in this package:
//   - [Real]: production use, wraps the [os] package
//   - [Chaos]: testing use, injects failures on selected operations
//
// All methods mirror their [os] package equivalents but can be intercepted
// for testing with fault injection. Paths use OS semantics (like the os
// package and path/filepath), not the slash-separated paths of io/fs.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// Create creates or truncates a file for writing. See [os.Create].
	// Used for lock files, whose content is irrelevant.
	Create(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See
	// [os.OpenFile]. Use this for fine-grained control (read-write,
	// exclusive create, etc).
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to a file through a rename, so readers
	// never observe a partially written file.
	WriteFileAtomic(path string, data []byte) error

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	// No error if the directory already exists.
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	// Returns [os.ErrNotExist] if the file doesn't exist.
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
