package fs

import (
	"errors"
	"os"
	"sync"
)

// Op identifies an [FS] operation for fault injection.
type Op string

// Operations that [Chaos] can fail.
const (
	OpOpen            Op = "open"
	OpCreate          Op = "create"
	OpOpenFile        Op = "open_file"
	OpReadFile        Op = "read_file"
	OpWriteFileAtomic Op = "write_file_atomic"
	OpMkdirAll        Op = "mkdir_all"
	OpStat            Op = "stat"
	OpExists          Op = "exists"
	OpRemove          Op = "remove"
)

// InjectedError marks an error as intentionally injected by [Chaos].
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by
// [Chaos]. Returns false if err is nil.
func IsInjected(err error) bool {
	if err == nil {
		return false
	}

	var injected *InjectedError

	return errors.As(err, &injected)
}

// Chaos wraps another [FS] and fails selected operations deterministically.
// It is meant for tests that exercise error paths which are hard to trigger
// against a real filesystem.
//
// Failures are armed per operation with [Chaos.FailOn] and stay armed until
// cleared with [Chaos.Reset]. Operations without an armed failure pass
// through to the inner filesystem.
type Chaos struct {
	inner FS

	mu       sync.Mutex
	failures map[Op]error
}

// NewChaos returns a Chaos wrapping inner with no failures armed.
// Panics if inner is nil.
func NewChaos(inner FS) *Chaos {
	if inner == nil {
		panic("inner fs is nil")
	}

	return &Chaos{inner: inner, failures: make(map[Op]error)}
}

// FailOn arms op to fail with err, wrapped in [InjectedError].
func (c *Chaos) FailOn(op Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures[op] = &InjectedError{Err: err}
}

// Reset clears any armed failure for op.
func (c *Chaos) Reset(op Op) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.failures, op)
}

// armed returns the injected error for op, or nil.
func (c *Chaos) armed(op Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.failures[op]
}

// Open fails if armed, else passes through.
func (c *Chaos) Open(path string) (File, error) {
	if err := c.armed(OpOpen); err != nil {
		return nil, err
	}

	return c.inner.Open(path)
}

// Create fails if armed, else passes through.
func (c *Chaos) Create(path string) (File, error) {
	if err := c.armed(OpCreate); err != nil {
		return nil, err
	}

	return c.inner.Create(path)
}

// OpenFile fails if armed, else passes through.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := c.armed(OpOpenFile); err != nil {
		return nil, err
	}

	return c.inner.OpenFile(path, flag, perm)
}

// ReadFile fails if armed, else passes through.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if err := c.armed(OpReadFile); err != nil {
		return nil, err
	}

	return c.inner.ReadFile(path)
}

// WriteFileAtomic fails if armed, else passes through.
func (c *Chaos) WriteFileAtomic(path string, data []byte) error {
	if err := c.armed(OpWriteFileAtomic); err != nil {
		return err
	}

	return c.inner.WriteFileAtomic(path, data)
}

// MkdirAll fails if armed, else passes through.
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	if err := c.armed(OpMkdirAll); err != nil {
		return err
	}

	return c.inner.MkdirAll(path, perm)
}

// Stat fails if armed, else passes through.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if err := c.armed(OpStat); err != nil {
		return nil, err
	}

	return c.inner.Stat(path)
}

// Exists fails if armed, else passes through.
func (c *Chaos) Exists(path string) (bool, error) {
	if err := c.armed(OpExists); err != nil {
		return false, err
	}

	return c.inner.Exists(path)
}

// Remove fails if armed, else passes through.
func (c *Chaos) Remove(path string) error {
	if err := c.armed(OpRemove); err != nil {
		return err
	}

	return c.inner.Remove(path)
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
