package fs_test

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/calvinalkan/kekbit/pkg/fs"
)

func Test_Chaos_Fails_Armed_Operations_Until_Reset(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal())
	path := filepath.Join(t.TempDir(), "f")

	chaos.FailOn(fs.OpOpenFile, syscall.EACCES)

	_, err := chaos.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if !errors.Is(err, syscall.EACCES) {
		t.Fatalf("err = %v, want EACCES", err)
	}

	// Still armed: fails again.
	_, err = chaos.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if !errors.Is(err, syscall.EACCES) {
		t.Fatalf("second err = %v, want EACCES", err)
	}

	chaos.Reset(fs.OpOpenFile)

	f, err := chaos.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatalf("after reset: %v", err)
	}

	_ = f.Close()
}

func Test_Chaos_Leaves_Unarmed_Operations_Alone(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal())
	chaos.FailOn(fs.OpRemove, syscall.EPERM)

	dir := t.TempDir()

	ok, err := chaos.Exists(filepath.Join(dir, "missing"))
	if err != nil || ok {
		t.Fatalf("Exists = (%v, %v), want (false, nil)", ok, err)
	}
}

func Test_Chaos_Marks_Failures_As_Injected(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal())
	chaos.FailOn(fs.OpStat, syscall.EIO)

	_, err := chaos.Stat("anything")
	if !fs.IsInjected(err) {
		t.Fatalf("IsInjected = false for %v", err)
	}

	if fs.IsInjected(nil) {
		t.Fatal("IsInjected(nil) = true")
	}

	if fs.IsInjected(errors.New("organic failure")) {
		t.Fatal("organic error reported as injected")
	}
}
