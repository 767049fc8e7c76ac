package sysfiles_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dargueta/dossys"
	"github.com/dargueta/dossys/sysfiles"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func noEnv(string) string { return "" }

func TestCopyPreservesModTime(t *testing.T) {
	source := t.TempDir()
	destination := t.TempDir()
	path := writeFile(t, source, "KERNEL.SYS", 1234)

	modTime := time.Date(1998, 8, 24, 15, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, modTime, modTime))

	logger, _ := test.NewNullLogger()
	target := filepath.Join(destination, "KERNEL.SYS")
	require.NoError(t, sysfiles.Copy(path, target, logger))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.EqualValues(t, 1234, info.Size())
	assert.True(t, modTime.Equal(info.ModTime()), "mtime is %s", info.ModTime())
}

func TestCopyOntoItself(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "KERNEL.SYS", 10)

	logger, _ := test.NewNullLogger()
	require.NoError(t, sysfiles.Copy(path, path, logger))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 10, info.Size())
}

func TestCopyDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	err := sysfiles.Copy(t.TempDir(), filepath.Join(t.TempDir(), "X"), logger)
	assert.ErrorIs(t, err, dossys.ErrInvalidArgument)
}

func TestTransferFreeDOS(t *testing.T) {
	source := t.TempDir()
	destination := t.TempDir()
	writeFile(t, source, "KERNEL.SYS", 45000)
	writeFile(t, source, "COMMAND.COM", 66000)

	config := &dossys.BootConfig{KernelName: "KERNEL.SYS"}
	logger, _ := test.NewNullLogger()
	err := sysfiles.Transfer(
		source, destination, sysfiles.PlanFor(config, sysfiles.TransferAll), noEnv, logger)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(destination, "KERNEL.SYS"))
	assert.FileExists(t, filepath.Join(destination, "COMMAND.COM"))
}

func TestTransferKernelOnly(t *testing.T) {
	source := t.TempDir()
	destination := t.TempDir()
	writeFile(t, source, "IO.SYS", 40000)
	writeFile(t, source, "MSDOS.SYS", 38000)
	writeFile(t, source, "COMMAND.COM", 54000)

	config := &dossys.BootConfig{
		KernelName:       "IO.SYS",
		SecondaryName:    "MSDOS.SYS",
		MinSecondarySize: 10240,
	}
	logger, _ := test.NewNullLogger()
	err := sysfiles.Transfer(
		source, destination, sysfiles.PlanFor(config, sysfiles.TransferKernel), noEnv, logger)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(destination, "IO.SYS"))
	assert.FileExists(t, filepath.Join(destination, "MSDOS.SYS"))
	assert.NoFileExists(t, filepath.Join(destination, "COMMAND.COM"))
}

func TestTransferNone(t *testing.T) {
	destination := t.TempDir()
	logger, _ := test.NewNullLogger()

	plan := sysfiles.Plan{Mode: sysfiles.TransferNone, Kernel: "KERNEL.SYS"}
	require.NoError(t, sysfiles.Transfer(t.TempDir(), destination, plan, noEnv, logger))

	entries, err := os.ReadDir(destination)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransferMissingKernel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	plan := sysfiles.Plan{Mode: sysfiles.TransferAll, Kernel: "KERNEL.SYS"}

	err := sysfiles.Transfer(t.TempDir(), t.TempDir(), plan, noEnv, logger)
	assert.ErrorContains(t, err, `cannot copy "KERNEL.SYS"`)
}

func TestTransferSecondary(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		minSize   int64
		expectErr bool
	}{
		{"optional and missing", -1, 0, false},
		{"required and missing", -1, 1, true},
		{"too small", 100, 6138, true},
		{"big enough", 6138, 6138, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			source := t.TempDir()
			writeFile(t, source, "IBMBIO.COM", 30000)
			if tc.size >= 0 {
				writeFile(t, source, "IBMDOS.COM", tc.size)
			}

			plan := sysfiles.Plan{
				Mode:             sysfiles.TransferKernel,
				Kernel:           "IBMBIO.COM",
				Secondary:        "IBMDOS.COM",
				MinSecondarySize: tc.minSize,
			}
			logger, _ := test.NewNullLogger()
			err := sysfiles.Transfer(source, t.TempDir(), plan, noEnv, logger)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransferShellFromComspec(t *testing.T) {
	source := t.TempDir()
	destination := t.TempDir()
	writeFile(t, source, "KERNEL.SYS", 100)
	shell := writeFile(t, t.TempDir(), "4DOS.COM", 777)

	getenv := func(name string) string {
		if name == "COMSPEC" {
			return shell
		}
		return ""
	}

	logger, _ := test.NewNullLogger()
	plan := sysfiles.Plan{Mode: sysfiles.TransferAll, Kernel: "KERNEL.SYS"}
	require.NoError(t, sysfiles.Transfer(source, destination, plan, getenv, logger))

	info, err := os.Stat(filepath.Join(destination, "COMMAND.COM"))
	require.NoError(t, err)
	assert.EqualValues(t, 777, info.Size())
}

func TestTransferExplicitShellHasNoFallback(t *testing.T) {
	source := t.TempDir()
	writeFile(t, source, "KERNEL.SYS", 100)
	shell := writeFile(t, t.TempDir(), "COMMAND.COM", 10)

	getenv := func(string) string { return shell }
	plan := sysfiles.Plan{Mode: sysfiles.TransferAll, Kernel: "KERNEL.SYS", Shell: "SHELL.COM"}

	logger, _ := test.NewNullLogger()
	err := sysfiles.Transfer(source, t.TempDir(), plan, getenv, logger)
	assert.ErrorContains(t, err, "failed to find command interpreter (shell) file SHELL.COM")
}

func TestTransferNoShell(t *testing.T) {
	source := t.TempDir()
	writeFile(t, source, "KERNEL.SYS", 100)

	logger, _ := test.NewNullLogger()
	plan := sysfiles.Plan{Mode: sysfiles.TransferAll, Kernel: "KERNEL.SYS"}
	err := sysfiles.Transfer(source, t.TempDir(), plan, noEnv, logger)
	assert.ErrorContains(t, err, "COMMAND.COM")
}
