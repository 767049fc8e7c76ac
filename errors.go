package dossys

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// SysError is the error interface returned by every package in this module.
// Each error derives from one of the sentinel values below, so callers can
// test for a category with [errors.Is] regardless of how much context has been
// attached.
type SysError interface {
	error
	WithMessage(message string) SysError
	Wrap(err error) SysError
}

type baseSysError string

const rootError = baseSysError("")

// Errors that abort an installation.
var ErrUnsupportedSectorSize = rootError.WithMessage("Unsupported sector size")
var ErrTemplateRead = rootError.WithMessage("Failed to read boot code template")
var ErrUnsupportedCombination = rootError.WithMessage("Unsupported combination of file system and boot code")
var ErrUnexpectedTemplateLayout = rootError.WithMessage("Boot sector does not match expected layout")
var ErrFeatureNotAvailable = rootError.WithMessage("Feature not available")
var ErrDeviceIO = rootError.WithMessage("Device input/output error")

// Supporting errors.
var ErrBusy = rootError.WithMessage("Device or resource busy")
var ErrFileSystemCorrupted = rootError.WithMessage("Structure needs cleaning")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrNoSpaceOnDevice = rootError.WithMessage("No space left on device")
var ErrNotFound = rootError.WithMessage("No such file or directory")
var ErrNotSupported = rootError.WithMessage("Operation not supported")

func (e baseSysError) Error() string {
	return string(e)
}

func (e baseSysError) WithMessage(message string) SysError {
	return customSysError{
		message:       message,
		originalError: e,
	}
}

func (e baseSysError) Wrap(err error) SysError {
	return customSysError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customSysError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customSysError) Error() string {
	return e.message
}

func (e customSysError) WithMessage(message string) SysError {
	return customSysError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customSysError) Wrap(err error) SysError {
	return customSysError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customSysError) Unwrap() error {
	return e.originalError
}
