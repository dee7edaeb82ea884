package betadisk

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseDriverError string

// Image-level failures. These are returned to callers as explicit errors.
var ErrUnsupportedSize = baseDriverError("Unsupported image size")
var ErrCatalogReadFailure = baseDriverError("Could not read disk catalog")
var ErrAddressOutOfRange = baseDriverError("Sector address out of range")
var ErrIOFault = baseDriverError("Input/output error")
var ErrReadOnly = baseDriverError("Read-only disk image")

// ErrIncompatibleFormat is returned when a container doesn't have the layout
// its reader expects.
var ErrIncompatibleFormat = baseDriverError("Incompatible image format")

var ErrInvalidArgument = baseDriverError("Invalid argument")
var ErrClosed = baseDriverError("Image already closed")

func (e baseDriverError) Error() string {
	return string(e)
}

func (e baseDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", string(e), message),
		originalError: e,
	}
}

func (e baseDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}
