package betadisk_test

import (
	"errors"
	"testing"

	"github.com/dargueta/betadisk"
	"github.com/stretchr/testify/assert"
)

func TestDriverErrorWithMessage(t *testing.T) {
	newErr := betadisk.ErrAddressOutOfRange.WithMessage("asdfqwerty")
	assert.Equal(
		t, "Sector address out of range: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, betadisk.ErrAddressOutOfRange)
}

func TestDriverErrorWithMessageChained(t *testing.T) {
	newErr := betadisk.ErrIOFault.WithMessage("first").WithMessage("second")
	assert.Equal(t, "Input/output error: first: second", newErr.Error())
	assert.ErrorIs(t, newErr, betadisk.ErrIOFault)
	assert.NotErrorIs(t, newErr, betadisk.ErrReadOnly)
}

func TestDriverErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := betadisk.ErrIncompatibleFormat.Wrap(originalErr)
	expectedMessage := "Incompatible image format: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, betadisk.ErrIncompatibleFormat, "driver error not set as parent")
}
