// Package status defines the error kinds surfaced by operators and kernels.
//
// Every fallible step returns an error wrapping exactly one of the sentinels
// below, so callers can branch with errors.Is without parsing messages.
package status

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports an invalid operator configuration: axis out of
	// range, unsupported reduce type for an element type, missing quantization
	// parameters. Detected before any execution starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrDevice reports a failed device call (kernel build, launch, event wait).
	ErrDevice = errors.New("device error")

	// ErrNotImplemented reports a configuration the kernels do not cover,
	// e.g. a reduction that does not collapse to four or fewer dimensions.
	ErrNotImplemented = errors.New("not implemented")

	// ErrCheckFailed reports a violated precondition. These are programming
	// errors rather than expected runtime conditions.
	ErrCheckFailed = errors.New("check failed")
)

// Configurationf returns an ErrConfiguration with a formatted message.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// NotImplementedf returns an ErrNotImplemented with a formatted message.
func NotImplementedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, fmt.Sprintf(format, args...))
}

// Device wraps a device-side failure.
func Device(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDevice, op, err)
}

// Check returns an ErrCheckFailed carrying msg when cond is false.
func Check(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCheckFailed, fmt.Sprintf(format, args...))
}
