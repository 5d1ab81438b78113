// internal/mavconn/errors.go
package mavconn

import (
	"errors"
	"fmt"
)

// ErrChannelsExhausted is returned by the channel registry when every
// protocol channel is already held by a live connection.
var ErrChannelsExhausted = errors.New("no free mavlink channels")

// DeviceError reports a failed connection attempt. Kind identifies the
// failing stage ("url", "serial", "udp", "tcp") and Detail describes it.
type DeviceError struct {
	Kind   string
	Detail string
	Err    error
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mavconn: %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("mavconn: %s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause, if any
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// newDeviceError creates a DeviceError without an underlying cause
func newDeviceError(kind, detail string) *DeviceError {
	return &DeviceError{Kind: kind, Detail: detail}
}

// wrapDeviceError creates a DeviceError wrapping an underlying cause
func wrapDeviceError(kind, detail string, err error) *DeviceError {
	return &DeviceError{Kind: kind, Detail: detail, Err: err}
}
