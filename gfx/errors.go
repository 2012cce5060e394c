// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "errors"

// package errors
var (
	ErrSignalBusy = errors.New("loss signal is already registered to a device")
)

// ErrorCode classifies a device failure.
type ErrorCode int

// Device failure classes. Removed and Reset describe transient GPU
// instability that a freshly created device recovers from, everything
// else is final.
const (
	ErrCodeInternal ErrorCode = iota
	ErrCodeDeviceRemoved
	ErrCodeDeviceReset
	ErrCodeOutOfMemory
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeDeviceRemoved:
		return "device removed"
	case ErrCodeDeviceReset:
		return "device reset"
	case ErrCodeOutOfMemory:
		return "out of memory"
	default:
		return "internal error"
	}
}

// DeviceError describes a failed device operation.
type DeviceError struct {
	Op   string
	Code ErrorCode
	Msg  string
}

func (e *DeviceError) Error() string {
	if e.Msg == "" {
		return e.Op + ": " + e.Code.String()
	}
	return e.Op + ": " + e.Code.String() + ": " + e.Msg
}

// IsDeviceLoss reports whether err is a transient device-instability
// failure, one that retrying against a new device can resolve. Any
// other error is fatal to the operation that hit it.
func IsDeviceLoss(err error) bool {
	if de, ok := err.(*DeviceError); ok {
		return de.Code == ErrCodeDeviceRemoved || de.Code == ErrCodeDeviceReset
	}
	return false
}
