// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the rendering device abstraction that backends
// must implement. All pixel data crossing this API is premultiplied
// BGRA, four bytes per pixel, rows packed at 4*width unless a pitch
// says otherwise.
package gfx

import "image"

// BytesPerPixel is the size of one BGRA pixel.
const BytesPerPixel = 4

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Texture is a device-resident image.
type Texture interface {
	Releasable

	// Size returns the texture dimensions in pixels.
	Size() image.Point
}

// Device describes a non-concrete rendering device. A Device is an
// opaque execution context: it is created by a Provider, may be
// invalidated asynchronously at any time, and is replaced rather than
// repaired when that happens. Every operation on a removed device
// fails with a device-removed error.
type Device interface {

	// Info returns the device descriptor.
	Info() DeviceInfo

	// CreateTexture allocates a texture of the given size. When pix
	// is non-nil it must hold size.X*size.Y*BytesPerPixel bytes of
	// initial content, otherwise the texture comes up zeroed.
	CreateTexture(size image.Point, pix []byte) (Texture, error)

	// Copy copies the sr region of src into dst, placing its top left
	// corner at dp. Both textures must belong to this device.
	Copy(dst Texture, dp image.Point, src Texture, sr image.Rectangle) error

	// ReadTexture returns the sr region of src as packed BGRA bytes.
	ReadTexture(src Texture, sr image.Rectangle) ([]byte, error)

	// RegisterRemovedSignal arms sig to fire when this device is
	// removed. A device that is already removed fires sig before
	// returning, so a registration can never miss the loss.
	RegisterRemovedSignal(sig *LossSignal) (Registration, error)

	// Removed reports whether the device has been invalidated.
	Removed() bool

	// Destroy releases the device and everything created from it.
	Destroy()
}

// Registration ties a LossSignal to the device it watches.
type Registration interface {

	// Release detaches the signal from the device. Releasing twice
	// is a no-op.
	Release()
}

// Provider creates rendering devices of one backend.
type Provider interface {

	// Name identifies the backend.
	Name() string

	// Devices describes the devices the backend could create.
	Devices() ([]DeviceInfo, error)

	// CreateDevice creates a fresh device.
	CreateDevice() (Device, error)
}

// DeviceInfo describes available properties of a rendering device.
type DeviceInfo struct {
	ID       int
	VendorID int
	Name     string
	Backend  string
	Memory   int64
	Removed  bool
}
