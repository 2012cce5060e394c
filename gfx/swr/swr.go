// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package swr implements a software rendering device. Textures live
// in ordinary memory and every operation is a bounds-checked byte
// copy, which makes the backend usable anywhere a real GPU is not,
// and lets tests drive device loss deterministically through
// SimulateLoss.
package swr

import (
	"fmt"
	"image"
	"sync"

	"github.com/devblok/kompo/gfx"
)

// Device is a software rendering device. A single mutex serializes
// all operations, textures created by the device share it.
type Device struct {
	mu            sync.Mutex
	info          gfx.DeviceInfo
	removed       bool
	signal        *gfx.LossSignal
	registrations int
}

// Info implements gfx.Device.
func (d *Device) Info() gfx.DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	info := d.info
	info.Removed = d.removed
	return info
}

// Removed implements gfx.Device.
func (d *Device) Removed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// Destroy invalidates the device without firing its loss signal.
// Operations on a destroyed device fail like on a removed one.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = true
}

// SimulateLoss invalidates the device the way a driver reset would:
// pending and future operations fail with a device-removed error and
// the registered loss signal fires.
func (d *Device) SimulateLoss() {
	d.mu.Lock()
	if d.removed {
		d.mu.Unlock()
		return
	}
	d.removed = true
	sig := d.signal
	d.mu.Unlock()

	if sig != nil {
		sig.Fire()
	}
}

// Registrations returns how many loss-signal registrations the device
// has accepted over its lifetime.
func (d *Device) Registrations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registrations
}

// CreateTexture implements gfx.Device.
func (d *Device) CreateTexture(size image.Point, pix []byte) (gfx.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return nil, errRemoved("swr.CreateTexture")
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("swr.CreateTexture(): invalid texture size %v", size)
	}

	buf := make([]byte, size.X*size.Y*gfx.BytesPerPixel)
	if pix != nil {
		if len(pix) != len(buf) {
			return nil, fmt.Errorf("swr.CreateTexture(): expected %d bytes of content, got %d", len(buf), len(pix))
		}
		copy(buf, pix)
	}
	return &Texture{dev: d, size: size, pix: buf}, nil
}

// Copy implements gfx.Device.
func (d *Device) Copy(dst gfx.Texture, dp image.Point, src gfx.Texture, sr image.Rectangle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return errRemoved("swr.Copy")
	}

	to, err := d.own("swr.Copy", dst)
	if err != nil {
		return err
	}
	from, err := d.own("swr.Copy", src)
	if err != nil {
		return err
	}

	if !sr.In(from.bounds()) {
		return fmt.Errorf("swr.Copy(): source region %v outside texture %v", sr, from.bounds())
	}
	target := image.Rectangle{Min: dp, Max: dp.Add(sr.Size())}
	if !target.In(to.bounds()) {
		return fmt.Errorf("swr.Copy(): destination region %v outside texture %v", target, to.bounds())
	}

	rowLen := sr.Dx() * gfx.BytesPerPixel
	for y := 0; y < sr.Dy(); y++ {
		srcOff := ((sr.Min.Y+y)*from.size.X + sr.Min.X) * gfx.BytesPerPixel
		dstOff := ((dp.Y+y)*to.size.X + dp.X) * gfx.BytesPerPixel
		copy(to.pix[dstOff:dstOff+rowLen], from.pix[srcOff:srcOff+rowLen])
	}
	return nil
}

// ReadTexture implements gfx.Device.
func (d *Device) ReadTexture(src gfx.Texture, sr image.Rectangle) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return nil, errRemoved("swr.ReadTexture")
	}

	from, err := d.own("swr.ReadTexture", src)
	if err != nil {
		return nil, err
	}
	if !sr.In(from.bounds()) {
		return nil, fmt.Errorf("swr.ReadTexture(): region %v outside texture %v", sr, from.bounds())
	}

	rowLen := sr.Dx() * gfx.BytesPerPixel
	out := make([]byte, sr.Dy()*rowLen)
	for y := 0; y < sr.Dy(); y++ {
		srcOff := ((sr.Min.Y+y)*from.size.X + sr.Min.X) * gfx.BytesPerPixel
		copy(out[y*rowLen:(y+1)*rowLen], from.pix[srcOff:srcOff+rowLen])
	}
	return out, nil
}

// RegisterRemovedSignal implements gfx.Device. Registering against a
// device that is already removed fires the signal before returning,
// so the caller cannot miss a loss that has already happened.
func (d *Device) RegisterRemovedSignal(sig *gfx.LossSignal) (gfx.Registration, error) {
	if err := sig.Attach(d); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.signal = sig
	d.registrations++
	removed := d.removed
	d.mu.Unlock()

	if removed {
		sig.Fire()
	}
	return &registration{dev: d, sig: sig}, nil
}

// own checks that tex was created by this device and is still alive.
// Callers hold d.mu.
func (d *Device) own(op string, tex gfx.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok {
		return nil, fmt.Errorf("%s(): foreign texture %T", op, tex)
	}
	if t.dev != d {
		return nil, &gfx.DeviceError{Op: op, Code: gfx.ErrCodeInternal, Msg: "texture belongs to another device"}
	}
	if t.released {
		return nil, fmt.Errorf("%s(): texture already released", op)
	}
	return t, nil
}

// Texture is a software texture, a plain BGRA byte buffer.
type Texture struct {
	dev      *Device
	size     image.Point
	pix      []byte
	released bool
}

// Size implements gfx.Texture.
func (t *Texture) Size() image.Point {
	return t.size
}

// Release implements gfx.Texture.
func (t *Texture) Release() {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	t.released = true
	t.pix = nil
}

func (t *Texture) bounds() image.Rectangle {
	return image.Rectangle{Max: t.size}
}

type registration struct {
	once sync.Once
	dev  *Device
	sig  *gfx.LossSignal
}

// Release implements gfx.Registration.
func (r *registration) Release() {
	r.once.Do(func() {
		r.dev.mu.Lock()
		if r.dev.signal == r.sig {
			r.dev.signal = nil
		}
		r.dev.mu.Unlock()
		r.sig.Detach(r.dev)
	})
}

func errRemoved(op string) error {
	return &gfx.DeviceError{Op: op, Code: gfx.ErrCodeDeviceRemoved}
}
