// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package compositor_test

import (
	"bytes"
	"image"
	"testing"

	"github.com/devblok/kompo/compositor"
	"github.com/devblok/kompo/gfx"
	"github.com/devblok/kompo/gfx/swr"
)

func newGraphics(t *testing.T) (*swr.Provider, *swr.Device, *compositor.GraphicsDevice) {
	provider := swr.NewProvider()
	dev, err := provider.CreateDevice()
	if err != nil {
		t.Fatal(err)
	}
	graphics, err := compositor.NewGraphicsDevice(dev, compositor.Configuration{
		AtlasWidth:  64,
		AtlasHeight: 64,
		Padding:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return provider, dev.(*swr.Device), graphics
}

// drawPattern copies a deterministic pattern texture into the surface
// through dev and returns the pattern bytes.
func drawPattern(t *testing.T, dev gfx.Device, surface *compositor.DrawingSurface, size image.Point) []byte {
	pix := make([]byte, size.X*size.Y*gfx.BytesPerPixel)
	for i := range pix {
		pix[i] = byte(i*13 + 1)
	}
	tex, err := dev.CreateTexture(size, pix)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()

	if err := surface.Resize(size); err != nil {
		t.Fatal(err)
	}
	backing, origin, err := surface.BeginDraw()
	if err != nil {
		t.Fatal(err)
	}
	defer surface.EndDraw()
	if err := dev.Copy(backing, origin, tex, image.Rectangle{Max: size}); err != nil {
		t.Fatal(err)
	}
	return pix
}

func TestSurfaceDrawAndSnapshot(t *testing.T) {
	_, dev, graphics := newGraphics(t)
	surface, err := graphics.CreateDrawingSurface(image.Pt(1, 1))
	if err != nil {
		t.Fatal(err)
	}

	size := image.Pt(4, 4)
	pix := drawPattern(t, dev, surface, size)

	if surface.Size() != size {
		t.Errorf("surface size %v, expected %v", surface.Size(), size)
	}
	got, err := surface.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pix) {
		t.Error("surface content differs from the drawn texture")
	}
}

func TestTwoSurfacesDoNotAlias(t *testing.T) {
	_, dev, graphics := newGraphics(t)
	first, err := graphics.CreateDrawingSurface(image.Pt(4, 4))
	if err != nil {
		t.Fatal(err)
	}
	second, err := graphics.CreateDrawingSurface(image.Pt(4, 4))
	if err != nil {
		t.Fatal(err)
	}

	pix := drawPattern(t, dev, first, image.Pt(4, 4))

	got, err := second.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(got, pix) {
		t.Error("drawing the first surface leaked into the second")
	}
	for _, b := range got {
		if b != 0 {
			t.Error("untouched surface must stay blank")
			break
		}
	}
}

func TestReplacementNotifiesSubscribers(t *testing.T) {
	provider, old, graphics := newGraphics(t)

	var notified int
	token := graphics.RenderingDeviceReplaced(func(g *compositor.GraphicsDevice) {
		notified++
	})

	next, err := provider.CreateDevice()
	if err != nil {
		t.Fatal(err)
	}
	if err := graphics.SetRenderingDevice(next); err != nil {
		t.Fatal(err)
	}

	if notified != 1 {
		t.Errorf("expected one notification, got %d", notified)
	}
	if graphics.RenderingDevice() != next {
		t.Error("replacement did not install the new device")
	}
	if !old.Removed() {
		t.Error("replaced device must be destroyed")
	}

	graphics.RemoveReplaced(token)
	another, err := provider.CreateDevice()
	if err != nil {
		t.Fatal(err)
	}
	if err := graphics.SetRenderingDevice(another); err != nil {
		t.Fatal(err)
	}
	if notified != 1 {
		t.Error("removed subscription must not fire")
	}
}

func TestFailedInstallKeepsOldDevice(t *testing.T) {
	provider, old, graphics := newGraphics(t)

	var notified int
	graphics.RenderingDeviceReplaced(func(g *compositor.GraphicsDevice) {
		notified++
	})

	provider.RemoveNext(1)
	dead, err := provider.CreateDevice()
	if err != nil {
		t.Fatal(err)
	}

	err = graphics.SetRenderingDevice(dead)
	if !gfx.IsDeviceLoss(err) {
		t.Errorf("installing a dead device must fail as a device loss, got %v", err)
	}
	if graphics.RenderingDevice() != gfx.Device(old) {
		t.Error("failed install must leave the old device active")
	}
	if old.Removed() {
		t.Error("failed install must not destroy the old device")
	}
	if notified != 0 {
		t.Error("failed install must not notify subscribers")
	}
}

func TestSurfacesSurviveReplacement(t *testing.T) {
	provider, dev, graphics := newGraphics(t)
	surface, err := graphics.CreateDrawingSurface(image.Pt(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	size := image.Pt(4, 4)
	pix := drawPattern(t, dev, surface, size)

	next, err := provider.CreateDevice()
	if err != nil {
		t.Fatal(err)
	}
	if err := graphics.SetRenderingDevice(next); err != nil {
		t.Fatal(err)
	}

	if surface.Size() != size {
		t.Errorf("surface size changed across replacement: %v", surface.Size())
	}
	got, err := surface.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range got {
		if b != 0 {
			t.Error("surface content must be blank after replacement until redrawn")
			break
		}
	}

	redrawn := drawPattern(t, next, surface, size)
	if !bytes.Equal(redrawn, pix) {
		t.Fatal("pattern generation is not deterministic")
	}
	got, err = surface.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pix) {
		t.Error("redraw through the new device did not restore the content")
	}
}
