// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package compositor_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/devblok/kompo/compositor"
	"github.com/devblok/kompo/gfx"
	"github.com/go-gl/mathgl/mgl32"
)

// frameAt returns the BGRA bytes of one frame pixel.
func frameAt(f *compositor.Frame, x, y int) []byte {
	off := y*f.Stride + x*4
	return f.Pix[off : off+4]
}

func TestComposeCenteredColorVisual(t *testing.T) {
	root := compositor.NewSpriteVisual()
	root.RelativeSizeAdjustment = mgl32.Vec2{1, 1}
	root.Brush = compositor.NewColorBrush(color.White)

	child := compositor.NewSpriteVisual()
	child.Size = mgl32.Vec2{40, 30}
	child.AnchorPoint = mgl32.Vec2{0.5, 0.5}
	child.RelativeOffsetAdjustment = mgl32.Vec3{0.5, 0.5, 0}
	child.Brush = compositor.NewColorBrush(color.RGBA{R: 255, A: 255})
	root.AddChild(child)

	frame, err := compositor.Compose(root, image.Pt(100, 100))
	if err != nil {
		t.Fatal(err)
	}

	white := []byte{255, 255, 255, 255}
	red := []byte{0, 0, 255, 255}

	cases := []struct {
		x, y     int
		expected []byte
	}{
		{50, 50, red},
		{30, 35, red},
		{69, 64, red},
		{29, 35, white},
		{30, 34, white},
		{70, 65, white},
		{0, 0, white},
		{99, 99, white},
	}
	for _, c := range cases {
		if got := frameAt(frame, c.x, c.y); !bytes.Equal(got, c.expected) {
			t.Errorf("pixel (%d,%d) = %v, expected %v", c.x, c.y, got, c.expected)
		}
	}
}

func TestComposeSurfaceBrushStretchNone(t *testing.T) {
	_, dev, graphics := newGraphics(t)
	surface, err := graphics.CreateDrawingSurface(image.Pt(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	size := image.Pt(2, 2)
	pix := drawPattern(t, dev, surface, size)

	root := compositor.NewSpriteVisual()
	root.RelativeSizeAdjustment = mgl32.Vec2{1, 1}
	root.Brush = compositor.NewSurfaceBrush(surface)

	frame, err := compositor.Compose(root, image.Pt(6, 6))
	if err != nil {
		t.Fatal(err)
	}

	// Centered 2x2 content inside 6x6 starts at (2,2).
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			texel := pix[(y*size.X+x)*gfx.BytesPerPixel : (y*size.X+x+1)*gfx.BytesPerPixel]
			if got := frameAt(frame, 2+x, 2+y); !bytes.Equal(got, texel) {
				t.Errorf("content pixel (%d,%d) = %v, expected %v", x, y, got, texel)
			}
		}
	}
	if got := frameAt(frame, 0, 0); !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Errorf("pixel outside the content must stay untouched, got %v", got)
	}
}

func TestComposeSurfaceBrushStretchFill(t *testing.T) {
	_, dev, graphics := newGraphics(t)
	surface, err := graphics.CreateDrawingSurface(image.Pt(1, 1))
	if err != nil {
		t.Fatal(err)
	}

	// Single opaque texel scaled across the whole frame.
	texel := []byte{10, 20, 30, 255}
	tex, err := dev.CreateTexture(image.Pt(1, 1), texel)
	if err != nil {
		t.Fatal(err)
	}
	backing, origin, err := surface.BeginDraw()
	if err != nil {
		t.Fatal(err)
	}
	err = dev.Copy(backing, origin, tex, image.Rect(0, 0, 1, 1))
	surface.EndDraw()
	if err != nil {
		t.Fatal(err)
	}

	root := compositor.NewSpriteVisual()
	root.RelativeSizeAdjustment = mgl32.Vec2{1, 1}
	brush := compositor.NewSurfaceBrush(surface)
	brush.Stretch = compositor.StretchFill
	root.Brush = brush

	frame, err := compositor.Compose(root, image.Pt(4, 4))
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got := frameAt(frame, x, y); !bytes.Equal(got, texel) {
				t.Errorf("pixel (%d,%d) = %v, expected %v", x, y, got, texel)
			}
		}
	}
}

func TestComposeRejectsEmptyFrame(t *testing.T) {
	if _, err := compositor.Compose(compositor.NewSpriteVisual(), image.Pt(0, 10)); err == nil {
		t.Error("expected an error for an empty frame size")
	}
}
