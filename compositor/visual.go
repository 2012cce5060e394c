// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package compositor

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"
)

// StretchMode controls how a SurfaceBrush fits its surface into the
// visual rectangle.
type StretchMode int

// Stretch modes. None presents the surface at its natural size,
// Fill scales it to the visual bounds.
const (
	StretchNone StretchMode = iota
	StretchFill
)

// Brush paints the body of a sprite visual.
type Brush interface {
	paint(canvas *image.RGBA, rect image.Rectangle) error
}

// NewSpriteVisual creates an empty visual.
func NewSpriteVisual() *SpriteVisual {
	return &SpriteVisual{}
}

// SpriteVisual is one node of the visual tree: a rectangle positioned
// relative to its parent and painted by a brush. Size, offset and the
// relative adjustments follow composition conventions, so a visual
// with RelativeSizeAdjustment {1, 1} tracks its parent's size and one
// with AnchorPoint and RelativeOffsetAdjustment at {0.5, 0.5} sits
// centered. The tree is meant to be built once during setup, it is
// not safe to mutate while frames compose.
type SpriteVisual struct {
	Brush                    Brush
	Size                     mgl32.Vec2
	Offset                   mgl32.Vec3
	AnchorPoint              mgl32.Vec2
	RelativeOffsetAdjustment mgl32.Vec3
	RelativeSizeAdjustment   mgl32.Vec2

	children []*SpriteVisual
}

// AddChild appends child on top of the existing children.
func (v *SpriteVisual) AddChild(child *SpriteVisual) {
	v.children = append(v.children, child)
}

// Children returns the child visuals, bottom first.
func (v *SpriteVisual) Children() []*SpriteVisual {
	return v.children
}

// layout resolves the visual's rectangle inside its parent.
func (v *SpriteVisual) layout(parent image.Rectangle) image.Rectangle {
	parentSize := mgl32.Vec2{float32(parent.Dx()), float32(parent.Dy())}
	size := v.Size.Add(mgl32.Vec2{
		parentSize[0] * v.RelativeSizeAdjustment[0],
		parentSize[1] * v.RelativeSizeAdjustment[1],
	})
	pos := mgl32.Vec2{
		float32(parent.Min.X) + v.Offset[0] + parentSize[0]*v.RelativeOffsetAdjustment[0],
		float32(parent.Min.Y) + v.Offset[1] + parentSize[1]*v.RelativeOffsetAdjustment[1],
	}
	pos = pos.Sub(mgl32.Vec2{size[0] * v.AnchorPoint[0], size[1] * v.AnchorPoint[1]})

	return image.Rect(
		roundf(pos[0]), roundf(pos[1]),
		roundf(pos[0]+size[0]), roundf(pos[1]+size[1]),
	)
}

func roundf(f float32) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// NewColorBrush creates a brush painting a uniform color.
func NewColorBrush(c color.Color) *ColorBrush {
	r, g, b, a := c.RGBA()
	return &ColorBrush{
		bgra: [4]byte{byte(b >> 8), byte(g >> 8), byte(r >> 8), byte(a >> 8)},
	}
}

// ColorBrush fills its visual with one premultiplied color.
type ColorBrush struct {
	bgra [4]byte
}

func (b *ColorBrush) paint(canvas *image.RGBA, rect image.Rectangle) error {
	rect = rect.Intersect(canvas.Rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := canvas.Pix[y*canvas.Stride+rect.Min.X*4 : y*canvas.Stride+rect.Max.X*4]
		for x := 0; x < len(row); x += 4 {
			copy(row[x:x+4], b.bgra[:])
		}
	}
	return nil
}

// NewSurfaceBrush creates a brush painting the content of surface,
// centered, at its natural size.
func NewSurfaceBrush(surface *DrawingSurface) *SurfaceBrush {
	return &SurfaceBrush{
		Surface:                  surface,
		HorizontalAlignmentRatio: 0.5,
		VerticalAlignmentRatio:   0.5,
	}
}

// SurfaceBrush paints the content of a drawing surface. With
// StretchNone the surface keeps its natural size and the alignment
// ratios place it inside the visual, with StretchFill it scales to
// the visual bounds.
type SurfaceBrush struct {
	Surface                  *DrawingSurface
	Stretch                  StretchMode
	HorizontalAlignmentRatio float32
	VerticalAlignmentRatio   float32
}

func (b *SurfaceBrush) paint(canvas *image.RGBA, rect image.Rectangle) error {
	pix, err := b.Surface.Snapshot()
	if err != nil {
		return err
	}
	size := b.Surface.Size()
	// Byte order stays BGRA end to end, the RGBA header is only a
	// container and the draw operations treat channels uniformly.
	src := &image.RGBA{
		Pix:    pix,
		Stride: size.X * 4,
		Rect:   image.Rectangle{Max: size},
	}

	if b.Stretch == StretchFill {
		xdraw.BiLinear.Scale(canvas, rect, src, src.Rect, xdraw.Over, nil)
		return nil
	}

	offset := image.Pt(
		rect.Min.X+roundf(float32(rect.Dx()-size.X)*b.HorizontalAlignmentRatio),
		rect.Min.Y+roundf(float32(rect.Dy()-size.Y)*b.VerticalAlignmentRatio),
	)
	target := image.Rectangle{Min: offset, Max: offset.Add(size)}
	visible := target.Intersect(rect)
	draw.Draw(canvas, visible, src, visible.Min.Sub(target.Min), draw.Over)
	return nil
}
