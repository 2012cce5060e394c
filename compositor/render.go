// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package compositor

import (
	"fmt"
	"image"
)

// Frame is one composed picture in premultiplied BGRA, rows Stride
// bytes apart.
type Frame struct {
	Pix    []byte
	Stride int
	Size   image.Point
}

// Compose renders the visual tree rooted at root into a frame of the
// given size. Visuals paint depth first, every parent below its
// children, children bottom first.
func Compose(root *SpriteVisual, size image.Point) (*Frame, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("compositor: invalid frame size %v", size)
	}

	canvas := image.NewRGBA(image.Rectangle{Max: size})
	if err := composeVisual(root, canvas.Rect, canvas); err != nil {
		return nil, err
	}
	return &Frame{
		Pix:    canvas.Pix,
		Stride: canvas.Stride,
		Size:   size,
	}, nil
}

func composeVisual(v *SpriteVisual, parent image.Rectangle, canvas *image.RGBA) error {
	rect := v.layout(parent)
	if v.Brush != nil {
		if err := v.Brush.paint(canvas, rect); err != nil {
			return err
		}
	}
	for _, child := range v.Children() {
		if err := composeVisual(child, rect, canvas); err != nil {
			return err
		}
	}
	return nil
}
