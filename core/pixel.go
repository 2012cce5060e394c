package core

import (
	"errors"
	"image"
	"image/draw"
)

// PixelsBGRA transforms a given image into premultiplied BGRA bytes
// by drawing the decoded image onto a controlled canvas. Rows are laid
// out rowPitch bytes apart; a pitch smaller than the packed row length
// is ignored and rows are packed at four bytes per pixel.
func PixelsBGRA(img image.Image, rowPitch int) ([]uint8, error) {
	size := img.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.New("core.PixelsBGRA(): empty image")
	}

	packed := size.X * 4
	if rowPitch < packed {
		// apply the proposed row pitch only if supported,
		// as we're feeding optimally packed textures otherwise.
		rowPitch = packed
	}

	buf := make([]uint8, rowPitch*size.Y)
	canvas := &image.RGBA{
		Pix:    buf,
		Stride: rowPitch,
		Rect:   image.Rectangle{Max: size},
	}
	draw.Draw(canvas, canvas.Rect, img, img.Bounds().Min, draw.Src)

	// The canvas holds premultiplied RGBA, the devices take BGRA.
	for y := 0; y < size.Y; y++ {
		row := buf[y*rowPitch : y*rowPitch+packed]
		for x := 0; x < packed; x += 4 {
			row[x], row[x+2] = row[x+2], row[x]
		}
	}
	return buf, nil
}
