package core_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/devblok/kompo/core"
)

func TestPixelsBGRAOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	copy(img.Pix, []uint8{1, 2, 3, 255, 9, 8, 7, 255})

	pix, err := core.PixelsBGRA(img, 0)
	if err != nil {
		t.Fatal(err)
	}
	expected := []uint8{3, 2, 1, 255, 7, 8, 9, 255}
	if !bytes.Equal(pix, expected) {
		t.Errorf("expected %v, got %v", expected, pix)
	}
}

func TestPixelsBGRAPremultiplies(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 128})

	pix, err := core.PixelsBGRA(img, 0)
	if err != nil {
		t.Fatal(err)
	}
	expected := []uint8{0, 0, 128, 128}
	if !bytes.Equal(pix, expected) {
		t.Errorf("expected premultiplied %v, got %v", expected, pix)
	}
}

func TestPixelsBGRARowPitch(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	copy(img.Pix, []uint8{
		1, 2, 3, 255, 9, 8, 7, 255,
		4, 5, 6, 255, 6, 5, 4, 255,
	})

	const pitch = 16
	pix, err := core.PixelsBGRA(img, pitch)
	if err != nil {
		t.Fatal(err)
	}
	if len(pix) != pitch*2 {
		t.Fatalf("expected %d bytes, got %d", pitch*2, len(pix))
	}
	if !bytes.Equal(pix[0:8], []uint8{3, 2, 1, 255, 7, 8, 9, 255}) {
		t.Error("first row content wrong")
	}
	if !bytes.Equal(pix[pitch:pitch+8], []uint8{6, 5, 4, 255, 4, 5, 6, 255}) {
		t.Error("second row is not at the requested pitch")
	}

	// A pitch below the packed row length falls back to packed rows.
	pix, err = core.PixelsBGRA(img, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(pix) != 2*2*4 {
		t.Errorf("undersized pitch was not ignored, got %d bytes", len(pix))
	}
}

func BenchmarkPixelsBGRA(b *testing.B) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	for idx := 0; idx < b.N; idx++ {
		core.PixelsBGRA(img, 0)
	}
}

func BenchmarkPixelsBGRABigRowPitch(b *testing.B) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	for idx := 0; idx < b.N; idx++ {
		core.PixelsBGRA(img, 2048)
	}
}
