// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package loader decodes image files and moves their pixels onto
// drawing surfaces through a rendering device.
package loader

import (
	"fmt"
	"image"
	"io"
	"os"

	// decoders for the common raster formats
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/devblok/kompo/compositor"
	"github.com/devblok/kompo/core"
	"github.com/devblok/kompo/gfx"
	"github.com/devblok/kompo/utility/pak"
)

// Source is a place an image can be read from.
type Source interface {

	// Open returns the image byte stream.
	Open() (io.ReadCloser, error)

	// Name identifies the source in error messages.
	Name() string
}

// FileSource reads the image from a file on disk.
func FileSource(path string) Source {
	return fileSource(path)
}

type fileSource string

func (s fileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(s))
}

func (s fileSource) Name() string {
	return string(s)
}

// PakSource reads the image from an entry of a pak archive.
func PakSource(archive *pak.Archive, entry string) Source {
	return &pakSource{archive: archive, entry: entry}
}

type pakSource struct {
	archive *pak.Archive
	entry   string
}

func (s *pakSource) Open() (io.ReadCloser, error) {
	r, err := s.archive.Open(s.entry)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *pakSource) Name() string {
	return s.entry
}

// DecodeAndUpload decodes the image behind src and uploads its pixels
// to a new texture on dev, as premultiplied BGRA.
func DecodeAndUpload(src Source, dev gfx.Device) (gfx.Texture, error) {
	r, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %s", src.Name(), err.Error())
	}
	defer r.Close()

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %s", src.Name(), err.Error())
	}

	pix, err := core.PixelsBGRA(img, 0)
	if err != nil {
		return nil, err
	}
	return dev.CreateTexture(img.Bounds().Size(), pix)
}

// CopyIntoSurface resizes surface to the texture dimensions and
// copies the full texture into it through dev. The draw bracket is
// closed also when the copy fails.
func CopyIntoSurface(dev gfx.Device, surface *compositor.DrawingSurface, tex gfx.Texture) error {
	size := tex.Size()
	if err := surface.Resize(size); err != nil {
		return err
	}

	backing, origin, err := surface.BeginDraw()
	if err != nil {
		return err
	}
	defer surface.EndDraw()
	return dev.Copy(backing, origin, tex, image.Rectangle{Max: size})
}

// LoadIntoSurface runs the whole decode, upload and copy pipeline on
// dev. The intermediate texture is always released.
func LoadIntoSurface(src Source, dev gfx.Device, surface *compositor.DrawingSurface) error {
	tex, err := DecodeAndUpload(src, dev)
	if err != nil {
		return err
	}
	defer tex.Release()
	return CopyIntoSurface(dev, surface, tex)
}
