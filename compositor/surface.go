// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package compositor

import (
	"fmt"
	"image"
	"sync"

	"github.com/devblok/kompo/gfx"
)

// DrawingSurface is a canvas allocated from the graphics device's
// atlas. The surface outlives any rendering device: when the device
// is replaced the surface keeps its size and gets a blank region of
// the rebuilt atlas, content is restored by whoever redraws it.
// Geometry is guarded by the owning graphics device, the draw lock
// serializes BeginDraw/EndDraw brackets.
type DrawingSurface struct {
	g      *GraphicsDevice
	drawMu sync.Mutex

	// guarded by g.mu
	size   image.Point
	origin image.Point
}

// Size returns the surface dimensions in pixels.
func (s *DrawingSurface) Size() image.Point {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.size
}

// Resize gives the surface a fresh atlas region of the requested
// size. Content does not carry over. Resizing to the current size is
// a no-op. The abandoned region is reclaimed the next time the atlas
// is rebuilt.
func (s *DrawingSurface) Resize(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("compositor: invalid surface size %v", size)
	}

	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if size == s.size {
		return nil
	}
	origin, ok := s.g.atlas.allocate(size)
	if !ok {
		return errAtlasExhausted
	}
	s.size = size
	s.origin = origin
	return nil
}

// BeginDraw locks the surface for drawing and hands out the backing
// atlas texture together with the offset assigned to this surface.
// Every BeginDraw must be paired with exactly one EndDraw, also when
// the draw in between fails.
func (s *DrawingSurface) BeginDraw() (gfx.Texture, image.Point, error) {
	s.drawMu.Lock()
	s.g.mu.Lock()
	backing, origin := s.g.backing, s.origin
	s.g.mu.Unlock()
	return backing, origin, nil
}

// EndDraw releases the draw lock taken by BeginDraw.
func (s *DrawingSurface) EndDraw() {
	s.drawMu.Unlock()
}

// Snapshot reads the surface content back as packed BGRA bytes
// through the active rendering device.
func (s *DrawingSurface) Snapshot() ([]byte, error) {
	s.g.mu.Lock()
	dev, backing := s.g.device, s.g.backing
	region := image.Rectangle{Min: s.origin, Max: s.origin.Add(s.size)}
	s.g.mu.Unlock()

	return dev.ReadTexture(backing, region)
}
