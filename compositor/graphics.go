// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package compositor assembles the picture the application presents:
// a graphics device that survives rendering device replacement,
// atlas-backed drawing surfaces, and a small sprite visual tree that
// composes into presentable frames.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/devblok/kompo/gfx"
)

// Configuration sizes the surface atlas.
type Configuration struct {
	AtlasWidth  int
	AtlasHeight int
	Padding     int
}

// EventToken identifies one device-replacement subscription.
type EventToken int64

const (
	defaultAtlasWidth  = 2048
	defaultAtlasHeight = 2048
)

// NewGraphicsDevice creates a graphics device on top of dev. The
// graphics device owns the atlas texture that backs every drawing
// surface created from it.
func NewGraphicsDevice(dev gfx.Device, cfg Configuration) (*GraphicsDevice, error) {
	if cfg.AtlasWidth <= 0 {
		cfg.AtlasWidth = defaultAtlasWidth
	}
	if cfg.AtlasHeight <= 0 {
		cfg.AtlasHeight = defaultAtlasHeight
	}

	backing, err := dev.CreateTexture(image.Pt(cfg.AtlasWidth, cfg.AtlasHeight), nil)
	if err != nil {
		return nil, err
	}

	return &GraphicsDevice{
		cfg:      cfg,
		device:   dev,
		backing:  backing,
		atlas:    newAtlas(cfg.AtlasWidth, cfg.AtlasHeight, cfg.Padding),
		replaced: make(map[EventToken]func(*GraphicsDevice)),
	}, nil
}

// GraphicsDevice is the shared composition context. It holds the
// active rendering device and replaces it wholesale on device loss,
// while the drawing surfaces created from it live on.
type GraphicsDevice struct {
	mu       sync.Mutex
	cfg      Configuration
	device   gfx.Device
	backing  gfx.Texture
	atlas    *atlas
	surfaces []*DrawingSurface

	nextToken EventToken
	replaced  map[EventToken]func(*GraphicsDevice)
}

// RenderingDevice returns the active rendering device.
func (g *GraphicsDevice) RenderingDevice() gfx.Device {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.device
}

// SetRenderingDevice installs dev as the active rendering device. The
// atlas texture is rebuilt on dev and every surface gets a fresh,
// blank region of it, the previous device is destroyed, and the
// replacement subscribers run. Content is not carried over, the
// subscribers are expected to redraw.
//
// When building the new atlas fails the graphics device is left
// untouched on the previous device, so the caller may retry with
// another device.
func (g *GraphicsDevice) SetRenderingDevice(dev gfx.Device) error {
	backing, err := dev.CreateTexture(image.Pt(g.cfg.AtlasWidth, g.cfg.AtlasHeight), nil)
	if err != nil {
		return err
	}

	g.mu.Lock()
	fresh := newAtlas(g.cfg.AtlasWidth, g.cfg.AtlasHeight, g.cfg.Padding)
	origins := make([]image.Point, len(g.surfaces))
	for i, s := range g.surfaces {
		origin, ok := fresh.allocate(s.size)
		if !ok {
			g.mu.Unlock()
			backing.Release()
			return fmt.Errorf("compositor: atlas cannot hold surface %d of size %v", i, s.size)
		}
		origins[i] = origin
	}

	old := g.device
	g.device = dev
	g.backing = backing
	g.atlas = fresh
	for i, s := range g.surfaces {
		s.origin = origins[i]
	}
	subscribers := make([]func(*GraphicsDevice), 0, len(g.replaced))
	for _, fn := range g.replaced {
		subscribers = append(subscribers, fn)
	}
	g.mu.Unlock()

	if old != nil {
		old.Destroy()
	}
	for _, fn := range subscribers {
		fn(g)
	}
	return nil
}

// RenderingDeviceReplaced subscribes fn to device replacement. fn is
// invoked synchronously after every successful SetRenderingDevice,
// long work belongs on a goroutine inside fn.
func (g *GraphicsDevice) RenderingDeviceReplaced(fn func(*GraphicsDevice)) EventToken {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextToken++
	token := g.nextToken
	g.replaced[token] = fn
	return token
}

// RemoveReplaced drops the subscription identified by token.
func (g *GraphicsDevice) RemoveReplaced(token EventToken) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.replaced, token)
}

// CreateDrawingSurface allocates a drawing surface of the given size
// from the atlas.
func (g *GraphicsDevice) CreateDrawingSurface(size image.Point) (*DrawingSurface, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("compositor: invalid surface size %v", size)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	origin, ok := g.atlas.allocate(size)
	if !ok {
		return nil, errAtlasExhausted
	}
	s := &DrawingSurface{
		g:      g,
		size:   size,
		origin: origin,
	}
	g.surfaces = append(g.surfaces, s)
	return s, nil
}

// Utilization reports the used fraction of the atlas.
func (g *GraphicsDevice) Utilization() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.atlas.utilization()
}

// Destroy destroys the active rendering device.
func (g *GraphicsDevice) Destroy() {
	g.mu.Lock()
	dev := g.device
	g.mu.Unlock()
	if dev != nil {
		dev.Destroy()
	}
}

var errAtlasExhausted = errors.New("compositor: atlas exhausted")
