// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"image"
	"image/color"
	"io/ioutil"
	"os"
	"runtime"

	"github.com/devblok/kompo/compositor"
	"github.com/devblok/kompo/core"
	"github.com/devblok/kompo/gfx"
	"github.com/devblok/kompo/gfx/swr"
	"github.com/devblok/kompo/gfx/vkr"
	"github.com/devblok/kompo/loader"
	"github.com/devblok/kompo/watchdog"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/packr"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

// Essential globals
var (
	graphics   *compositor.GraphicsDevice
	supervisor *watchdog.Supervisor
	content    *compositor.DrawingSurface
	scene      *compositor.SpriteVisual
	sdlWindow  *sdl.Window

	assets = packr.NewBox("./assets")
)

var configuration = core.Configuration{
	Time: core.TimeConfiguration{
		FramesPerSecond: 60,
		EventPollDelay:  50,
	},
	Window: core.WindowConfiguration{
		Title:  "Kompo",
		Width:  800,
		Height: 600,
	},
	Scene: core.SceneConfiguration{
		ImageFile: "sample.png",
		Backend:   swr.Backend,
	},
}

func newWindow() *sdl.Window {
	window, err := sdl.CreateWindow(configuration.Window.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(configuration.Window.Width),
		int32(configuration.Window.Height),
		sdl.WINDOW_SHOWN)
	if err != nil {
		panic(err)
	}
	return window
}

func newProvider() gfx.Provider {
	if configuration.Scene.Backend == vkr.Backend {
		provider, err := vkr.NewProvider()
		if err == nil {
			return provider
		}
		log.WithError(err).Warn("vulkan unavailable, falling back to software rendering")
	}
	return swr.NewProvider()
}

// ensureImageFile unpacks the bundled sample when the configured image
// does not exist yet, so the demo runs out of the box.
func ensureImageFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	sample, err := assets.MustBytes("sample.png")
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, sample, 0644); err != nil {
		return err
	}
	log.WithField("image", path).Info("bundled sample unpacked")
	return nil
}

func buildScene(surface *compositor.DrawingSurface) *compositor.SpriteVisual {
	root := compositor.NewSpriteVisual()
	root.RelativeSizeAdjustment = mgl32.Vec2{1, 1}
	root.Brush = compositor.NewColorBrush(color.White)

	sprite := compositor.NewSpriteVisual()
	sprite.AnchorPoint = mgl32.Vec2{0.5, 0.5}
	sprite.RelativeOffsetAdjustment = mgl32.Vec3{0.5, 0.5, 0}
	sprite.RelativeSizeAdjustment = mgl32.Vec2{1, 1}
	sprite.Brush = compositor.NewSurfaceBrush(surface)
	root.AddChild(sprite)
	return root
}

func redraw(dev gfx.Device) {
	if err := loader.LoadIntoSurface(loader.FileSource(configuration.Scene.ImageFile), dev, content); err != nil {
		log.WithError(err).Error("image load failed")
	}
}

// forceLoss drops the current rendering device on demand. Only the
// software backend knows how to misplace its own device.
func forceLoss() {
	type simulator interface {
		SimulateLoss()
	}
	if dev, ok := graphics.RenderingDevice().(simulator); ok {
		log.Warn("simulating device loss")
		dev.SimulateLoss()
	}
}

func present(renderer *sdl.Renderer, texture *sdl.Texture) {
	frame, err := compositor.Compose(scene, image.Pt(int(configuration.Window.Width), int(configuration.Window.Height)))
	if err != nil {
		log.WithError(err).Error("compose failed")
		return
	}
	// ARGB8888 reads as BGRA bytes on little endian machines, the
	// order the compositor produces.
	if err := texture.Update(nil, frame.Pix, frame.Stride); err != nil {
		log.WithError(err).Error("frame upload failed")
		return
	}
	if err := renderer.Copy(texture, nil, nil); err != nil {
		log.WithError(err).Error("frame copy failed")
		return
	}
	renderer.Present()
}

func main() {
	if err := godotenv.Load(); err == nil {
		log.Info("environment overrides loaded from .env")
	}
	configuration.FromEnv()

	if err := ensureImageFile(configuration.Scene.ImageFile); err != nil {
		log.WithError(err).Fatal("no image to display")
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	provider := newProvider()
	log.WithField("backend", provider.Name()).Info("rendering backend selected")

	device, err := provider.CreateDevice()
	if err != nil {
		log.WithError(err).Fatal("no usable rendering device")
	}

	graphics, err = compositor.NewGraphicsDevice(device, compositor.Configuration{
		AtlasWidth:  configuration.Scene.AtlasWidth,
		AtlasHeight: configuration.Scene.AtlasHeight,
	})
	if err != nil {
		log.WithError(err).Fatal("graphics device setup failed")
	}

	content, err = graphics.CreateDrawingSurface(image.Pt(1, 1))
	if err != nil {
		log.WithError(err).Fatal("drawing surface setup failed")
	}
	scene = buildScene(content)

	graphics.RenderingDeviceReplaced(func(g *compositor.GraphicsDevice) {
		go redraw(g.RenderingDevice())
	})

	supervisor = watchdog.New(provider, graphics)
	if err := supervisor.Arm(device); err != nil {
		log.WithError(err).Fatal("loss watchdog failed to arm")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchdogErrC := make(chan error, 1)
	go func() {
		if err := supervisor.Run(ctx); err != nil && err != context.Canceled {
			watchdogErrC <- err
			cancel()
		}
	}()

	go redraw(device)

	sdlWindow = newWindow()
	defer sdlWindow.Destroy()

	renderer, err := sdl.CreateRenderer(sdlWindow, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		panic(err)
	}
	defer renderer.Destroy()

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING,
		int32(configuration.Window.Width), int32(configuration.Window.Height))
	if err != nil {
		panic(err)
	}
	defer texture.Destroy()

	timeService := core.NewTime(configuration.Time)
	defer timeService.Stop()

EventLoop:
	for {
		select {
		case <-ctx.Done():
			log.Info("event loop exited")
			break EventLoop
		case <-timeService.FpsTicker().C:
			present(renderer, texture)
		case <-timeService.EventTicker().C:
			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						cancel()
						continue EventLoop
					}
					if et.Keysym.Sym == sdl.K_l && et.Type == sdl.KEYDOWN {
						forceLoss()
					}
				case *sdl.QuitEvent:
					cancel()
					continue EventLoop
				}
			}
		}
	}

	select {
	case err := <-watchdogErrC:
		log.WithError(err).Fatal("device recovery failed")
	default:
	}
}
