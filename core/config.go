package core

import (
	"strconv"

	"github.com/gobuffalo/envy"
)

// Configuration defines a global application configuration setting
type Configuration struct {
	Time   TimeConfiguration
	Window WindowConfiguration
	Scene  SceneConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the pause between event queue polls,
	// in milliseconds
	EventPollDelay int
}

// WindowConfiguration is used to configure the presentation window
type WindowConfiguration struct {
	Title  string
	Width  uint32
	Height uint32
}

// SceneConfiguration describes what the application composes
type SceneConfiguration struct {
	// ImageFile is the picture loaded into the composition surface,
	// resolved relative to the working directory
	ImageFile string

	// Backend selects the rendering device implementation
	Backend string

	// AtlasWidth and AtlasHeight size the surface atlas texture
	AtlasWidth  int
	AtlasHeight int
}

// FromEnv overrides configuration fields from the process environment.
// Recognized keys: KOMPO_IMAGE, KOMPO_BACKEND, KOMPO_WIDTH, KOMPO_HEIGHT.
func (c *Configuration) FromEnv() {
	c.Scene.ImageFile = envy.Get("KOMPO_IMAGE", c.Scene.ImageFile)
	c.Scene.Backend = envy.Get("KOMPO_BACKEND", c.Scene.Backend)
	c.Window.Width = uintFromEnv("KOMPO_WIDTH", c.Window.Width)
	c.Window.Height = uintFromEnv("KOMPO_HEIGHT", c.Window.Height)
}

func uintFromEnv(key string, fallback uint32) uint32 {
	value, err := strconv.ParseUint(envy.Get(key, strconv.FormatUint(uint64(fallback), 10)), 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(value)
}
