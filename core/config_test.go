package core_test

import (
	"testing"

	"github.com/devblok/kompo/core"
	"github.com/gobuffalo/envy"
)

func TestConfigurationFromEnv(t *testing.T) {
	envy.Temp(func() {
		envy.Set("KOMPO_IMAGE", "other.png")
		envy.Set("KOMPO_WIDTH", "1024")
		envy.Set("KOMPO_HEIGHT", "not-a-number")

		cfg := core.Configuration{
			Window: core.WindowConfiguration{
				Width:  800,
				Height: 600,
			},
			Scene: core.SceneConfiguration{
				ImageFile: "sample.png",
				Backend:   "software",
			},
		}
		cfg.FromEnv()

		if cfg.Scene.ImageFile != "other.png" {
			t.Errorf("image override not applied, got %q", cfg.Scene.ImageFile)
		}
		if cfg.Scene.Backend != "software" {
			t.Errorf("unset key must keep its default, got %q", cfg.Scene.Backend)
		}
		if cfg.Window.Width != 1024 {
			t.Errorf("width override not applied, got %d", cfg.Window.Width)
		}
		if cfg.Window.Height != 600 {
			t.Errorf("unparseable height must keep its default, got %d", cfg.Window.Height)
		}
	})
}
