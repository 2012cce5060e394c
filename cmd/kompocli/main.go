// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"fmt"

	"github.com/devblok/kompo/gfx"
	"github.com/devblok/kompo/gfx/swr"
	"github.com/devblok/kompo/gfx/vkr"
	"github.com/gobuffalo/envy"
)

func main() {
	var provider gfx.Provider
	if envy.Get("KOMPO_BACKEND", swr.Backend) == vkr.Backend {
		vulkan, err := vkr.NewProvider()
		if err != nil {
			panic(err)
		}
		defer vulkan.Destroy()
		provider = vulkan
	} else {
		provider = swr.NewProvider()
	}

	devices, err := provider.Devices()
	if err != nil {
		panic(err)
	}

	if bytes, err := json.Marshal(devices); err == nil {
		fmt.Printf("%s", bytes)
	} else {
		panic(err)
	}
}
