// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/devblok/kompo/gfx"
)

func TestIsDeviceLoss(t *testing.T) {
	cases := []struct {
		err  error
		loss bool
	}{
		{&gfx.DeviceError{Op: "swr.Copy", Code: gfx.ErrCodeDeviceRemoved}, true},
		{&gfx.DeviceError{Op: "vkr.QueueSubmit", Code: gfx.ErrCodeDeviceReset}, true},
		{&gfx.DeviceError{Op: "swr.CreateTexture", Code: gfx.ErrCodeOutOfMemory}, false},
		{&gfx.DeviceError{Op: "swr.CreateTexture", Code: gfx.ErrCodeInternal}, false},
		{errors.New("file not found"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := gfx.IsDeviceLoss(c.err); got != c.loss {
			t.Errorf("IsDeviceLoss(%v) = %v, expected %v", c.err, got, c.loss)
		}
	}
}

func TestDeviceErrorMessage(t *testing.T) {
	err := &gfx.DeviceError{Op: "swr.Copy", Code: gfx.ErrCodeDeviceRemoved}
	if !strings.Contains(err.Error(), "swr.Copy") || !strings.Contains(err.Error(), "device removed") {
		t.Errorf("unhelpful device error: %q", err.Error())
	}

	err = &gfx.DeviceError{Op: "swr.Copy", Code: gfx.ErrCodeInternal, Msg: "texture belongs to another device"}
	if !strings.Contains(err.Error(), "texture belongs to another device") {
		t.Errorf("device error dropped its message: %q", err.Error())
	}
}
