// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package swr

import (
	"sync"

	"github.com/devblok/kompo/gfx"
)

// Backend names the software device implementation.
const Backend = "software"

// NewProvider creates a software device provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Provider creates software devices. Failure scripting lets tests
// reproduce driver behavior: FailWith makes upcoming creations fail,
// RemoveNext makes upcoming devices come up already removed, as a GPU
// that dies between creation and first use would.
type Provider struct {
	mu         sync.Mutex
	serial     int
	last       *Device
	pending    []error
	removeNext int
}

// Name implements gfx.Provider.
func (p *Provider) Name() string { return Backend }

// Devices implements gfx.Provider.
func (p *Provider) Devices() ([]gfx.DeviceInfo, error) {
	return []gfx.DeviceInfo{{
		ID:      0,
		Name:    "software rasterizer",
		Backend: Backend,
	}}, nil
}

// CreateDevice implements gfx.Provider.
func (p *Provider) CreateDevice() (gfx.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) > 0 {
		err := p.pending[0]
		p.pending = p.pending[1:]
		return nil, err
	}

	p.serial++
	dev := &Device{
		info: gfx.DeviceInfo{
			ID:      p.serial,
			Name:    "software rasterizer",
			Backend: Backend,
		},
	}
	if p.removeNext > 0 {
		p.removeNext--
		dev.removed = true
	}
	p.last = dev
	return dev, nil
}

// FailWith queues err as the result of the next times CreateDevice
// calls.
func (p *Provider) FailWith(err error, times int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < times; i++ {
		p.pending = append(p.pending, err)
	}
}

// RemoveNext marks the next n created devices as removed on arrival.
func (p *Provider) RemoveNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeNext += n
}

// Created returns how many devices the provider has built.
func (p *Provider) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.serial
}

// Last returns the most recently created device.
func (p *Provider) Last() *Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
