// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the rendering device on Vulkan. Textures
// live in device local memory, uploads and readbacks go through host
// visible staging buffers. Presentation is not handled here, frames
// leave the package as plain bytes.
package vkr

import (
	"errors"
	"fmt"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/kompo/gfx"
)

// Backend names the Vulkan device implementation.
const Backend = "vulkan"

// defaultApplicationInfo describes the application to the driver.
var defaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   safeString("Kompo"),
	PEngineName:        safeString("Kompo"),
}

// NewProvider initialises the Vulkan loader, creates an instance and
// enumerates the physical devices.
func NewProvider() (*Provider, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.New("vk.InstanceProcAddr(): " + err.Error())
	}
	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: defaultApplicationInfo,
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}
	if len(physicalDevices) == 0 {
		vk.DestroyInstance(instance, nil)
		return nil, errors.New("no vulkan capable devices found")
	}

	return &Provider{
		instance:         instance,
		availableDevices: physicalDevices,
	}, nil
}

// Provider creates Vulkan devices. All devices it creates share one
// instance.
type Provider struct {
	instance         vk.Instance
	availableDevices []vk.PhysicalDevice
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	return availableDevices, nil
}

// Name implements gfx.Provider.
func (p *Provider) Name() string { return Backend }

// Devices implements gfx.Provider.
func (p *Provider) Devices() ([]gfx.DeviceInfo, error) {
	infos := make([]gfx.DeviceInfo, len(p.availableDevices))
	for i, physical := range p.availableDevices {
		infos[i] = physicalInfo(physical)
	}
	return infos, nil
}

func physicalInfo(physical vk.PhysicalDevice) gfx.DeviceInfo {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &properties)
	properties.Deref()

	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &memoryProperties)
	memoryProperties.Deref()

	var memory int64
	for i := uint32(0); i < memoryProperties.MemoryHeapCount; i++ {
		memoryProperties.MemoryHeaps[i].Deref()
		memory += int64(memoryProperties.MemoryHeaps[i].Size)
	}

	return gfx.DeviceInfo{
		ID:       int(properties.DeviceID),
		VendorID: int(properties.VendorID),
		Name:     vk.ToString(properties.DeviceName[:]),
		Backend:  Backend,
		Memory:   memory,
	}
}

// CreateDevice implements gfx.Provider. It builds a logical device
// with one graphics queue on the first suitable physical device.
func (p *Provider) CreateDevice() (gfx.Device, error) {
	var lastErr error
	for _, physical := range p.availableDevices {
		dev, err := newDevice(physical)
		if err == nil {
			return dev, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Destroy releases the instance. Devices created by the provider
// must be destroyed first.
func (p *Provider) Destroy() {
	p.availableDevices = nil
	vk.DestroyInstance(p.instance, nil)
}

// mapResult turns a Vulkan result into an error. Device loss and the
// out of memory conditions map to typed device errors, everything
// else keeps the binding's message.
func mapResult(op string, result vk.Result) error {
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorDeviceLost:
		return &gfx.DeviceError{Op: op, Code: gfx.ErrCodeDeviceRemoved, Msg: "device lost"}
	case vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfHostMemory:
		return &gfx.DeviceError{Op: op, Code: gfx.ErrCodeOutOfMemory, Msg: "out of memory"}
	}
	return errors.New(op + "(): " + vk.Error(result).Error())
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}
