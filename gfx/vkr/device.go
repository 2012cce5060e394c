// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"
	"image"
	"sync"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/kompo/gfx"
)

func newDevice(physical vk.PhysicalDevice) (*Device, error) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return nil, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queue families on GPU")
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &queueFamilyCount, queueFamilies)

	var (
		graphicsFound bool
		graphicsIndex uint32
	)
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			graphicsIndex = i
			graphicsFound = true
			break
		}
	}
	if !graphicsFound {
		return nil, errors.New("vulkan error: could not find a queue family with graphics support")
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: graphicsIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	dci := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(queueInfos)),
		PQueueCreateInfos:    queueInfos,
	}

	var device vk.Device
	if err := mapResult("vk.CreateDevice", vk.CreateDevice(physical, &dci, nil, &device)); err != nil {
		return nil, err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, graphicsIndex, 0, &queue)

	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: graphicsIndex,
	}
	var pool vk.CommandPool
	if err := mapResult("vk.CreateCommandPool", vk.CreateCommandPool(device, &cpci, nil, &pool)); err != nil {
		vk.DestroyDevice(device, nil)
		return nil, err
	}

	alloc, err := NewMemoryAllocator(device, physical)
	if err != nil {
		vk.DestroyCommandPool(device, pool, nil)
		vk.DestroyDevice(device, nil)
		return nil, err
	}

	return &Device{
		info:     physicalInfo(physical),
		physical: physical,
		device:   device,
		queue:    queue,
		pool:     pool,
		alloc:    alloc,
	}, nil
}

// Device is a Vulkan rendering device with a single graphics queue.
// The ops mutex serializes all queue and command pool work, the state
// mutex guards the loss bookkeeping so that a loss discovered mid
// operation can fire the signal without deadlocking.
type Device struct {
	ops sync.Mutex

	mu        sync.Mutex
	removed   bool
	destroyed bool
	signal    *gfx.LossSignal

	info     gfx.DeviceInfo
	physical vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	pool     vk.CommandPool
	alloc    *MemoryAllocator
}

// Info implements gfx.Device.
func (d *Device) Info() gfx.DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	info := d.info
	info.Removed = d.removed
	return info
}

// Removed implements gfx.Device.
func (d *Device) Removed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// Destroy invalidates the device without firing its loss signal and
// releases the Vulkan handles. Resources created from the device die
// with it.
func (d *Device) Destroy() {
	d.ops.Lock()
	defer d.ops.Unlock()

	d.mu.Lock()
	destroyed := d.destroyed
	d.destroyed = true
	d.removed = true
	d.mu.Unlock()
	if destroyed {
		return
	}

	vk.DestroyCommandPool(d.device, d.pool, nil)
	vk.DestroyDevice(d.device, nil)
}

// CreateTexture implements gfx.Device. The pixels travel through a
// host visible staging buffer into device local memory.
func (d *Device) CreateTexture(size image.Point, pix []byte) (gfx.Texture, error) {
	if err := d.guard("vkr.CreateTexture"); err != nil {
		return nil, err
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("vkr.CreateTexture(): invalid texture size %v", size)
	}
	need := size.X * size.Y * gfx.BytesPerPixel
	if pix == nil {
		pix = make([]byte, need)
	} else if len(pix) != need {
		return nil, fmt.Errorf("vkr.CreateTexture(): expected %d bytes of content, got %d", need, len(pix))
	}

	d.ops.Lock()
	defer d.ops.Unlock()

	img, err := NewImage(d.device, size, vk.ImageUsageTransferSrcBit|vk.ImageUsageTransferDstBit, vk.SharingModeExclusive, d.alloc)
	if err != nil {
		return nil, d.noteLoss(err)
	}
	if err := d.upload(&img, size, pix); err != nil {
		img.Release()
		return nil, d.noteLoss(err)
	}
	return &Texture{dev: d, size: size, image: img}, nil
}

func (d *Device) upload(img *Image, size image.Point, pix []byte) error {
	staging, err := NewBuffer(d.device, uint(len(pix)), vk.BufferUsageTransferSrcBit, vk.SharingModeExclusive, d.alloc)
	if err != nil {
		return err
	}
	defer staging.Release()

	memCopy(staging.Mem().Map(), pix)
	staging.Mem().Unmap()

	if err := d.transitionLayout(img.Get(), vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		return err
	}
	if err := d.copyBufferToImage(staging.Get(), img.Get(), uint32(size.X), uint32(size.Y)); err != nil {
		return err
	}
	return d.transitionLayout(img.Get(), vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutGeneral)
}

// Copy implements gfx.Device.
func (d *Device) Copy(dst gfx.Texture, dp image.Point, src gfx.Texture, sr image.Rectangle) error {
	if err := d.guard("vkr.Copy"); err != nil {
		return err
	}

	d.ops.Lock()
	defer d.ops.Unlock()

	to, err := d.own("vkr.Copy", dst)
	if err != nil {
		return err
	}
	from, err := d.own("vkr.Copy", src)
	if err != nil {
		return err
	}

	if !sr.In(from.bounds()) {
		return fmt.Errorf("vkr.Copy(): source region %v outside texture %v", sr, from.bounds())
	}
	target := image.Rectangle{Min: dp, Max: dp.Add(sr.Size())}
	if !target.In(to.bounds()) {
		return fmt.Errorf("vkr.Copy(): destination region %v outside texture %v", target, to.bounds())
	}

	cmd, err := d.beginSingleTimeCommands()
	if err != nil {
		return d.noteLoss(err)
	}

	region := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		SrcOffset: vk.Offset3D{
			X: int32(sr.Min.X),
			Y: int32(sr.Min.Y),
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		DstOffset: vk.Offset3D{
			X: int32(dp.X),
			Y: int32(dp.Y),
		},
		Extent: vk.Extent3D{
			Width:  uint32(sr.Dx()),
			Height: uint32(sr.Dy()),
			Depth:  1,
		},
	}
	vk.CmdCopyImage(cmd, from.image.Get(), vk.ImageLayoutGeneral, to.image.Get(), vk.ImageLayoutGeneral, 1, []vk.ImageCopy{region})

	return d.noteLoss(d.endSingleTimeCommands(cmd))
}

// ReadTexture implements gfx.Device. The region comes back through a
// host visible readback buffer as packed BGRA bytes.
func (d *Device) ReadTexture(src gfx.Texture, sr image.Rectangle) ([]byte, error) {
	if err := d.guard("vkr.ReadTexture"); err != nil {
		return nil, err
	}

	d.ops.Lock()
	defer d.ops.Unlock()

	from, err := d.own("vkr.ReadTexture", src)
	if err != nil {
		return nil, err
	}
	if !sr.In(from.bounds()) {
		return nil, fmt.Errorf("vkr.ReadTexture(): region %v outside texture %v", sr, from.bounds())
	}

	size := sr.Dx() * sr.Dy() * gfx.BytesPerPixel
	readback, err := NewBuffer(d.device, uint(size), vk.BufferUsageTransferDstBit, vk.SharingModeExclusive, d.alloc)
	if err != nil {
		return nil, d.noteLoss(err)
	}
	defer readback.Release()

	cmd, err := d.beginSingleTimeCommands()
	if err != nil {
		return nil, d.noteLoss(err)
	}

	region := vk.BufferImageCopy{
		ImageOffset: vk.Offset3D{
			X: int32(sr.Min.X),
			Y: int32(sr.Min.Y),
		},
		ImageExtent: vk.Extent3D{
			Width:  uint32(sr.Dx()),
			Height: uint32(sr.Dy()),
			Depth:  1,
		},
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdCopyImageToBuffer(cmd, from.image.Get(), vk.ImageLayoutGeneral, readback.Get(), 1, []vk.BufferImageCopy{region})

	if err := d.endSingleTimeCommands(cmd); err != nil {
		return nil, d.noteLoss(err)
	}

	out := make([]byte, size)
	memRead(out, readback.Mem().Map())
	readback.Mem().Unmap()
	return out, nil
}

// RegisterRemovedSignal implements gfx.Device. Registering against a
// device that is already removed fires the signal before returning,
// so the caller cannot miss a loss that has already happened.
func (d *Device) RegisterRemovedSignal(sig *gfx.LossSignal) (gfx.Registration, error) {
	if err := sig.Attach(d); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.signal = sig
	removed := d.removed
	d.mu.Unlock()

	if removed {
		sig.Fire()
	}
	return &registration{dev: d, sig: sig}, nil
}

// guard fails the operation early when the device is already gone.
func (d *Device) guard(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return errRemoved(op)
	}
	return nil
}

// own checks that tex was created by this device and is still alive.
func (d *Device) own(op string, tex gfx.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok {
		return nil, fmt.Errorf("%s(): foreign texture %T", op, tex)
	}
	if t.dev != d {
		return nil, &gfx.DeviceError{Op: op, Code: gfx.ErrCodeInternal, Msg: "texture belongs to another device"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.released {
		return nil, fmt.Errorf("%s(): texture already released", op)
	}
	return t, nil
}

// noteLoss marks the device removed and fires the loss signal when
// err reports a device loss. The error passes through unchanged.
func (d *Device) noteLoss(err error) error {
	if gfx.IsDeviceLoss(err) {
		d.markRemoved()
	}
	return err
}

func (d *Device) markRemoved() {
	d.mu.Lock()
	if d.removed {
		d.mu.Unlock()
		return
	}
	d.removed = true
	sig := d.signal
	d.mu.Unlock()

	if sig != nil {
		sig.Fire()
	}
}

func (d *Device) beginSingleTimeCommands() (vk.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        d.pool,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := mapResult("vk.AllocateCommandBuffers", vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return nil, err
	}
	commandBuffer := commandBuffers[0]

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	if err := mapResult("vk.BeginCommandBuffer", vk.BeginCommandBuffer(commandBuffer, &cbbi)); err != nil {
		vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{commandBuffer})
		return nil, err
	}

	return commandBuffer, nil
}

func (d *Device) endSingleTimeCommands(commandBuffer vk.CommandBuffer) error {
	defer vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{commandBuffer})

	if err := mapResult("vk.EndCommandBuffer", vk.EndCommandBuffer(commandBuffer)); err != nil {
		return err
	}

	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer},
	}

	if err := mapResult("vk.QueueSubmit", vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{si}, nil)); err != nil {
		return err
	}
	return mapResult("vk.QueueWaitIdle", vk.QueueWaitIdle(d.queue))
}

func (d *Device) transitionLayout(img vk.Image, old vk.ImageLayout, new vk.ImageLayout) error {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           old,
		NewLayout:           new,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	if old == vk.ImageLayoutUndefined && new == vk.ImageLayoutTransferDstOptimal {
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	} else if old == vk.ImageLayoutTransferDstOptimal && new == vk.ImageLayoutGeneral {
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferReadBit | vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	} else {
		return fmt.Errorf("unsupported layout transition")
	}

	cmd, err := d.beginSingleTimeCommands()
	if err != nil {
		return err
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return d.endSingleTimeCommands(cmd)
}

// Texture is a Vulkan texture in device local memory, kept in the
// general layout between operations.
type Texture struct {
	dev      *Device
	size     image.Point
	image    Image
	released bool
}

// Size implements gfx.Texture.
func (t *Texture) Size() image.Point {
	return t.size
}

// Release implements gfx.Texture.
func (t *Texture) Release() {
	t.dev.ops.Lock()
	defer t.dev.ops.Unlock()

	t.dev.mu.Lock()
	released, destroyed := t.released, t.dev.destroyed
	t.released = true
	t.dev.mu.Unlock()
	if released || destroyed {
		return
	}
	t.image.Release()
}

func (t *Texture) bounds() image.Rectangle {
	return image.Rectangle{Max: t.size}
}

type registration struct {
	once sync.Once
	dev  *Device
	sig  *gfx.LossSignal
}

// Release implements gfx.Registration.
func (r *registration) Release() {
	r.once.Do(func() {
		r.dev.mu.Lock()
		if r.dev.signal == r.sig {
			r.dev.signal = nil
		}
		r.dev.mu.Unlock()
		r.sig.Detach(r.dev)
	})
}

func errRemoved(op string) error {
	return &gfx.DeviceError{Op: op, Code: gfx.ErrCodeDeviceRemoved}
}
