package vkforge

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// CoreDevice is the external-collaborator adapter this module's
// subsystems read device/queue/memory-property handles through: physical
// device, selected handle, and per-device queue/pool/descriptor-pool
// maps, without any CLI-bootstrap or windowing concerns.
type CoreDevice struct {
	physical_devices []vk.PhysicalDevice
	selected_device  vk.PhysicalDevice
	gpuProperties    vk.PhysicalDeviceProperties
	memoryProperties vk.PhysicalDeviceMemoryProperties
	capabilities     Capabilities
	handle           vk.Device
	key              string
	name             string
	queues           *CoreQueue
	pools            map[string]vk.CommandPool    //Key: (Unique Device Pool ID) Value: List Command pools (Per thread pool creation)
	descriptor_pools map[string]vk.DescriptorPool //Key: (Unique Descriptor Pool ID) Value: Vulkan Descriptor Pools
}

// NewCoreDevice selects gpu as the active physical device, probes its
// capabilities, and creates a logical device exposing queueFamilyIndex.
// requiredExtensions is validated against what gpu actually reports
// (via BaseDeviceExtensions) before vk.CreateDevice is ever called, so a
// missing mandatory extension surfaces as KindFeatureUnavailable instead
// of an opaque driver error. wantedExtensions are enabled when present
// and silently dropped otherwise.
func NewCoreDevice(gpu vk.PhysicalDevice, queueFamilyIndex uint32, requiredExtensions, wantedExtensions []string) (*CoreDevice, error) {
	d := &CoreDevice{
		physical_devices: []vk.PhysicalDevice{gpu},
		selected_device:  gpu,
		pools:            make(map[string]vk.CommandPool),
		descriptor_pools: make(map[string]vk.DescriptorPool),
	}

	vk.GetPhysicalDeviceProperties(gpu, &d.gpuProperties)
	d.gpuProperties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(gpu, &d.memoryProperties)
	d.memoryProperties.Deref()
	d.capabilities = ProbeCapabilities(gpu)

	ext := NewBaseDeviceExtensions(wantedExtensions, requiredExtensions, gpu)
	if ok, missing := ext.HasRequired(); !ok {
		return nil, newErr(KindFeatureUnavailable, "NewCoreDevice", fmt.Errorf("missing required device extensions: %v", missing))
	}
	deviceExtensions := ext.GetExtensions()

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	var handle vk.Device
	ret := vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: safeStrings(deviceExtensions),
	}, nil, &handle)
	if isError(ret) {
		return nil, newErr(KindUnderlyingApiFailure, "NewCoreDevice", newError(ret))
	}
	d.handle = handle
	d.queues = NewCoreQueue(gpu, "primary")
	if d.queues != nil {
		d.queues.CreateQueues(handle)
	}
	return d, nil
}

func (d *CoreDevice) Instance() vk.Instance               { return vk.NullHandle }
func (d *CoreDevice) PhysicalDevice() vk.PhysicalDevice   { return d.selected_device }
func (d *CoreDevice) Device() vk.Device                   { return d.handle }
func (d *CoreDevice) MemoryProperties() vk.PhysicalDeviceMemoryProperties { return d.memoryProperties }
func (d *CoreDevice) PhysicalDeviceProperties() vk.PhysicalDeviceProperties { return d.gpuProperties }
func (d *CoreDevice) Capabilities() Capabilities          { return d.capabilities }

func (d *CoreDevice) GraphicsQueue() vk.Queue {
	if d.queues == nil {
		return vk.NullHandle
	}
	_, q, _ := d.queues.BindGraphicsQueue(d.handle)
	if q == nil {
		return vk.NullHandle
	}
	return *q
}

func (d *CoreDevice) GraphicsQueueFamilyIndex() uint32 {
	if d.queues == nil {
		return 0
	}
	_, _, idx := d.queues.BindGraphicsQueue(d.handle)
	return uint32(idx)
}

// ComputeQueue returns a compute-capable queue, preferring a dedicated
// async-compute family over the shared graphics+compute one. Returns
// vk.NullHandle if the device exposes no compute-capable family at all.
func (d *CoreDevice) ComputeQueue() vk.Queue {
	if d.queues == nil {
		return vk.NullHandle
	}
	_, q, _ := d.queues.BindComputeQueue(d.handle)
	if q == nil {
		return vk.NullHandle
	}
	return *q
}

// ComputeQueueFamilyIndex is the queue family backing ComputeQueue, used
// to create the command pool a RecorderCompute Command Recorder draws
// its command buffers from.
func (d *CoreDevice) ComputeQueueFamilyIndex() uint32 {
	if d.queues == nil {
		return 0
	}
	_, _, idx := d.queues.BindComputeQueue(d.handle)
	return uint32(idx)
}

// HasComputeQueue reports whether the device exposes any compute-capable
// queue family at all, so callers can decide whether a compute command
// pool is worth creating.
func (d *CoreDevice) HasComputeQueue() bool {
	if d.queues == nil {
		return false
	}
	ok, _, _ := d.queues.BindComputeQueue(d.handle)
	return ok
}

func (d *CoreDevice) Destroy() {
	if d.handle != nil {
		vk.DestroyDevice(d.handle, nil)
		d.handle = nil
	}
}
