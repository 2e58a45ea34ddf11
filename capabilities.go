package vkforge

import (
	"log/slog"

	vk "github.com/vulkan-go/vulkan"
)

// Platform is the external collaborator this module reaches instance,
// device, and queue handles through. Surface creation, swapchain
// management, and window-system glue live on the other side of this
// interface; the three in-scope subsystems (memory, image layout,
// command recording) never construct a vk.Instance or vk.Surface
// themselves.
type Platform interface {
	Instance() vk.Instance
	PhysicalDevice() vk.PhysicalDevice
	Device() vk.Device
	GraphicsQueue() vk.Queue
	GraphicsQueueFamilyIndex() uint32
	MemoryProperties() vk.PhysicalDeviceMemoryProperties
	PhysicalDeviceProperties() vk.PhysicalDeviceProperties
}

// DebugLabeler is the optional VK_EXT_debug_utils collaborator. A nil
// DebugLabeler is not callable; DefaultDebugLabeler is the no-op
// implementation for callers without a real one.
type DebugLabeler interface {
	LabelBuffer(buf vk.Buffer, name string)
	LabelImage(img vk.Image, name string)
	BeginRegion(cmd vk.CommandBuffer, name string)
	EndRegion(cmd vk.CommandBuffer)
}

// noopDebugLabeler is the default DebugLabeler when the platform doesn't
// wire in VK_EXT_debug_utils.
type noopDebugLabeler struct{}

func (noopDebugLabeler) LabelBuffer(vk.Buffer, string)          {}
func (noopDebugLabeler) LabelImage(vk.Image, string)            {}
func (noopDebugLabeler) BeginRegion(vk.CommandBuffer, string)   {}
func (noopDebugLabeler) EndRegion(vk.CommandBuffer)             {}

// DefaultDebugLabeler is shared by callers that don't have a real one.
var DefaultDebugLabeler DebugLabeler = noopDebugLabeler{}

// CapabilityProbe exposes the bound device's Capabilities. CoreDevice
// implements it; the Device Memory Manager and Command Recorder do not
// consult it.
type CapabilityProbe interface {
	Capabilities() Capabilities
}

// Capabilities mirrors a subset of vkGetPhysicalDeviceFeatures /
// vkGetPhysicalDeviceProperties. No operation in this package checks
// these fields; requireCapability is the helper that turns a false bit
// into FeatureUnavailable.
type Capabilities struct {
	GeometryShader           bool
	TessellationShaders      bool
	MultipleViewports        bool
	SamplerAnisotropy        bool
	DepthClipEnable          bool
	DrawIndirectBaseInstance bool
	FillModeWireframe        bool
	IndependentBlend         bool
	ShaderFloat64            bool
	ComputeShader            bool

	SubgroupSizeMin uint32
	SubgroupSizeMax uint32

	BufferImageGranularity       vk.DeviceSize
	MaxMemoryAllocationSize      vk.DeviceSize
	NonCoherentAtomSize          vk.DeviceSize
	MinUniformBufferOffsetAlign  vk.DeviceSize
	MinStorageBufferOffsetAlign  vk.DeviceSize
	MaxPerStageDescriptorSamplers uint32
}

// ProbeCapabilities queries the physical device's features and
// properties into a single read-only struct rather than scattering the
// fields across the device-adapter type. ComputeShader, the subgroup
// size range and MaxMemoryAllocationSize are fixed values, not queried.
func ProbeCapabilities(gpu vk.PhysicalDevice) Capabilities {
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(gpu, &features)
	features.Deref()

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	props.Limits.Deref()

	return Capabilities{
		GeometryShader:                features.GeometryShader != 0,
		TessellationShaders:           features.TessellationShader != 0,
		MultipleViewports:             features.MultiViewport != 0,
		SamplerAnisotropy:             features.SamplerAnisotropy != 0,
		DepthClipEnable:               features.DepthClamp != 0,
		DrawIndirectBaseInstance:      features.DrawIndirectFirstInstance != 0,
		FillModeWireframe:             features.FillModeNonSolid != 0,
		IndependentBlend:              features.IndependentBlend != 0,
		ShaderFloat64:                 features.ShaderFloat64 != 0,
		ComputeShader:                 true,
		SubgroupSizeMin:               1,
		SubgroupSizeMax:               64,
		BufferImageGranularity:        props.Limits.BufferImageGranularity,
		MaxMemoryAllocationSize:       DedicatedAllocationThreshold * 4,
		NonCoherentAtomSize:           props.Limits.NonCoherentAtomSize,
		MinUniformBufferOffsetAlign:   props.Limits.MinUniformBufferOffsetAlignment,
		MinStorageBufferOffsetAlign:   props.Limits.MinStorageBufferOffsetAlignment,
		MaxPerStageDescriptorSamplers: props.Limits.MaxPerStageDescriptorSamplers,
	}
}

// requireCapability raises FeatureUnavailable when ok is false, logging the
// feature name so a missing capability is diagnosable from a log line
// rather than a bare error value.
func requireCapability(log *slog.Logger, op, feature string, ok bool) error {
	if ok {
		return nil
	}
	if log != nil {
		log.Warn("feature unavailable", "op", op, "feature", feature)
	}
	return newErr(KindFeatureUnavailable, op, nil)
}

// safeString returns a NUL-terminated copy of s, matching the calling
// convention vk.* string fields expect.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

// safeStrings NUL-terminates every element, as required by
// PpEnabledExtensionNames/PpEnabledLayerNames-style Vulkan string arrays.
func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// sliceUint32 reinterprets a SPIR-V byte blob as the uint32 words
// vk.ShaderModuleCreateInfo.PCode expects.
func sliceUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	return out
}

// checkExisting intersects available against required/wanted extension
// or layer name lists, returning the usable subset and a missing count.
// Grounded on platform.go's inline missing-extension bookkeeping.
func checkExisting(available, wanted []string) (listToEnable []string, missing int) {
	for _, w := range wanted {
		found := false
		for _, a := range available {
			if a == w || safeString(a) == safeString(w) {
				found = true
				break
			}
		}
		if found {
			listToEnable = append(listToEnable, w)
		} else {
			missing++
		}
	}
	return listToEnable, missing
}
