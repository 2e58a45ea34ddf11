package vkforge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	vk "github.com/vulkan-go/vulkan"
)

// fakeMemoryProperties builds a vk.PhysicalDeviceMemoryProperties with
// the given per-type property flags, mirroring what
// vkGetPhysicalDeviceMemoryProperties would report for a fake GPU.
func fakeMemoryProperties(flags ...vk.MemoryPropertyFlags) vk.PhysicalDeviceMemoryProperties {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = uint32(len(flags))
	for i, f := range flags {
		props.MemoryTypes[i] = vk.MemoryType{PropertyFlags: f}
	}
	return props
}

func newTestManager(flags ...vk.MemoryPropertyFlags) *MemoryManager {
	return NewMemoryManager(nil, fakeMemoryProperties(flags...), nil)
}

func TestSelectMemoryTypePrefersHigherScore(t *testing.T) {
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	hostCoherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	both := deviceLocal | hostCoherent

	m := newTestManager(deviceLocal, hostCoherent, both)

	idx, ok := m.selectMemoryType(memoryRequest{
		memoryTypeBits: 0b111,
		preferred:      deviceLocal | hostCoherent,
	})
	assert.True(t, ok)
	assert.Equal(t, uint32(2), idx, "the type carrying every preferred bit should win")
}

func TestSelectMemoryTypeExcludesMissingRequired(t *testing.T) {
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)

	m := newTestManager(deviceLocal, hostVisible)

	idx, ok := m.selectMemoryType(memoryRequest{
		memoryTypeBits: 0b11,
		required:       hostVisible,
	})
	assert.True(t, ok)
	assert.Equal(t, uint32(1), idx)
}

func TestSelectMemoryTypeNoneSatisfyRequired(t *testing.T) {
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)

	m := newTestManager(deviceLocal)

	_, ok := m.selectMemoryType(memoryRequest{
		memoryTypeBits: 0b1,
		required:       vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit),
	})
	assert.False(t, ok)
}

func TestSelectMemoryTypeRespectsMemoryTypeBitsMask(t *testing.T) {
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)

	m := newTestManager(deviceLocal, hostVisible)

	// Only bit 0 (deviceLocal) is allowed by the resource's memory type mask.
	idx, ok := m.selectMemoryType(memoryRequest{
		memoryTypeBits: 0b01,
		preferred:      hostVisible,
	})
	assert.True(t, ok)
	assert.Equal(t, uint32(0), idx)
}

func TestSelectMemoryTypePenalizesNotPreferred(t *testing.T) {
	cached := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit)
	coherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)

	m := newTestManager(cached, coherent)

	idx, ok := m.selectMemoryType(memoryRequest{
		memoryTypeBits: 0b11,
		required:       vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit),
		preferred:      vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
		notPreferred:   vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit),
	})
	assert.True(t, ok)
	assert.Equal(t, uint32(1), idx, "cached memory should lose to coherent memory once cached is penalized")
}

func TestDedicatedAllocationThresholdIsNamedAndPositive(t *testing.T) {
	assert.Equal(t, vk.DeviceSize(256*1024*1024), DedicatedAllocationThreshold)
	assert.Greater(t, DedicatedAllocationThreshold, defaultChunkSize)
}
