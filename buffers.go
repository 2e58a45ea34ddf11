package vkforge

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// DeviceBuffer is a vk.Buffer whose memory comes from a MemoryManager
// allocation. Usage and descriptor-layout concerns belong to the
// caller; this type only owns the buffer/memory pair and its
// ref-counted identity.
type DeviceBuffer struct {
	buffer     vk.Buffer
	allocation Allocation
	id         ResourceID
	size       vk.DeviceSize
	device     vk.Device
}

// NewDeviceBuffer creates a vk.Buffer of size bytes with usage flags,
// allocating and binding its memory through mgr. required/preferred are
// the memory-property flags the caller wants scored (e.g. pass
// HostVisible|HostCoherent for a buffer the CPU writes directly, or
// leave both zero and let DeviceLocal win by default preference for a
// GPU-only vertex/index buffer).
func NewDeviceBuffer(device vk.Device, mgr *MemoryManager, size vk.DeviceSize, usage vk.BufferUsageFlagBits, required, preferred vk.MemoryPropertyFlags) (*DeviceBuffer, error) {
	var buf vk.Buffer
	ret := vk.CreateBuffer(device, &vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size:  size,
		Usage: vk.BufferUsageFlags(usage),
	}, nil, &buf)
	if isError(ret) {
		return nil, newErr(KindUnderlyingApiFailure, "NewDeviceBuffer", newError(ret))
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buf, &memReqs)
	memReqs.Deref()

	if required == 0 && preferred == 0 {
		preferred = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
	alloc, err := mgr.Allocate(memoryRequest{
		size:           memReqs.Size,
		align:          memReqs.Alignment,
		memoryTypeBits: memReqs.MemoryTypeBits,
		required:       required,
		preferred:      preferred,
		linear:         true,
	})
	if err != nil {
		vk.DestroyBuffer(device, buf, nil)
		return nil, err
	}

	if ret := vk.BindBufferMemory(device, buf, alloc.Memory(), alloc.Offset()); isError(ret) {
		mgr.Free(alloc)
		vk.DestroyBuffer(device, buf, nil)
		return nil, newErr(KindUnderlyingApiFailure, "NewDeviceBuffer", newError(ret))
	}

	return &DeviceBuffer{
		buffer: buf,
		allocation: alloc,
		id:         ResourceID(uint64(buf)),
		size:       size,
		device:     device,
	}, nil
}

func (b *DeviceBuffer) Handle() vk.Buffer   { return b.buffer }
func (b *DeviceBuffer) ID() ResourceID      { return b.id }
func (b *DeviceBuffer) Size() vk.DeviceSize { return b.size }

// Write maps the buffer's memory (if not already mapped) and copies
// data at offset, for host-visible buffers only.
func (b *DeviceBuffer) Write(offset vk.DeviceSize, data []byte) error {
	ptr, err := b.allocation.Map()
	if err != nil {
		return err
	}
	defer b.allocation.Unmap()
	dst := unsafe.Slice((*byte)(unsafe.Add(ptr, uintptr(offset))), len(data))
	copy(dst, data)
	return nil
}

func (b *DeviceBuffer) Destroy(mgr *MemoryManager) {
	vk.DestroyBuffer(b.device, b.buffer, nil)
	mgr.Free(b.allocation)
}
