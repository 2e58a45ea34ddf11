package vkforge

import (
	"sync"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// MemoryChunk wraps one vk.DeviceMemory allocation and the TLSF
// suballocator carved out of it, plus a refcounted persistent mapping.
// Grounded on buffers.go's MapMemory call shape, generalized to
// map-on-0-to-1/unmap-on-1-to-0 discipline.
type MemoryChunk struct {
	mu         sync.Mutex
	device     vk.Device
	memory     vk.DeviceMemory
	size       vk.DeviceSize
	memoryType uint32
	hostVisible bool
	dedicated  bool

	alloc *tlsf

	mapRefs   int
	mappedPtr unsafe.Pointer
}

// newMemoryChunk allocates size bytes of memoryType device memory and, if
// hostVisible, leaves it ready to be mapped on first use. dedicated marks
// a chunk that backs exactly one resource (the dedicated-allocation
// path) and therefore carries no suballocator.
func newMemoryChunk(device vk.Device, size vk.DeviceSize, memoryType uint32, hostVisible, dedicated bool) (*MemoryChunk, error) {
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
	}, nil, &mem)
	if isError(ret) {
		return nil, newErr(KindOutOfMemory, "newMemoryChunk", newError(ret))
	}

	c := &MemoryChunk{
		device:      device,
		memory:      mem,
		size:        size,
		memoryType:  memoryType,
		hostVisible: hostVisible,
		dedicated:   dedicated,
	}
	if !dedicated {
		c.alloc = newTLSF(uint64(size))
	}
	return c, nil
}

func (c *MemoryChunk) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapRefs > 0 {
		vk.UnmapMemory(c.device, c.memory)
		c.mapRefs = 0
		c.mappedPtr = nil
	}
	vk.FreeMemory(c.device, c.memory, nil)
	c.memory = vk.NullHandle
}

// Sub-allocates size bytes aligned to align out of this chunk's TLSF
// suballocator. Only valid on non-dedicated chunks.
func (c *MemoryChunk) allocate(size, align uint64) (tlsfToken, bool) {
	return c.alloc.allocate(size, align)
}

func (c *MemoryChunk) release(tok tlsfToken) {
	c.alloc.free(tok)
}

func (c *MemoryChunk) largestFree() uint64 {
	if c.alloc == nil {
		return 0
	}
	return c.alloc.largestFree()
}

// acquireMap increments the chunk's map refcount, mapping the whole
// chunk on the 0→1 transition and returning a pointer to offset within
// it. Unmap must be paired via releaseMap.
func (c *MemoryChunk) acquireMap(offset vk.DeviceSize) (unsafe.Pointer, error) {
	if !c.hostVisible {
		return nil, newErr(KindInvalidState, "acquireMap", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapRefs == 0 {
		var ptr unsafe.Pointer
		ret := vk.MapMemory(c.device, c.memory, 0, c.size, 0, &ptr)
		if isError(ret) {
			return nil, newErr(KindUnderlyingApiFailure, "acquireMap", newError(ret))
		}
		c.mappedPtr = ptr
	}
	c.mapRefs++
	return unsafe.Add(c.mappedPtr, uintptr(offset)), nil
}

// releaseMap decrements the chunk's map refcount, unmapping the chunk
// entirely on the 1→0 transition.
func (c *MemoryChunk) releaseMap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapRefs == 0 {
		return
	}
	c.mapRefs--
	if c.mapRefs == 0 {
		vk.UnmapMemory(c.device, c.memory)
		c.mappedPtr = nil
	}
}
