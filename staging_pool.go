package vkforge

import (
	"sync"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// stagingBuffer is one recycled host-visible buffer, always persistently
// mapped for the lifetime of the pool.
type stagingBuffer struct {
	buffer vk.Buffer
	size   vk.DeviceSize
	ptr    unsafe.Pointer
	alloc  Allocation
	inUse  bool
}

// StagingPool hands out size-bucketed, persistently-mapped staging
// buffers for host→device and device→host copies, recycling them
// instead of creating/destroying a buffer per transfer. Grounded on
// gviegas-neo3's engine/staging.go acquire/release transient-buffer-pool
// shape, and on this package's own buffer-creation/map call idiom.
type StagingPool struct {
	mu      sync.Mutex
	device  vk.Device
	mgr     *MemoryManager
	buckets map[vk.DeviceSize][]*stagingBuffer
}

func NewStagingPool(device vk.Device, mgr *MemoryManager) *StagingPool {
	return &StagingPool{
		device:  device,
		mgr:     mgr,
		buckets: make(map[vk.DeviceSize][]*stagingBuffer),
	}
}

// bucketSize rounds size up to the next power-of-two bucket so buffers
// of similar size are recycled against each other instead of every
// distinct size needing its own buffer.
func bucketSize(size vk.DeviceSize) vk.DeviceSize {
	if size <= 4096 {
		return 4096
	}
	b := vk.DeviceSize(4096)
	for b < size {
		b <<= 1
	}
	return b
}

// StagingHandle is what callers of Acquire hold: a mapped pointer to
// write/read bytes through, and the buffer/offset a copy command binds.
type StagingHandle struct {
	pool   *StagingPool
	bucket vk.DeviceSize
	buf    *stagingBuffer
}

func (h StagingHandle) Buffer() vk.Buffer    { return h.buf.buffer }
func (h StagingHandle) Ptr() unsafe.Pointer   { return h.buf.ptr }
func (h StagingHandle) Size() vk.DeviceSize  { return h.buf.size }

// Acquire returns a staging buffer of at least size bytes, reusing a
// free one from the matching bucket when available.
func (p *StagingPool) Acquire(size vk.DeviceSize) (StagingHandle, error) {
	bucket := bucketSize(size)

	p.mu.Lock()
	for _, sb := range p.buckets[bucket] {
		if !sb.inUse {
			sb.inUse = true
			p.mu.Unlock()
			return StagingHandle{pool: p, bucket: bucket, buf: sb}, nil
		}
	}
	p.mu.Unlock()

	var buf vk.Buffer
	ret := vk.CreateBuffer(p.device, &vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size:  bucket,
		Usage: vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
	}, nil, &buf)
	if isError(ret) {
		return StagingHandle{}, newErr(KindUnderlyingApiFailure, "StagingPool.Acquire", newError(ret))
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(p.device, buf, &memReqs)
	memReqs.Deref()

	alloc, err := p.mgr.Allocate(memoryRequest{
		size:           memReqs.Size,
		align:          memReqs.Alignment,
		memoryTypeBits: memReqs.MemoryTypeBits,
		required:       vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
		linear:         true,
	})
	if err != nil {
		vk.DestroyBuffer(p.device, buf, nil)
		return StagingHandle{}, err
	}
	if ret := vk.BindBufferMemory(p.device, buf, alloc.Memory(), alloc.Offset()); isError(ret) {
		p.mgr.Free(alloc)
		vk.DestroyBuffer(p.device, buf, nil)
		return StagingHandle{}, newErr(KindUnderlyingApiFailure, "StagingPool.Acquire", newError(ret))
	}

	ptr, err := alloc.Map()
	if err != nil {
		p.mgr.Free(alloc)
		vk.DestroyBuffer(p.device, buf, nil)
		return StagingHandle{}, err
	}

	sb := &stagingBuffer{buffer: buf, size: bucket, ptr: ptr, alloc: alloc, inUse: true}
	p.mu.Lock()
	p.buckets[bucket] = append(p.buckets[bucket], sb)
	p.mu.Unlock()

	return StagingHandle{pool: p, bucket: bucket, buf: sb}, nil
}

// Release returns a staging buffer to its bucket for reuse. Callers must
// ensure any copy that read from/wrote to it has completed; Release
// itself does not wait on or check any fence.
func (p *StagingPool) Release(h StagingHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h.buf.inUse = false
}

// Destroy tears down every buffer this pool ever created, across all
// buckets. Callers must ensure the GPU is idle first.
func (p *StagingPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, bucket := range p.buckets {
		for _, sb := range bucket {
			sb.alloc.Unmap()
			vk.DestroyBuffer(p.device, sb.buffer, nil)
			p.mgr.Free(sb.alloc)
		}
	}
	p.buckets = make(map[vk.DeviceSize][]*stagingBuffer)
}
