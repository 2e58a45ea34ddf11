package vkforge

import (
	"log/slog"
	"math/bits"
	"sync"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// DedicatedAllocationThreshold: requests at or above this size skip
// suballocation and get their own vk.DeviceMemory, named rather than
// left a bare literal.
const DedicatedAllocationThreshold vk.DeviceSize = 256 * 1024 * 1024

// defaultChunkSize is how large a freshly grown pooled chunk is, a
// quarter of the 256MiB dedicated threshold. A pooled request larger
// than this gets a chunk of exactly its own size, which stays below
// DedicatedAllocationThreshold since larger requests go dedicated.
const defaultChunkSize vk.DeviceSize = 64 * 1024 * 1024

// memoryKey groups allocations that can share a suballocator: same
// Vulkan memory type, same buffer/image linearity class (Vulkan forbids
// mixing linear and non-linear resources inside one chunk without
// bufferImageGranularity padding, which this module avoids by simply not
// mixing them).
type memoryKey struct {
	memoryType uint32
	linear     bool
}

// Allocation is what MemoryManager.Allocate hands back: enough to bind a
// buffer/image and, later, to free or map the backing memory.
type Allocation struct {
	chunk      *MemoryChunk
	token      tlsfToken
	dedicated  bool
	memoryType uint32
}

func (a Allocation) Memory() vk.DeviceMemory  { return a.chunk.memory }
func (a Allocation) Offset() vk.DeviceSize    { return vk.DeviceSize(a.token.offset) }
func (a Allocation) Size() vk.DeviceSize      { return vk.DeviceSize(a.token.size) }
func (a Allocation) MemoryTypeIndex() uint32  { return a.memoryType }
func (a Allocation) IsDedicated() bool        { return a.dedicated }

// Map returns a host pointer to this allocation's bytes. Only legal on
// allocations drawn from a host-visible memory type.
func (a Allocation) Map() (unsafe.Pointer, error) {
	return a.chunk.acquireMap(vk.DeviceSize(a.token.offset))
}

// Unmap releases the map acquired by Map. Must be paired 1:1.
func (a Allocation) Unmap() { a.chunk.releaseMap() }

// MemoryManager implements the Device Memory Allocator: memory-type
// selection by cost-scored property flags, pooled suballocation via
// per-key TLSF chunks, and a dedicated-allocation path for requests at or
// above DedicatedAllocationThreshold or explicitly marked dedicated (e.g.
// VkMemoryDedicatedRequirements says so). Grounded on runsys-core's
// vgpu/memory.go Memory manager (typed buffer/chunk collections, AllocDev
// lifecycle) and on device.go for where memory-type enumeration data
// comes from.
type MemoryManager struct {
	mu     sync.RWMutex
	device vk.Device
	props  vk.PhysicalDeviceMemoryProperties
	log    *slog.Logger

	chunksByKey map[memoryKey][]*MemoryChunk
	dedicated   []*MemoryChunk
	chunkSize   vk.DeviceSize
}

// memoryRequest mirrors what a buffer/image creation call reports back
// via vkGetBufferMemoryRequirements/vkGetImageMemoryRequirements, plus
// the caller's property-flag preferences.
type memoryRequest struct {
	size              vk.DeviceSize
	align             vk.DeviceSize
	memoryTypeBits    uint32
	required          vk.MemoryPropertyFlags
	preferred         vk.MemoryPropertyFlags
	notPreferred      vk.MemoryPropertyFlags
	linear            bool
	forceDedicated    bool
}

func NewMemoryManager(device vk.Device, props vk.PhysicalDeviceMemoryProperties, log *slog.Logger) *MemoryManager {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryManager{
		device:      device,
		props:       props,
		log:         log,
		chunksByKey: make(map[memoryKey][]*MemoryChunk),
		chunkSize:   defaultChunkSize,
	}
}

// selectMemoryType scores every candidate type whose bit is set in
// memoryTypeBits and which carries all of `required`: score is how many
// `preferred` bits it has (bonus) minus how many `notPreferred` bits it
// has (penalty); highest score wins, ties broken by lowest type index
// (stable, deterministic selection).
func (m *MemoryManager) selectMemoryType(req memoryRequest) (uint32, bool) {
	bestIdx := uint32(0)
	bestScore := -1
	found := false

	for i := uint32(0); i < m.props.MemoryTypeCount; i++ {
		if req.memoryTypeBits&(1<<i) == 0 {
			continue
		}
		mt := m.props.MemoryTypes[i]
		mt.Deref()
		flags := mt.PropertyFlags
		if flags&req.required != req.required {
			continue
		}
		score := bits.OnesCount32(uint32(flags & req.preferred))
		score -= bits.OnesCount32(uint32(flags & req.notPreferred))
		if !found || score > bestScore {
			bestScore = score
			bestIdx = i
			found = true
		}
	}
	return bestIdx, found
}

// Allocate satisfies req from a pooled chunk when small enough, else
// takes the dedicated-allocation path. Growth policy: if no existing
// chunk for this memory-type/linearity key has room, a new chunk of
// chunkSize (or exactly req.size, if larger) is allocated and added
// to the pool before retrying the suballocation.
func (m *MemoryManager) Allocate(req memoryRequest) (Allocation, error) {
	memType, ok := m.selectMemoryType(req)
	if !ok {
		return Allocation{}, newErr(KindOutOfMemory, "Allocate", nil)
	}

	if req.forceDedicated || req.size >= DedicatedAllocationThreshold {
		m.log.Debug("dedicated allocation", "size", req.size, "memoryType", memType)
		return m.allocateDedicated(req, memType)
	}

	key := memoryKey{memoryType: memType, linear: req.linear}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, chunk := range m.chunksByKey[key] {
		if tok, ok := chunk.allocate(uint64(req.size), uint64(req.align)); ok {
			return Allocation{chunk: chunk, token: tok, memoryType: memType}, nil
		}
	}

	growSize := m.chunkSize
	if req.size > growSize {
		growSize = req.size
	}
	hostVisible := req.required&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 ||
		req.preferred&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0

	chunk, err := newMemoryChunk(m.device, growSize, memType, hostVisible, false)
	if err != nil {
		return Allocation{}, err
	}
	m.log.Debug("grew memory pool", "key", key, "size", growSize)
	m.chunksByKey[key] = append(m.chunksByKey[key], chunk)

	tok, ok := chunk.allocate(uint64(req.size), uint64(req.align))
	if !ok {
		return Allocation{}, newErr(KindOversizedAllocation, "Allocate", nil)
	}
	return Allocation{chunk: chunk, token: tok, memoryType: memType}, nil
}

func (m *MemoryManager) allocateDedicated(req memoryRequest, memType uint32) (Allocation, error) {
	hostVisible := req.required&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 ||
		req.preferred&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0

	m.mu.Lock()
	defer m.mu.Unlock()

	chunk, err := newMemoryChunk(m.device, req.size, memType, hostVisible, true)
	if err != nil {
		return Allocation{}, err
	}
	m.dedicated = append(m.dedicated, chunk)
	return Allocation{chunk: chunk, token: tlsfToken{offset: 0, size: uint64(req.size)}, dedicated: true, memoryType: memType}, nil
}

// Free returns an allocation to its chunk's suballocator, or destroys
// the chunk outright if it was dedicated.
func (m *MemoryManager) Free(a Allocation) {
	if a.dedicated {
		m.mu.Lock()
		defer m.mu.Unlock()
		a.chunk.destroy()
		for i, c := range m.dedicated {
			if c == a.chunk {
				m.dedicated = append(m.dedicated[:i], m.dedicated[i+1:]...)
				break
			}
		}
		return
	}
	a.chunk.release(a.token)
}

// Destroy frees every chunk this manager owns. Callers must ensure the
// GPU is idle first: no allocation may outlive the device it was
// allocated from.
func (m *MemoryManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chunks := range m.chunksByKey {
		for _, c := range chunks {
			c.destroy()
		}
	}
	for _, c := range m.dedicated {
		c.destroy()
	}
	m.chunksByKey = make(map[memoryKey][]*MemoryChunk)
	m.dedicated = nil
}
