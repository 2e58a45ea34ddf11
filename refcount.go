package vkforge

import (
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// ResourceID names one ref-counted resource (a buffer, image, or
// pipeline) the Command Recorder can reference inside a recording.
// Using the underlying Vulkan handle's integer form as the identity
// keeps this registry free of a second naming scheme.
type ResourceID uint64

// RefCountRegistry keeps an explicit per-resource usage counter and, for
// each command-buffer submission, the set of resources it touched.
// Decrements are deferred until the submission's fence signals: a
// resource is safe to destroy once its count reaches zero, never
// before, even if every recorder referencing it has already been
// destroyed.
//
// Generalizes the fence-gated recycling pattern FenceManager already
// uses for command buffers ("reuse a command buffer once its fence
// signals") to "decrement a resource refcount once its fence signals."
// Kept deliberately on sync.Mutex and a plain map rather than a
// GC-assisted or atomic scheme, so the count stays explicit and
// inspectable.
type RefCountRegistry struct {
	mu      sync.Mutex
	counts  map[ResourceID]int
	pending map[vk.Fence][]ResourceID
}

func NewRefCountRegistry() *RefCountRegistry {
	return &RefCountRegistry{
		counts:  make(map[ResourceID]int),
		pending: make(map[vk.Fence][]ResourceID),
	}
}

// Acquire increments a resource's count, returning the new value. The
// Command Recorder calls it once per recording that references the
// resource.
func (r *RefCountRegistry) Acquire(id ResourceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id]++
	return r.counts[id]
}

// Count reports a resource's current reference count.
func (r *RefCountRegistry) Count(id ResourceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

// DeferRelease queues a decrement for every id in used, to be applied
// once fence signals (called by the Command Recorder at submission
// time, after it has recorded every resource usage for this command
// buffer).
func (r *RefCountRegistry) DeferRelease(fence vk.Fence, used []ResourceID) {
	if len(used) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[fence] = append(r.pending[fence], used...)
}

// CompleteFence applies every deferred decrement queued against fence.
// The Command Recorder (or whatever polls vk.GetFenceStatus/
// vk.WaitForFences) calls this once it observes the fence has signaled.
func (r *RefCountRegistry) CompleteFence(fence vk.Fence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.pending[fence]
	if !ok {
		return
	}
	for _, id := range ids {
		if r.counts[id] > 0 {
			r.counts[id]--
		}
	}
	delete(r.pending, fence)
}
