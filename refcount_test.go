package vkforge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	vk "github.com/vulkan-go/vulkan"
)

func fakeFence(n uintptr) vk.Fence {
	return vk.Fence(n)
}

func TestRefCountRegistryAcquireIncrements(t *testing.T) {
	r := NewRefCountRegistry()
	id := ResourceID(1)

	assert.Equal(t, 1, r.Acquire(id))
	assert.Equal(t, 2, r.Acquire(id))
	assert.Equal(t, 2, r.Count(id))
}

func TestRefCountRegistryDeferReleaseAppliesOnFenceComplete(t *testing.T) {
	r := NewRefCountRegistry()
	id := ResourceID(7)
	fence := fakeFence(1)

	r.Acquire(id)
	r.Acquire(id)
	r.DeferRelease(fence, []ResourceID{id})

	assert.Equal(t, 2, r.Count(id), "count must not drop before the fence signals")

	r.CompleteFence(fence)
	assert.Equal(t, 1, r.Count(id))
}

func TestRefCountRegistryCompleteFenceIsIdempotent(t *testing.T) {
	r := NewRefCountRegistry()
	id := ResourceID(3)
	fence := fakeFence(2)

	r.Acquire(id)
	r.DeferRelease(fence, []ResourceID{id})
	r.CompleteFence(fence)
	r.CompleteFence(fence)

	assert.Equal(t, 0, r.Count(id))
}

func TestRefCountRegistryNeverGoesNegative(t *testing.T) {
	r := NewRefCountRegistry()
	id := ResourceID(9)
	fence := fakeFence(3)

	r.DeferRelease(fence, []ResourceID{id, id})
	r.CompleteFence(fence)

	assert.Equal(t, 0, r.Count(id))
}

func TestRefCountRegistryMultipleResourcesOnSameFence(t *testing.T) {
	r := NewRefCountRegistry()
	a, b := ResourceID(1), ResourceID(2)
	fence := fakeFence(4)

	r.Acquire(a)
	r.Acquire(b)
	r.Acquire(b)
	r.DeferRelease(fence, []ResourceID{a, b})

	r.CompleteFence(fence)

	assert.Equal(t, 0, r.Count(a))
	assert.Equal(t, 1, r.Count(b))
}
