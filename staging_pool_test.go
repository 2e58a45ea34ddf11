package vkforge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	vk "github.com/vulkan-go/vulkan"
)

func TestBucketSizeRoundsUpToPowerOfTwo(t *testing.T) {
	cases := map[vk.DeviceSize]vk.DeviceSize{
		1:     4096,
		4096:  4096,
		4097:  8192,
		8192:  8192,
		20000: 32768,
	}
	for in, want := range cases {
		assert.Equal(t, want, bucketSize(in), "bucketSize(%d)", in)
	}
}

func TestStagingPoolReleaseMarksBufferFree(t *testing.T) {
	p := NewStagingPool(nil, nil)
	sb := &stagingBuffer{size: 4096, inUse: true}
	p.buckets[4096] = []*stagingBuffer{sb}

	h := StagingHandle{pool: p, bucket: 4096, buf: sb}
	p.Release(h)

	assert.False(t, sb.inUse)
}
