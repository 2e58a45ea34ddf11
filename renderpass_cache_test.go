package vkforge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	vk "github.com/vulkan-go/vulkan"
)

func TestAttachmentSignatureDistinguishesFormats(t *testing.T) {
	a := []AttachmentDesc{{Format: vk.FormatR8g8b8a8Unorm}}
	b := []AttachmentDesc{{Format: vk.FormatB8g8r8a8Unorm}}

	assert.NotEqual(t, attachmentSignature(a), attachmentSignature(b))
}

func TestAttachmentSignatureDistinguishesDepthAndSampledFlags(t *testing.T) {
	base := AttachmentDesc{Format: vk.FormatD32Sfloat}
	depth := base
	depth.IsDepth = true
	sampled := base
	sampled.SampledAfter = true

	assert.NotEqual(t, attachmentSignature([]AttachmentDesc{base}), attachmentSignature([]AttachmentDesc{depth}))
	assert.NotEqual(t, attachmentSignature([]AttachmentDesc{base}), attachmentSignature([]AttachmentDesc{sampled}))
	assert.NotEqual(t, attachmentSignature([]AttachmentDesc{depth}), attachmentSignature([]AttachmentDesc{sampled}))
}

func TestAttachmentSignatureStableForIdenticalInput(t *testing.T) {
	a := []AttachmentDesc{{Format: vk.FormatR8g8b8a8Unorm, Samples: vk.SampleCount4Bit}}
	b := []AttachmentDesc{{Format: vk.FormatR8g8b8a8Unorm, Samples: vk.SampleCount4Bit}}

	assert.Equal(t, attachmentSignature(a), attachmentSignature(b))
}

func TestRenderPassCacheGetReturnsCachedEntryWithoutRebuilding(t *testing.T) {
	c := NewRenderPassCache(nil)
	attachments := []AttachmentDesc{}
	key := attachmentSetKey{variant: VariantClear, extent: vk.Extent2D{Width: 64, Height: 64}, sig: attachmentSignature(attachments)}
	c.cache[key] = &cachedRenderPass{pass: vk.RenderPass(42), framebuffer: vk.Framebuffer(7)}

	pass, fb, err := c.Get(VariantClear, vk.Extent2D{Width: 64, Height: 64}, attachments, nil)

	assert.NoError(t, err)
	assert.Equal(t, vk.RenderPass(42), pass)
	assert.Equal(t, vk.Framebuffer(7), fb)
}
