package vkforge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	vk "github.com/vulkan-go/vulkan"
)

func TestGenerateMipmapsNoopBelowTwoLevels(t *testing.T) {
	r := newTestRecorder()
	r.state = StateRecording

	tex := NewSwapchainImage(vk.Image(1), vk.FormatR8g8b8a8Unorm, vk.Extent3D{Width: 256, Height: 256, Depth: 1}, vk.ImageLayoutUndefined)

	err := r.GenerateMipmaps(tex, ResourceID(1), vk.ImageAspectFlags(vk.ImageAspectColorBit))

	assert.NoError(t, err)
	assert.Empty(t, r.usage, "a single-mip texture should record no usage since no blit is issued")
}

func TestGenerateMipmapsRejectedOutsideRecording(t *testing.T) {
	r := newTestRecorder()
	tex := NewSwapchainImage(vk.Image(1), vk.FormatR8g8b8a8Unorm, vk.Extent3D{Width: 256, Height: 256, Depth: 1}, vk.ImageLayoutUndefined)

	err := r.GenerateMipmaps(tex, ResourceID(1), vk.ImageAspectFlags(vk.ImageAspectColorBit))
	assert.Error(t, err)
}
