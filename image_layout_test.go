package vkforge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vk "github.com/vulkan-go/vulkan"
)

func TestLayoutTrackerInitialLayout(t *testing.T) {
	tr := NewLayoutTracker(vk.Image(1), 4, 2, vk.ImageAspectFlags(vk.ImageAspectColorBit), vk.ImageLayoutUndefined)

	for mip := uint32(0); mip < 4; mip++ {
		for layer := uint32(0); layer < 2; layer++ {
			assert.Equal(t, vk.ImageLayoutUndefined, tr.LayoutOf(mip, layer))
		}
	}
}

func TestLayoutTrackerTransitionUpdatesState(t *testing.T) {
	tr := NewLayoutTracker(vk.Image(1), 1, 1, vk.ImageAspectFlags(vk.ImageAspectColorBit), vk.ImageLayoutUndefined)

	rng := SubresourceRange{BaseMip: 0, MipCount: 1, BaseLayer: 0, LayerCount: 1}
	barriers, src, dst := tr.Transition(rng, vk.ImageLayoutTransferDstOptimal, false)

	require.Len(t, barriers, 1)
	assert.Equal(t, vk.ImageLayoutUndefined, barriers[0].OldLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, barriers[0].NewLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, tr.LayoutOf(0, 0))
	assert.NotZero(t, dst)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), src)
}

func TestLayoutTrackerNoopTransitionEmitsNoBarrier(t *testing.T) {
	tr := NewLayoutTracker(vk.Image(1), 1, 1, vk.ImageAspectFlags(vk.ImageAspectColorBit), vk.ImageLayoutGeneral)

	rng := SubresourceRange{BaseMip: 0, MipCount: 1, BaseLayer: 0, LayerCount: 1}
	barriers, src, dst := tr.Transition(rng, vk.ImageLayoutGeneral, false)

	assert.Nil(t, barriers)
	assert.Zero(t, src)
	assert.Zero(t, dst)
}

func TestLayoutTrackerCoalescesContiguousLayers(t *testing.T) {
	tr := NewLayoutTracker(vk.Image(1), 1, 4, vk.ImageAspectFlags(vk.ImageAspectColorBit), vk.ImageLayoutUndefined)

	rng := SubresourceRange{BaseMip: 0, MipCount: 1, BaseLayer: 0, LayerCount: 4}
	barriers, _, _ := tr.Transition(rng, vk.ImageLayoutShaderReadOnlyOptimal, false)

	require.Len(t, barriers, 1, "four contiguous layers sharing the same old layout should coalesce into one barrier")
	assert.Equal(t, uint32(4), barriers[0].SubresourceRange.LayerCount)
}

func TestLayoutTrackerSplitsNonContiguousLayers(t *testing.T) {
	tr := NewLayoutTracker(vk.Image(1), 1, 4, vk.ImageAspectFlags(vk.ImageAspectColorBit), vk.ImageLayoutUndefined)

	// Transition layers 0 and 2 only, leaving 1 and 3 behind.
	rng1 := SubresourceRange{BaseMip: 0, MipCount: 1, BaseLayer: 0, LayerCount: 1}
	rng2 := SubresourceRange{BaseMip: 0, MipCount: 1, BaseLayer: 2, LayerCount: 1}
	tr.Transition(rng1, vk.ImageLayoutTransferDstOptimal, true)
	tr.Transition(rng2, vk.ImageLayoutTransferDstOptimal, true)

	full := SubresourceRange{BaseMip: 0, MipCount: 1, BaseLayer: 0, LayerCount: 4}
	barriers, _, _ := tr.Transition(full, vk.ImageLayoutShaderReadOnlyOptimal, false)

	// layers {0,2} came from TransferDstOptimal, {1,3} from Undefined -> two old-layout groups.
	assert.Len(t, barriers, 2)
}

func TestStageAccessForShaderReadOnlyAttachmentOverride(t *testing.T) {
	sa := stageAccessFor(vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutColorAttachmentOptimal, false)
	want := layoutTable[vk.ImageLayoutColorAttachmentOptimal]
	assert.Equal(t, want, sa)
}

func TestStageAccessForDepthAttachmentOverride(t *testing.T) {
	sa := stageAccessFor(vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutDepthStencilAttachmentOptimal, false)
	want := layoutTable[vk.ImageLayoutDepthStencilReadOnlyOptimal]
	assert.Equal(t, want, sa)
}

func TestStageAccessForGeneralTransferOverride(t *testing.T) {
	sa := stageAccessFor(vk.ImageLayoutGeneral, vk.ImageLayoutUndefined, true)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), sa.stage)
}

func TestStageAccessForGeneralNonTransferUsesDefault(t *testing.T) {
	sa := stageAccessFor(vk.ImageLayoutGeneral, vk.ImageLayoutUndefined, false)
	assert.Equal(t, layoutTable[vk.ImageLayoutGeneral], sa)
}

func TestCoalesceRangesSplitsAcrossMipLevels(t *testing.T) {
	// indices for layerCount=2: mip0 -> {0,1}, mip1 -> {2,3}
	out := coalesceRanges([]uint32{0, 1, 2, 3}, 2)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, uint32(1), r.MipCount)
		assert.Equal(t, uint32(2), r.LayerCount)
	}
}
