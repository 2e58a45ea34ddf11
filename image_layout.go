package vkforge

import (
	vk "github.com/vulkan-go/vulkan"
)

// stageAccess is one row of the layout→{stage,access} lookup table: what
// pipeline stage and access mask a transition into/out of a given layout
// implies by default.
type stageAccess struct {
	stage  vk.PipelineStageFlags
	access vk.AccessFlags
}

// layoutTable maps every vk.ImageLayout this module transitions through
// to its default stage/access pair. Grounded on gviegas-neo3's
// driver/vk/cmd.go convSync/convAccess/convLayout functions, which
// implement the same VkAccessFlags2/VkPipelineStageFlags2 mapping this
// table needs; ported from that file's cgo-level constants to the
// teacher's vulkan-go/vulkan Go-typed flag constants.
var layoutTable = map[vk.ImageLayout]stageAccess{
	vk.ImageLayoutUndefined: {
		stage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		access: 0,
	},
	vk.ImageLayoutGeneral: {
		stage:  vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		access: vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit),
	},
	vk.ImageLayoutColorAttachmentOptimal: {
		stage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		access: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	},
	vk.ImageLayoutDepthStencilAttachmentOptimal: {
		stage: vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
			vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
		access: vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	},
	vk.ImageLayoutDepthStencilReadOnlyOptimal: {
		stage: vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		access: vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessShaderReadBit),
	},
	vk.ImageLayoutShaderReadOnlyOptimal: {
		stage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		access: vk.AccessFlags(vk.AccessShaderReadBit),
	},
	vk.ImageLayoutTransferSrcOptimal: {
		stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		access: vk.AccessFlags(vk.AccessTransferReadBit),
	},
	vk.ImageLayoutTransferDstOptimal: {
		stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		access: vk.AccessFlags(vk.AccessTransferWriteBit),
	},
	vk.ImageLayoutPreinitialized: {
		stage:  vk.PipelineStageFlags(vk.PipelineStageHostBit),
		access: vk.AccessFlags(vk.AccessHostWriteBit),
	},
	vk.ImageLayoutPresentSrc: {
		stage:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		access: 0,
	},
}

// stageAccessFor looks up layoutTable, applying two corrective
// overrides: a SHADER_READ_ONLY layout transitioning directly to/from an
// attachment layout uses the attachment's stage (the
// fragment-shader-only entry undercounts the pipeline stages a render
// pass's implicit dependency actually spans), and a GENERAL layout
// transitioning to/from a transfer operation uses the transfer stage
// rather than AllCommands (AllCommands is a correct but needlessly broad
// barrier for what is actually just a copy).
func stageAccessFor(layout vk.ImageLayout, contextLayout vk.ImageLayout, isTransferContext bool) stageAccess {
	if layout == vk.ImageLayoutShaderReadOnlyOptimal {
		switch contextLayout {
		case vk.ImageLayoutColorAttachmentOptimal:
			return layoutTable[vk.ImageLayoutColorAttachmentOptimal]
		case vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutDepthStencilReadOnlyOptimal:
			return layoutTable[vk.ImageLayoutDepthStencilReadOnlyOptimal]
		}
	}
	if layout == vk.ImageLayoutGeneral && isTransferContext {
		return stageAccess{
			stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			access: vk.AccessFlags(vk.AccessTransferReadBit) | vk.AccessFlags(vk.AccessTransferWriteBit),
		}
	}
	sa, ok := layoutTable[layout]
	if !ok {
		return stageAccess{stage: vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), access: vk.AccessFlags(vk.AccessMemoryReadBit) | vk.AccessFlags(vk.AccessMemoryWriteBit)}
	}
	return sa
}

// SubresourceRange identifies the mip/array slice of an image a layout
// transition or copy targets.
type SubresourceRange struct {
	Aspect     vk.ImageAspectFlags
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// LayoutTracker holds the current layout of every subresource of one
// image and emits the pipeline barriers needed to move between layouts.
// One LayoutTracker per tracked image; each Texture variant owns its
// image's tracker, and the Command Recorder reaches it through
// Texture.Transition.
type LayoutTracker struct {
	image      vk.Image
	mipLevels  uint32
	layerCount uint32
	aspect     vk.ImageAspectFlags
	// layouts is indexed [mip*layerCount+layer], one entry per subresource.
	layouts []vk.ImageLayout
}

func NewLayoutTracker(image vk.Image, mipLevels, layerCount uint32, aspect vk.ImageAspectFlags, initial vk.ImageLayout) *LayoutTracker {
	layouts := make([]vk.ImageLayout, mipLevels*layerCount)
	for i := range layouts {
		layouts[i] = initial
	}
	return &LayoutTracker{
		image:      image,
		mipLevels:  mipLevels,
		layerCount: layerCount,
		aspect:     aspect,
		layouts:    layouts,
	}
}

func (t *LayoutTracker) index(mip, layer uint32) int {
	return int(mip*t.layerCount + layer)
}

// LayoutOf returns the current layout of one subresource.
func (t *LayoutTracker) LayoutOf(mip, layer uint32) vk.ImageLayout {
	return t.layouts[t.index(mip, layer)]
}

// pendingBarrier is one subresource range that needs the same
// old→new transition, coalesced so same-range, same-transition
// subresources produce one barrier rather than one per mip/layer.
type pendingBarrier struct {
	oldLayout vk.ImageLayout
	rng       SubresourceRange
}

// Transition records a move of rng to newLayout and returns the
// vk.ImageMemoryBarrier(s) the Command Recorder must submit via
// vkCmdPipelineBarrier, along with the combined src/dst stage masks.
// isTransferContext lets the caller (Command Recorder) signal that this
// transition straddles a copy, enabling the GENERAL↔transfer override.
func (t *LayoutTracker) Transition(rng SubresourceRange, newLayout vk.ImageLayout, isTransferContext bool) ([]vk.ImageMemoryBarrier, vk.PipelineStageFlags, vk.PipelineStageFlags) {
	byOld := make(map[vk.ImageLayout][]uint32)
	for mip := rng.BaseMip; mip < rng.BaseMip+rng.MipCount; mip++ {
		for layer := rng.BaseLayer; layer < rng.BaseLayer+rng.LayerCount; layer++ {
			idx := t.index(mip, layer)
			old := t.layouts[idx]
			byOld[old] = append(byOld[old], uint32(idx))
			t.layouts[idx] = newLayout
		}
	}

	var barriers []vk.ImageMemoryBarrier
	var srcStage, dstStage vk.PipelineStageFlags

	newSA := stageAccessFor(newLayout, oldestContextLayout(byOld), isTransferContext)
	dstStage |= newSA.stage

	for old, indices := range byOld {
		if old == newLayout {
			continue
		}
		oldSA := stageAccessFor(old, newLayout, isTransferContext)
		srcStage |= oldSA.stage

		for _, rangeDesc := range coalesceRanges(indices, t.layerCount) {
			barriers = append(barriers, vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       oldSA.access,
				DstAccessMask:       newSA.access,
				OldLayout:           old,
				NewLayout:           newLayout,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               t.image,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask:     t.aspect,
					BaseMipLevel:   rangeDesc.BaseMip,
					LevelCount:     rangeDesc.MipCount,
					BaseArrayLayer: rangeDesc.BaseLayer,
					LayerCount:     rangeDesc.LayerCount,
				},
			})
		}
	}
	if len(barriers) == 0 {
		return nil, 0, 0
	}
	if srcStage == 0 {
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return barriers, srcStage, dstStage
}

func oldestContextLayout(byOld map[vk.ImageLayout][]uint32) vk.ImageLayout {
	for old := range byOld {
		return old
	}
	return vk.ImageLayoutUndefined
}

// coalesceRanges groups flat mip*layerCount+layer indices back into
// contiguous mip/layer subresource ranges so a transition over many
// subresources in the same old layout collapses into the minimum number
// of vk.ImageMemoryBarrier entries, mirroring the Command Recorder's
// resource-set flush coalescing approach.
func coalesceRanges(indices []uint32, layerCount uint32) []SubresourceRange {
	if len(indices) == 0 {
		return nil
	}
	byMip := make(map[uint32][]uint32)
	for _, idx := range indices {
		mip := idx / layerCount
		layer := idx % layerCount
		byMip[mip] = append(byMip[mip], layer)
	}
	var out []SubresourceRange
	for mip, layers := range byMip {
		sortUint32(layers)
		start := layers[0]
		prev := layers[0]
		for i := 1; i <= len(layers); i++ {
			if i < len(layers) && layers[i] == prev+1 {
				prev = layers[i]
				continue
			}
			out = append(out, SubresourceRange{
				BaseMip:    mip,
				MipCount:   1,
				BaseLayer:  start,
				LayerCount: prev - start + 1,
			})
			if i < len(layers) {
				start = layers[i]
				prev = layers[i]
			}
		}
	}
	return out
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
