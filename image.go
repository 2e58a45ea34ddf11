package vkforge

import vk "github.com/vulkan-go/vulkan"

// TextureKind distinguishes the three ways a vk.Image's lifetime is
// owned, using tagged variants rather than an inheritance-flavored
// Texture/VkTexture/swapchain split.
type TextureKind int

const (
	// TextureOwned images are created and destroyed by this module
	// (render targets, sampled textures backed by a MemoryManager Allocation).
	TextureOwned TextureKind = iota
	// TextureStaging marks a StagingImage. The staging pool
	// (staging_pool.go) hands out buffers only; it neither creates nor
	// recycles images.
	TextureStaging
	// TextureSwapchain images are owned by the swapchain external
	// collaborator; this module tracks their layout but never creates
	// or destroys the vk.Image itself.
	TextureSwapchain
)

// Texture is the common interface every TextureKind variant satisfies.
// The Command Recorder and Image Layout Tracker only ever see this
// interface, never branch on concrete type.
type Texture interface {
	Kind() TextureKind
	Handle() vk.Image
	Transition(rng SubresourceRange, newLayout vk.ImageLayout, isTransferContext bool) ([]vk.ImageMemoryBarrier, vk.PipelineStageFlags, vk.PipelineStageFlags)
	SubresourceLayout(mip, layer uint32) vk.ImageLayout
	Format() vk.Format
	Extent() vk.Extent3D
	MipLevels() uint32
	ArrayLayers() uint32
	IsSampled() bool
}

// baseTexture holds the fields every variant shares; each variant embeds
// it and adds what makes it distinct (an Allocation and device for
// Owned, nothing extra for Staging or Swapchain).
type baseTexture struct {
	kind    TextureKind
	image   vk.Image
	format  vk.Format
	extent  vk.Extent3D
	mips    uint32
	layers  uint32
	sampled bool
	tracker *LayoutTracker
}

func (b *baseTexture) Kind() TextureKind   { return b.kind }
func (b *baseTexture) Handle() vk.Image    { return b.image }
func (b *baseTexture) Format() vk.Format   { return b.format }
func (b *baseTexture) Extent() vk.Extent3D { return b.extent }
func (b *baseTexture) MipLevels() uint32   { return b.mips }
func (b *baseTexture) ArrayLayers() uint32 { return b.layers }
func (b *baseTexture) IsSampled() bool     { return b.sampled }

func (b *baseTexture) Transition(rng SubresourceRange, newLayout vk.ImageLayout, isTransferContext bool) ([]vk.ImageMemoryBarrier, vk.PipelineStageFlags, vk.PipelineStageFlags) {
	return b.tracker.Transition(rng, newLayout, isTransferContext)
}

func (b *baseTexture) SubresourceLayout(mip, layer uint32) vk.ImageLayout {
	return b.tracker.LayoutOf(mip, layer)
}

// OwnedImage is a vk.Image this module created and whose backing memory
// it allocated through a MemoryManager.
type OwnedImage struct {
	baseTexture
	allocation Allocation
	device     vk.Device
}

// NewOwnedImage creates a vk.Image, binds device memory from mgr for it,
// and returns the Texture handle the rest of the module uses.
func NewOwnedImage(device vk.Device, mgr *MemoryManager, info vk.ImageCreateInfo, aspect vk.ImageAspectFlags, required, preferred vk.MemoryPropertyFlags) (*OwnedImage, error) {
	var image vk.Image
	ret := vk.CreateImage(device, &info, nil, &image)
	if isError(ret) {
		return nil, newErr(KindUnderlyingApiFailure, "NewOwnedImage", newError(ret))
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image, &memReqs)
	memReqs.Deref()

	alloc, err := mgr.Allocate(memoryRequest{
		size:           memReqs.Size,
		align:          memReqs.Alignment,
		memoryTypeBits: memReqs.MemoryTypeBits,
		required:       required,
		preferred:      preferred,
		linear:         info.Tiling == vk.ImageTilingLinear,
	})
	if err != nil {
		vk.DestroyImage(device, image, nil)
		return nil, err
	}

	if ret := vk.BindImageMemory(device, image, alloc.Memory(), alloc.Offset()); isError(ret) {
		mgr.Free(alloc)
		vk.DestroyImage(device, image, nil)
		return nil, newErr(KindUnderlyingApiFailure, "NewOwnedImage", newError(ret))
	}

	return &OwnedImage{
		baseTexture: baseTexture{
			kind:    TextureOwned,
			image:   image,
			format:  info.Format,
			extent:  info.Extent,
			mips:    info.MipLevels,
			layers:  info.ArrayLayers,
			sampled: info.Usage&vk.ImageUsageFlags(vk.ImageUsageSampledBit) != 0,
			tracker: NewLayoutTracker(image, info.MipLevels, info.ArrayLayers, aspect, info.InitialLayout),
		},
		allocation: alloc,
		device:     device,
	}, nil
}

func (o *OwnedImage) Destroy(mgr *MemoryManager) {
	vk.DestroyImage(o.device, o.image, nil)
	mgr.Free(o.allocation)
}

// StagingImage wraps a vk.Image for layout tracking only. It has no
// constructor and no Destroy, and the staging pool has no image
// counterpart to return it to.
type StagingImage struct {
	baseTexture
}

// SwapchainImage wraps one swapchain-provided vk.Image. This module
// never creates or destroys the handle; it only tracks layout across
// the frames the image is used.
type SwapchainImage struct {
	baseTexture
}

// NewSwapchainImage registers a swapchain image for layout tracking.
// initial is normally vk.ImageLayoutUndefined for a freshly acquired
// swapchain image.
func NewSwapchainImage(image vk.Image, format vk.Format, extent vk.Extent3D, initial vk.ImageLayout) *SwapchainImage {
	return &SwapchainImage{baseTexture: baseTexture{
		kind:    TextureSwapchain,
		image:   image,
		format:  format,
		extent:  extent,
		mips:    1,
		layers:  1,
		tracker: NewLayoutTracker(image, 1, 1, vk.ImageAspectFlags(vk.ImageAspectColorBit), initial),
	}}
}
