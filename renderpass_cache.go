package vkforge

import (
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// RenderPassVariant selects which of the three load-op strategies a
// render pass uses for its color/depth attachments.
type RenderPassVariant int

const (
	// VariantClear: LoadOp=Clear for every attachment (first use of a frame).
	VariantClear RenderPassVariant = iota
	// VariantNoClearInit: LoadOp=DontCare; the attachment's prior
	// contents are irrelevant (first write, but caller promises full
	// coverage so no clear is needed).
	VariantNoClearInit
	// VariantNoClearLoad: LoadOp=Load; preserves whatever was already
	// rendered into the attachment.
	VariantNoClearLoad
)

// AttachmentDesc is one entry of a Framebuffer Attachment Set: the
// static properties of a render-pass attachment that participate in the
// cache key (format, samples, and whether it's ever sampled downstream,
// which forces a FinalLayout the shader can read from).
type AttachmentDesc struct {
	Format       vk.Format
	Samples      vk.SampleCountFlagBits
	IsDepth      bool
	SampledAfter bool
}

// attachmentSetKey is an attachment set hashed into a map key, so
// repeated set_framebuffer calls with an identical attachment set reuse
// the cached render-pass variants and framebuffer rather than rebuilding
// them.
type attachmentSetKey struct {
	variant RenderPassVariant
	extent  vk.Extent2D
	sig     string
}

func attachmentSignature(attachments []AttachmentDesc) string {
	buf := make([]byte, 0, len(attachments)*12)
	for _, a := range attachments {
		buf = append(buf, byte(a.Format), byte(a.Format>>8), byte(a.Format>>16), byte(a.Format>>24))
		buf = append(buf, byte(a.Samples))
		flags := byte(0)
		if a.IsDepth {
			flags |= 1
		}
		if a.SampledAfter {
			flags |= 2
		}
		buf = append(buf, flags)
	}
	return string(buf)
}

type cachedRenderPass struct {
	pass        vk.RenderPass
	framebuffer vk.Framebuffer
}

// RenderPassCache builds and caches one render pass and one framebuffer
// per (variant, extent, attachment signature) key. Uses the same
// AttachmentDescription/SubpassDescription/SubpassDependency
// construction idiom as a single hardcoded render pass would, but
// generalized to the three load-op variants, with named maps of the
// long-lived render-pass/framebuffer objects backing the cache.
type RenderPassCache struct {
	mu     sync.Mutex
	device vk.Device
	cache  map[attachmentSetKey]*cachedRenderPass
}

func NewRenderPassCache(device vk.Device) *RenderPassCache {
	return &RenderPassCache{
		device: device,
		cache:  make(map[attachmentSetKey]*cachedRenderPass),
	}
}

// Get returns the cached render pass/framebuffer for this attachment
// set and variant, building it on first use.
func (c *RenderPassCache) Get(variant RenderPassVariant, extent vk.Extent2D, attachments []AttachmentDesc, views []vk.ImageView) (vk.RenderPass, vk.Framebuffer, error) {
	key := attachmentSetKey{variant: variant, extent: extent, sig: attachmentSignature(attachments)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.cache[key]; ok {
		return entry.pass, entry.framebuffer, nil
	}

	pass, err := c.buildRenderPass(variant, attachments)
	if err != nil {
		return vk.NullRenderPass, vk.NullFramebuffer, err
	}

	fb, err := c.buildFramebuffer(pass, extent, views)
	if err != nil {
		vk.DestroyRenderPass(c.device, pass, nil)
		return vk.NullRenderPass, vk.NullFramebuffer, err
	}

	c.cache[key] = &cachedRenderPass{pass: pass, framebuffer: fb}
	return pass, fb, nil
}

func loadOpFor(variant RenderPassVariant) vk.AttachmentLoadOp {
	switch variant {
	case VariantClear:
		return vk.AttachmentLoadOpClear
	case VariantNoClearLoad:
		return vk.AttachmentLoadOpLoad
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func (c *RenderPassCache) buildRenderPass(variant RenderPassVariant, attachments []AttachmentDesc) (vk.RenderPass, error) {
	descriptions := make([]vk.AttachmentDescription, len(attachments))
	var colorRefs []vk.AttachmentReference
	var depthRef *vk.AttachmentReference

	loadOp := loadOpFor(variant)

	for i, a := range attachments {
		finalLayout := vk.ImageLayoutColorAttachmentOptimal
		if a.IsDepth {
			finalLayout = vk.ImageLayoutDepthStencilAttachmentOptimal
		}
		if a.SampledAfter {
			finalLayout = vk.ImageLayoutShaderReadOnlyOptimal
		}
		initialLayout := vk.ImageLayoutUndefined
		if variant == VariantNoClearLoad {
			if a.IsDepth {
				initialLayout = vk.ImageLayoutDepthStencilAttachmentOptimal
			} else {
				initialLayout = vk.ImageLayoutColorAttachmentOptimal
			}
		}

		descriptions[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        a.Samples,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    finalLayout,
		}

		if a.IsDepth {
			depthRef = &vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
		} else {
			colorRefs = append(colorRefs, vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayoutColorAttachmentOptimal})
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
	}
	if len(colorRefs) > 0 {
		subpass.PColorAttachments = colorRefs
	}
	if depthRef != nil {
		subpass.PDepthStencilAttachment = depthRef
	}

	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:      vk.MaxUint32,
			DstSubpass:      0,
			SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask:   vk.AccessFlags(vk.AccessMemoryReadBit),
			DstAccessMask:   vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
		{
			SrcSubpass:      0,
			DstSubpass:      vk.MaxUint32,
			SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			SrcAccessMask:   vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstAccessMask:   vk.AccessFlags(vk.AccessMemoryReadBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
	}

	var pass vk.RenderPass
	ret := vk.CreateRenderPass(c.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descriptions)),
		PAttachments:    descriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}, nil, &pass)
	if isError(ret) {
		return vk.NullRenderPass, newErr(KindUnderlyingApiFailure, "buildRenderPass", newError(ret))
	}
	return pass, nil
}

func (c *RenderPassCache) buildFramebuffer(pass vk.RenderPass, extent vk.Extent2D, views []vk.ImageView) (vk.Framebuffer, error) {
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(c.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}, nil, &fb)
	if isError(ret) {
		return vk.NullFramebuffer, newErr(KindUnderlyingApiFailure, "buildFramebuffer", newError(ret))
	}
	return fb, nil
}

// Destroy tears down every cached render pass and framebuffer. Callers
// must ensure the GPU is idle first.
func (c *RenderPassCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.cache {
		vk.DestroyFramebuffer(c.device, entry.framebuffer, nil)
		vk.DestroyRenderPass(c.device, entry.pass, nil)
	}
	c.cache = make(map[attachmentSetKey]*cachedRenderPass)
}
