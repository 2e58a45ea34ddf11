package vkforge

import (
	vk "github.com/vulkan-go/vulkan"
)

// PipelineCache holds the named, long-lived pipeline layout/pipeline
// pairs a Command Recorder binds by name, using named maps of
// long-lived Vulkan objects rather than a single hardcoded slot.
type PipelineCache struct {
	device    vk.Device
	layouts   map[string]vk.PipelineLayout
	pipelines map[string]vk.Pipeline
}

func NewPipelineCache(device vk.Device) *PipelineCache {
	return &PipelineCache{
		device:    device,
		layouts:   make(map[string]vk.PipelineLayout),
		pipelines: make(map[string]vk.Pipeline),
	}
}

func (c *PipelineCache) Pipeline(name string) (vk.Pipeline, vk.PipelineLayout, bool) {
	p, ok := c.pipelines[name]
	if !ok {
		return vk.NullPipeline, vk.NullPipelineLayout, false
	}
	return p, c.layouts[name], true
}

func (c *PipelineCache) Destroy() {
	for _, p := range c.pipelines {
		vk.DestroyPipeline(c.device, p, nil)
	}
	for _, l := range c.layouts {
		vk.DestroyPipelineLayout(c.device, l, nil)
	}
	c.pipelines = make(map[string]vk.Pipeline)
	c.layouts = make(map[string]vk.PipelineLayout)
}

// PipelineBuilder accumulates graphics-pipeline fixed-function state
// before building against a concrete render pass. Takes caller-supplied
// vertex input, topology, and depth-test state rather than a single
// hardcoded configuration; cull mode is fixed to back-face culling.
type PipelineBuilder struct {
	shaderStages         []vk.PipelineShaderStageCreateInfo
	vertexInputInfo      vk.PipelineVertexInputStateCreateInfo
	inputAssembly        vk.PipelineInputAssemblyStateCreateInfo
	rasterizer           vk.PipelineRasterizationStateCreateInfo
	colorBlendAttachment vk.PipelineColorBlendAttachmentState
	multisampling        vk.PipelineMultisampleStateCreateInfo
	depthStencil         vk.PipelineDepthStencilStateCreateInfo
}

// NewPipelineBuilder seeds fixed-function defaults (no blend, back-face
// culling on, depth test/write per wantDepth) around the given shader
// program and vertex input description.
func NewPipelineBuilder(program *ShaderProgram, vertexInput vk.PipelineVertexInputStateCreateInfo, topology vk.PrimitiveTopology, wantDepth bool) *PipelineBuilder {
	pb := &PipelineBuilder{}

	pb.shaderStages = []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(vk.ShaderStageVertexBit),
			Module: *program.vertex_shader_modules,
			PName:  safeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(vk.ShaderStageFragmentBit),
			Module: *program.fragment_shader_modules,
			PName:  safeString("main"),
		},
	}

	pb.vertexInputInfo = vertexInput
	pb.vertexInputInfo.SType = vk.StructureTypePipelineVertexInputStateCreateInfo

	pb.inputAssembly = vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: topology,
	}

	pb.rasterizer = vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1.0,
	}

	pb.multisampling = vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	pb.colorBlendAttachment = vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) |
			vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) |
			vk.ColorComponentFlags(vk.ColorComponentABit),
	}

	pb.depthStencil = vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vk.Bool32(boolToUint32(wantDepth)),
		DepthWriteEnable: vk.Bool32(boolToUint32(wantDepth)),
		DepthCompareOp:   vk.CompareOpLess,
	}

	return pb
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Build creates the vk.Pipeline against pass, registering it in cache
// under name for later lookup by the Command Recorder.
func (p *PipelineBuilder) Build(cache *PipelineCache, name string, pass vk.RenderPass, extent vk.Extent2D, layout vk.PipelineLayout) (vk.Pipeline, error) {
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1.0}},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{{Extent: extent}},
	}

	blend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{p.colorBlendAttachment},
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(p.shaderStages)),
		PStages:             p.shaderStages,
		PVertexInputState:   &p.vertexInputInfo,
		PInputAssemblyState: &p.inputAssembly,
		PViewportState:      &viewport,
		PRasterizationState: &p.rasterizer,
		PMultisampleState:   &p.multisampling,
		PColorBlendState:    &blend,
		PDepthStencilState:  &p.depthStencil,
		Layout:              layout,
		RenderPass:          pass,
	}

	pipelines := []vk.Pipeline{vk.NullPipeline}
	ret := vk.CreateGraphicsPipelines(cache.device, nil, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if isError(ret) {
		return vk.NullPipeline, newErr(KindUnderlyingApiFailure, "PipelineBuilder.Build", newError(ret))
	}
	cache.layouts[name] = layout
	cache.pipelines[name] = pipelines[0]
	return pipelines[0], nil
}
