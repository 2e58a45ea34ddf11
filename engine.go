package vkforge

import (
	"log/slog"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// Engine is the root object an application holds: one per logical
// device. It wires together the device adapter, the suballocator, the
// render-pass/framebuffer cache, the staging pool, and the deferred
// resource-release registry, and hands out Command Recorders that share
// them. Surface and swapchain ownership stay outside this module, on
// whatever platform layer the caller supplies.
type Engine struct {
	log *slog.Logger

	device      *CoreDevice
	mem         *MemoryManager
	passes      *RenderPassCache
	pipes       *PipelineCache
	shader      *CoreShader
	refs        *RefCountRegistry
	staging     *StagingPool
	fences      *FenceManager
	cmds        *CommandBufferManager
	computeCmds *CommandBufferManager

	submitMu sync.Mutex
}

// NewEngine assembles the owned subsystems around an already-created
// CoreDevice. The caller retains ownership of instance/surface/swapchain
// creation. A compute command pool is created only when the device
// reports a compute-capable queue family; NewRecorder(RecorderCompute)
// falls back to the graphics pool otherwise, matching Vulkan's guarantee
// that the graphics family always supports compute too.
func NewEngine(device *CoreDevice, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	mem := NewMemoryManager(device.Device(), device.MemoryProperties(), log)
	passes := NewRenderPassCache(device.Device())
	pipes := NewPipelineCache(device.Device())
	refs := NewRefCountRegistry()
	staging := NewStagingPool(device.Device(), mem)
	fences := NewFenceManager(device.Device(), log)

	cmds, err := NewCommandBufferManager(device.Device(), vk.CommandBufferLevelPrimary, device.GraphicsQueueFamilyIndex(), RecorderGraphics, log)
	if err != nil {
		return nil, err
	}

	var computeCmds *CommandBufferManager
	if device.HasComputeQueue() {
		computeCmds, err = NewCommandBufferManager(device.Device(), vk.CommandBufferLevelPrimary, device.ComputeQueueFamilyIndex(), RecorderCompute, log)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		log:         log,
		device:      device,
		mem:         mem,
		passes:      passes,
		pipes:       pipes,
		shader:      NewCoreShader(map[string]int{}, 4),
		refs:        refs,
		staging:     staging,
		fences:      fences,
		cmds:        cmds,
		computeCmds: computeCmds,
	}, nil
}

func (e *Engine) Device() *CoreDevice             { return e.device }
func (e *Engine) Memory() *MemoryManager          { return e.mem }
func (e *Engine) RenderPasses() *RenderPassCache  { return e.passes }
func (e *Engine) Pipelines() *PipelineCache       { return e.pipes }
func (e *Engine) Shaders() *CoreShader            { return e.shader }
func (e *Engine) Resources() *RefCountRegistry    { return e.refs }
func (e *Engine) Staging() *StagingPool           { return e.staging }

// NewRecorder allocates a fresh primary command buffer from the pool
// matching kind and wraps it in a Command Recorder sharing this engine's
// render-pass cache and resource registry.
func (e *Engine) NewRecorder(kind RecorderKind) (*CommandRecorder, error) {
	pool := e.cmds
	if kind == RecorderCompute && e.computeCmds != nil {
		pool = e.computeCmds
	}
	buf, err := pool.NewCommandBuffer()
	if err != nil {
		return nil, err
	}
	return NewCommandRecorder(e.device.Device(), buf, kind, e.passes, e.refs, e.log), nil
}

// SubmitLock returns the mutex Command Recorders must hold around
// vkQueueSubmit, since a single vk.Queue is not safe for concurrent
// submission from multiple goroutines.
func (e *Engine) SubmitLock() *sync.Mutex { return &e.submitMu }

// NewFence borrows a recyclable fence from the engine's fence manager.
func (e *Engine) NewFence() (vk.Fence, error) { return e.fences.NewFence() }

// CompleteFrame waits on every fence issued since the last call (the
// fence manager's Reset waits, then resets them for reuse), releases
// the deferred resource references tied to those fences, and resets
// both command buffer managers for reuse.
func (e *Engine) CompleteFrame() {
	active := e.fences.ActiveFences()
	e.fences.Reset()
	for _, f := range active {
		e.refs.CompleteFence(f)
	}
	e.cmds.Reset()
	if e.computeCmds != nil {
		e.computeCmds.Reset()
	}
}

// Destroy tears down every owned subsystem. The caller must have already
// waited for the device to go idle.
func (e *Engine) Destroy() {
	e.staging.Destroy()
	e.pipes.Destroy()
	e.passes.Destroy()
	e.mem.Destroy()
	e.fences.Destroy()
	e.cmds.Destroy()
	if e.computeCmds != nil {
		e.computeCmds.Destroy()
	}
}
