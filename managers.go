package vkforge

import (
	"log/slog"

	vk "github.com/vulkan-go/vulkan"
)

// FenceManager keeps track of fences which in turn are used to keep track of GPU progress.
// The manager is not thread-safe and for rendering in multiple threads, multiple per-thread managers
// should be used.
type FenceManager struct {
	device vk.Device
	fences []vk.Fence
	count  uint32
	log    *slog.Logger
}

func NewFenceManager(device vk.Device, log *slog.Logger) *FenceManager {
	if log == nil {
		log = slog.Default()
	}
	return &FenceManager{
		device: device,
		log:    log,
	}
}

// Reset resets the state of fence manager. Waits for GPU to trigger all outstanding fences.
// After begin frame returns, it is safe to reuse or delete resources which were used previously.
func (f *FenceManager) Reset() {
	if f.count > 0 {
		vk.WaitForFences(f.device, f.count, f.fences, vk.True, vk.MaxUint64)
		vk.ResetFences(f.device, f.count, f.fences)
		f.log.Debug("fence manager reset", "waited", f.count)
	}
	f.count = 0
}

func (f *FenceManager) NewFence() (vk.Fence, error) {
	if f.count < uint32(len(f.fences)) {
		fence := f.fences[f.count]
		f.count++
		return fence, nil
	}
	var fence vk.Fence
	ret := vk.CreateFence(f.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &fence)
	if isError(ret) {
		return fence, newError(ret)
	}
	f.fences = append(f.fences, fence)
	f.count++
	f.log.Debug("fence manager grew pool", "count", len(f.fences))
	return fence, nil
}

func (f *FenceManager) ActiveFences() []vk.Fence {
	return f.fences[:f.count]
}

func (f *FenceManager) Destroy() {
	f.Reset()
	for i := range f.fences {
		vk.DestroyFence(f.device, f.fences[i], nil)
	}
}

// CommandBufferManager allocates command buffers and recycles them for us.
// This gives us a convenient interface where we can request command buffers for use when rendering.
// The manager is not thread-safe and for rendering in multiple threads, multiple per-thread managers
// should be used. One manager backs one RecorderKind: Engine holds a
// graphics-family manager and, when the device exposes a compute-capable
// family, a second compute-family manager, so a CommandRecorder's pool
// always matches the queue family it will submit to.
type CommandBufferManager struct {
	device             vk.Device
	pool               vk.CommandPool
	buffers            []vk.CommandBuffer
	commandBufferLevel vk.CommandBufferLevel
	kind               RecorderKind
	count              uint32
	log                *slog.Logger
}

// NewCommandBufferManager creates a new instance of this manager. Device is the Vulkan device to use,
// bufferLevel is the command buffer level to use, either vk.CommandBufferLevelPrimary or vk.CommandBufferLevelSecondary.
// queueFamilyIndex is the Vulkan queue family index the pool is bound to, and kind records which
// RecorderKind that family serves (purely descriptive -- Vulkan itself only cares about the index).
func NewCommandBufferManager(device vk.Device,
	bufferLevel vk.CommandBufferLevel, queueFamilyIndex uint32, kind RecorderKind, log *slog.Logger) (*CommandBufferManager, error) {
	if log == nil {
		log = slog.Default()
	}

	var pool vk.CommandPool
	ret := vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamilyIndex,
		// ResetCommandBufferBit allows command buffers to be reset individually.
		Flags: vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)

	if isError(ret) {
		return nil, newError(ret)
	}

	m := &CommandBufferManager{
		pool:               pool,
		device:             device,
		commandBufferLevel: bufferLevel,
		kind:               kind,
		log:                log,
	}
	return m, nil
}

// Reset resets the state of command buffer manager.
// When called, all managed command buffers are assumed to be recycleable.
func (c *CommandBufferManager) Reset() {
	c.count = 0
}

func (c *CommandBufferManager) Destroy() {
	vk.FreeCommandBuffers(c.device, c.pool, uint32(len(c.buffers)), c.buffers)
	vk.DestroyCommandPool(c.device, c.pool, nil)
}

// NewCommandBuffer returns a fresh or recycled command buffer which is in the reset state.
func (c *CommandBufferManager) NewCommandBuffer() (vk.CommandBuffer, error) {
	if c.count < uint32(len(c.buffers)) {
		buf := c.buffers[c.count]
		c.count++
		ret := vk.ResetCommandBuffer(buf,
			vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit))
		if isError(ret) {
			return buf, newError(ret)
		}
		return buf, nil
	}
	idx := c.count
	c.count++
	c.buffers = append(c.buffers, nil)
	ret := vk.AllocateCommandBuffers(c.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.pool,
		Level:              c.commandBufferLevel,
		CommandBufferCount: 1,
	}, c.buffers[idx:])
	err := newError(ret)
	if err == nil {
		c.log.Debug("command buffer manager grew pool", "kind", c.kind, "count", len(c.buffers))
	}
	return c.buffers[idx], err
}
