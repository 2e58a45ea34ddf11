package vkforge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder() *CommandRecorder {
	return NewCommandRecorder(nil, nil, RecorderGraphics, NewRenderPassCache(nil), NewRefCountRegistry(), nil)
}

func TestCommandRecorderStartsReady(t *testing.T) {
	r := newTestRecorder()
	assert.Equal(t, StateReady, r.State())
}

func TestCommandRecorderSetPipelineRejectedBeforeBegin(t *testing.T) {
	r := newTestRecorder()

	err := r.SetPipeline(1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidState})
}

func TestCommandRecorderPreDrawRejectedOutsideRenderPass(t *testing.T) {
	r := newTestRecorder()
	r.state = StateRecording

	err := r.PreDraw()
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidState})
}

func TestCommandRecorderSubmitRejectedBeforeEnd(t *testing.T) {
	r := newTestRecorder()
	r.state = StateRecording
	var submitLock sync.Mutex

	err := r.Submit(nil, &submitLock, nil, nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidState})
}

func TestCommandRecorderUpdateBufferRejectsOversized(t *testing.T) {
	r := newTestRecorder()
	r.state = StateRecording

	err := r.UpdateBuffer(nil, ResourceID(1), 0, make([]byte, 65540))
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: KindOversizedAllocation})
}

func TestCommandRecorderUpdateBufferRejectsUnaligned(t *testing.T) {
	r := newTestRecorder()
	r.state = StateRecording

	err := r.UpdateBuffer(nil, ResourceID(1), 0, make([]byte, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: KindOversizedAllocation})
}

func TestCommandRecorderGrowSetSlots(t *testing.T) {
	r := newTestRecorder()
	require.Len(t, r.boundSets, 4)

	r.growSetSlots(6)
	assert.Len(t, r.boundSets, 7)
	assert.Len(t, r.dirtySets, 7)
}

func TestCommandRecorderDisposeIsTerminal(t *testing.T) {
	r := newTestRecorder()
	r.Dispose()
	assert.Equal(t, StateDisposed, r.State())

	err := r.SetPipeline(1, 1)
	assert.Error(t, err)
}
