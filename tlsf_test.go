package vkforge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLSFAllocateWithinCapacity(t *testing.T) {
	pool := newTLSF(1 << 20)

	tok, ok := pool.allocate(4096, 256)
	require.True(t, ok)
	assert.Equal(t, uint64(0), tok.offset%256)
	assert.GreaterOrEqual(t, tok.size, uint64(4096))
}

func TestTLSFAllocateRejectsOversized(t *testing.T) {
	pool := newTLSF(1024)

	_, ok := pool.allocate(1<<20, 1)
	assert.False(t, ok)
}

func TestTLSFFreeCoalescesAdjacentBlocks(t *testing.T) {
	pool := newTLSF(1 << 16)

	a, ok := pool.allocate(1024, 1)
	require.True(t, ok)
	b, ok := pool.allocate(1024, 1)
	require.True(t, ok)
	c, ok := pool.allocate(1024, 1)
	require.True(t, ok)

	before := pool.largestFree()
	pool.free(a)
	pool.free(b)
	pool.free(c)
	after := pool.largestFree()

	assert.Greater(t, after, before)
	assert.Equal(t, uint64(1<<16), after, "freeing every allocation should coalesce back to the full capacity")
}

func TestTLSFReusesFreedSpace(t *testing.T) {
	pool := newTLSF(8192)

	tok, ok := pool.allocate(4096, 1)
	require.True(t, ok)
	pool.free(tok)

	tok2, ok := pool.allocate(4096, 1)
	require.True(t, ok)
	assert.Equal(t, tok.offset, tok2.offset)
}

func TestTLSFAlignmentRespected(t *testing.T) {
	pool := newTLSF(1 << 20)

	for _, align := range []uint64{16, 64, 256, 4096} {
		tok, ok := pool.allocate(37, align)
		require.True(t, ok)
		assert.Zero(t, tok.offset%align)
	}
}

func TestTLSFDoubleFreeIsNoop(t *testing.T) {
	pool := newTLSF(4096)

	tok, ok := pool.allocate(512, 1)
	require.True(t, ok)
	pool.free(tok)
	assert.NotPanics(t, func() { pool.free(tok) })
}
