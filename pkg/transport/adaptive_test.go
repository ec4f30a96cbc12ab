package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdaptiveDecideDeniesAtMaxNumWaits(t *testing.T) {
	a := NewAdaptiveState(100 * time.Millisecond)
	now := time.Now()

	// maxNumWaits starts at zero: the very first decision must deny.
	assert.False(t, a.Decide(now))
}

func TestAdaptiveDecideDeniesPastMaxWait(t *testing.T) {
	a := NewAdaptiveState(10 * time.Millisecond)
	a.maxNumWaits = 5
	now := time.Now()

	assert.True(t, a.Decide(now))
	later := now.Add(20 * time.Millisecond)
	assert.False(t, a.Decide(later))
}

func TestAdaptiveRecordSendResetsWaitCounters(t *testing.T) {
	a := NewAdaptiveState(50 * time.Millisecond)
	a.maxNumWaits = 3
	now := time.Now()

	a.Decide(now)
	assert.Equal(t, 1, a.numWaits)

	a.RecordSend(now.Add(5 * time.Millisecond))
	assert.Equal(t, 0, a.numWaits)
	assert.True(t, a.firstBuffered.IsZero())
	assert.Equal(t, 1, a.countAtCurrent)
}

func TestAdaptiveAdjustTightensAboveHalfLimit(t *testing.T) {
	a := NewAdaptiveState(10 * time.Millisecond) // half = 5ms
	a.maxNumWaits = 4
	a.sumAtCurrent = 20 * time.Millisecond
	a.countAtCurrent = 1

	a.Adjust()
	assert.Equal(t, 3, a.maxNumWaits)
	assert.Equal(t, 0, a.countAtCurrent)
}

func TestAdaptiveAdjustLoosensBelowHalfLimit(t *testing.T) {
	a := NewAdaptiveState(10 * time.Millisecond) // half = 5ms
	a.maxNumWaits = 2
	a.sumAtNextTier = 1 * time.Millisecond
	a.countAtNextTier = 1

	a.Adjust()
	assert.Equal(t, 3, a.maxNumWaits)
}

func TestAdaptiveAdjustNeverExceedsMaxSendsTracked(t *testing.T) {
	a := NewAdaptiveState(10 * time.Millisecond)
	a.maxNumWaits = MaxSendsTracked
	a.sumAtNextTier = 1 * time.Millisecond
	a.countAtNextTier = 1

	a.Adjust()
	assert.Equal(t, MaxSendsTracked, a.maxNumWaits)
}

func TestAdaptiveRegistrySnapshot(t *testing.T) {
	r := newAdaptiveRegistry()
	n1 := &SendNode{peerKey: "a"}
	n2 := &SendNode{peerKey: "b"}
	r.add(n1.peerKey, n1)
	r.add(n2.peerKey, n2)

	snap := r.snapshot()
	assert.Len(t, snap, 2)

	r.remove(n1.peerKey)
	assert.Len(t, r.snapshot(), 1)
}
