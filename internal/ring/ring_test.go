package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingContains(t *testing.T) {
	r := NewRing(4)
	assert.False(t, r.Contains(0))
	r.Add(10)
	r.Add(20)
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(20))
	assert.False(t, r.Contains(30))
	assert.Equal(t, 2, r.Len())
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(4)
	for id := uint16(0); id < 4; id++ {
		r.Add(id)
	}
	assert.Equal(t, 4, r.Len())
	assert.True(t, r.Contains(0))

	// Fifth insertion evicts the oldest id only
	r.Add(4)
	assert.False(t, r.Contains(0))
	assert.True(t, r.Contains(1))
	assert.True(t, r.Contains(4))
	assert.Equal(t, 4, r.Len())
}

func TestRingRecentWindowAlwaysQueryable(t *testing.T) {
	r := NewRing(8)
	for id := uint16(0); id < 100; id++ {
		r.Add(id)
	}
	// The most recent capacity insertions never report a false negative
	for id := uint16(92); id < 100; id++ {
		assert.True(t, r.Contains(id))
	}
	assert.False(t, r.Contains(91))
}

func TestRingWraparoundIds(t *testing.T) {
	r := NewRing(4)
	r.Add(0xFFFF)
	r.Add(0)
	assert.True(t, r.Contains(0xFFFF))
	assert.True(t, r.Contains(0))
}

func TestRingReset(t *testing.T) {
	r := NewRing(4)
	r.Add(1)
	r.Reset()
	assert.False(t, r.Contains(1))
	assert.Equal(t, 0, r.Len())
}

func TestRingDefaultCapacity(t *testing.T) {
	r := NewRing(0)
	for id := uint16(0); id < DefaultCapacity; id++ {
		r.Add(id)
	}
	assert.True(t, r.Contains(0))
	r.Add(DefaultCapacity)
	assert.False(t, r.Contains(0))
}
