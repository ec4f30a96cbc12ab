package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolGetPutTracksInUse(t *testing.T) {
	p := NewPool()
	assert.Equal(t, 0, p.InUse())

	page := p.Get()
	assert.Equal(t, 1, p.InUse())
	assert.Equal(t, 0, page.Used)

	p.Put(page)
	assert.Equal(t, 0, p.InUse())
}

func TestPageRefCountReleasesAtZero(t *testing.T) {
	page := &Page{}
	page.AddRef(2)

	assert.False(t, page.Release(1))
	assert.True(t, page.Release(1))
}

func TestPoolGetResetsRecycledPage(t *testing.T) {
	p := NewPool()
	page := p.Get()
	page.Used = 10
	page.AddRef(3)
	p.Put(page)

	for i := 0; i < 8; i++ {
		page = p.Get()
		if page.Used == 0 && page.refCount == 0 {
			return
		}
		p.Put(page)
	}
	t.Fatalf("recycled page was not reset: Used=%d refCount=%d", page.Used, page.refCount)
}
