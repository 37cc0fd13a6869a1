package system

import (
	"image"
	"sync"
)

// ImagePool recycles canvas-sized *image.RGBA buffers between frames to
// reduce allocation churn during long composites. Buffers are keyed by
// bounds so mismatched sizes never alias.
type ImagePool struct {
	pools map[string]*sync.Pool
	mu    sync.RWMutex
}

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[string]*sync.Pool)}
}

// Get returns a buffer with the given bounds, reusing a returned one when
// available. Contents are unspecified; callers must overwrite every pixel.
func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	key := rect.String()
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.pools[key]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(rect)
				},
			}
			p.pools[key] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

// Put returns a buffer for reuse. The caller must not touch it afterwards.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	key := img.Rect.String()
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
