package clock

import (
	"sync"
	"time"
)

// Physical is an adjustable wall clock: adjustedTime = systemTime + offset.
// The offset is persisted across restarts by the caller (spec section 3).
type Physical struct {
	mu     sync.RWMutex
	offset time.Duration
	now    func() time.Time
}

// NewPhysical creates a physical clock with the given starting offset
// (e.g. loaded from the node's persisted state) and the real wall clock
// as its time source.
func NewPhysical(startingOffset time.Duration) *Physical {
	return &Physical{offset: startingOffset, now: time.Now}
}

// Now returns the adjusted time.
func (p *Physical) Now() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.now().Add(p.offset)
}

// Offset returns the current offset as a time.Duration, for persistence.
func (p *Physical) Offset() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offset
}

// AdjustBy adds delta to the offset (spec section 4.4 step 7:
// offset <- offset + adjustment).
func (p *Physical) AdjustBy(delta time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset += delta
}

// SetOffset replaces the offset outright (spec section 4.4 step 5:
// offset_self <- offset_self - avg).
func (p *Physical) SetOffset(offset time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = offset
}
