// Package clock provides the logical clock driving maturity and emission.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current block height and wall time.
type Clock interface {
	// Block returns the current block height.
	Block() uint64
	// Now returns the current time in Unix seconds.
	Now() int64
}

// Manual is a Clock advanced explicitly. Safe for concurrent use.
type Manual struct {
	mu    sync.RWMutex
	block uint64
	now   int64
}

// NewManual creates a manual clock at the given block and Unix time.
func NewManual(block uint64, now int64) *Manual {
	return &Manual{block: block, now: now}
}

// Block returns the current block height.
func (m *Manual) Block() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.block
}

// Now returns the current Unix time.
func (m *Manual) Now() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// AdvanceBlocks moves the height forward by n blocks.
func (m *Manual) AdvanceBlocks(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block += n
}

// AdvanceTime moves the wall time forward by d.
func (m *Manual) AdvanceTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += int64(d / time.Second)
}

// Set jumps to an absolute block and time. Going backwards is ignored.
func (m *Manual) Set(block uint64, now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block > m.block {
		m.block = block
	}
	if now > m.now {
		m.now = now
	}
}

// Wall derives block height from elapsed wall time at a fixed block interval.
type Wall struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

// NewWall creates a wall clock where block 0 starts at genesis.
func NewWall(genesis time.Time, interval time.Duration) *Wall {
	if interval <= 0 {
		interval = time.Second
	}
	return &Wall{genesis: genesis, interval: interval, now: time.Now}
}

// Block returns the number of whole intervals since genesis.
func (w *Wall) Block() uint64 {
	elapsed := w.now().Sub(w.genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / w.interval)
}

// Now returns the current Unix time.
func (w *Wall) Now() int64 {
	return w.now().Unix()
}

var (
	_ Clock = (*Manual)(nil)
	_ Clock = (*Wall)(nil)
)
