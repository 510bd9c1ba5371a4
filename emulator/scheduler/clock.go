/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package scheduler

import (
	"math"
	"sync/atomic"
)

// DefaultCycleMax is the number of CPU cycles emulated per virtual millisecond.
const DefaultCycleMax = 3000

// Clock tracks virtual time. Ticks counts whole emulated milliseconds and the
// position inside the current millisecond is derived from the CPU cycle budget.
//
// Cycles is the run-length the CPU is currently executing, CycleLeft is what
// remains of the millisecond after that run and CycleMax is the size of a
// full millisecond. All fields belong to the emulation goroutine. Other
// goroutines must use Snapshot.
type Clock struct {
	Ticks     uint64
	CycleMax  int64
	CycleLeft int64
	Cycles    int64

	nextCycleMax int64
	snapshot     atomic.Uint64
}

func NewClock(cycleMax int64) *Clock {
	if cycleMax <= 0 {
		cycleMax = DefaultCycleMax
	}
	return &Clock{CycleMax: cycleMax, CycleLeft: cycleMax}
}

// Reset rewinds virtual time to zero.
func (c *Clock) Reset() {
	c.Ticks = 0
	c.CycleLeft = c.CycleMax
	c.Cycles = 0
	c.snapshot.Store(0)
}

// SetCycleMax changes the cycles per millisecond from the next tick on.
func (c *Clock) SetCycleMax(n int64) {
	if n > 0 {
		c.nextCycleMax = n
	}
}

// TickIndexND is the number of cycles consumed in the current millisecond.
func (c *Clock) TickIndexND() int64 {
	return c.CycleMax - c.CycleLeft - c.Cycles
}

// TickIndex is the fractional position inside the current millisecond.
func (c *Clock) TickIndex() float64 {
	return float64(c.TickIndexND()) / float64(c.CycleMax)
}

// FullIndex is the current virtual time in milliseconds.
func (c *Clock) FullIndex() float64 {
	return float64(c.Ticks) + c.TickIndex()
}

// MakeCycles converts a duration in virtual milliseconds to CPU cycles.
func (c *Clock) MakeCycles(ms float64) int64 {
	return int64(ms * float64(c.CycleMax))
}

// Stall ends the CPU's current run immediately. The unused cycles are
// returned to the millisecond budget.
func (c *Clock) Stall() {
	c.CycleLeft += c.Cycles
	c.Cycles = 0
}

// Consume is called by the CPU loop for the cycles it executed.
func (c *Clock) Consume(n int64) {
	c.Cycles -= n
}

func (c *Clock) startTick() {
	c.Ticks++
	if c.nextCycleMax > 0 {
		c.CycleMax = c.nextCycleMax
		c.nextCycleMax = 0
	}
	c.CycleLeft = c.CycleMax
	c.Cycles = 0
}

// Publish stores the current virtual time for readers on other goroutines.
func (c *Clock) Publish() {
	if v := c.FullIndex(); v >= c.Snapshot() {
		c.snapshot.Store(math.Float64bits(v))
	}
}

// Snapshot returns the virtual time last published by the emulation goroutine.
// It never goes backwards and is safe to call from any goroutine.
func (c *Clock) Snapshot() float64 {
	return math.Float64frombits(c.snapshot.Load())
}
