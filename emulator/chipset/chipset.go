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

package chipset

import (
	"errors"
	"fmt"
	"log"

	"github.com/andreas-jonsson/xtchipset/emulator/peripheral"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral/dma"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral/pic"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral/pit"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral/ram"
	"github.com/andreas-jonsson/xtchipset/emulator/scheduler"
)

// ErrStopped is returned by Run after Stop.
var ErrStopped = errors.New("stopped")

type Config struct {
	CycleMax  int64
	QueueSize int
	RAMSize   int

	// XT leaves out the secondary interrupt controller.
	XT         bool
	VectorBase [2]byte

	DMA         dma.Options
	DMAWrapping uint32
}

func DefaultConfig() Config {
	return Config{
		CycleMax:   scheduler.DefaultCycleMax,
		QueueSize:  scheduler.DefaultQueueSize,
		RAMSize:    ram.DefaultSize,
		VectorBase: [2]byte{0x08, 0x70},
		DMA:        dma.DefaultOptions(),
	}
}

// CPU is what the chipset needs from the processor it drives.
type CPU interface {
	InterruptsEnabled() bool
	Interrupt(vector int) error
	Execute(cycles int64) (int64, error)
}

// Chipset owns the virtual clock and every device timed by it. It is only
// used from the emulation goroutine.
type Chipset struct {
	Clock     *scheduler.Clock
	Scheduler *scheduler.Scheduler

	PIC *pic.Device
	DMA *dma.Device
	PIT *pit.Device
	RAM *ram.Device

	err error
}

func New(cfg Config) *Chipset {
	clock := scheduler.NewClock(cfg.CycleMax)
	sched := scheduler.New(clock, cfg.QueueSize)

	c := &Chipset{
		Clock:     clock,
		Scheduler: sched,
		PIC:       pic.New(clock, cfg.XT),
		DMA:       dma.New(nil, cfg.DMA),
		PIT:       pit.New(sched),
		RAM:       ram.New(cfg.RAMSize),
	}
	c.RAM.Clear = true
	if cfg.VectorBase != [2]byte{} {
		c.PIC.VectorBase = cfg.VectorBase
		c.PIC.Reset()
	}
	if cfg.DMAWrapping != 0 {
		c.DMA.SetWrapping(cfg.DMAWrapping)
	}
	return c
}

// Peripherals lists the chipset devices in install order.
func (c *Chipset) Peripherals() []peripheral.Peripheral {
	return []peripheral.Peripheral{c.RAM, c.PIC, c.DMA, c.PIT}
}

// Reset rewinds virtual time and drops every pending event.
func (c *Chipset) Reset() {
	c.Clock.Reset()
	c.Scheduler.Reset()
	for _, d := range c.Peripherals() {
		d.Reset()
	}
	c.err = nil
}

// Err returns the error that stopped the chipset.
func (c *Chipset) Err() error {
	return c.err
}

func (c *Chipset) fail(err error) error {
	if c.err == nil {
		c.err = err
		log.Print("chipset: ", err)
	}
	return err
}

// Stop makes the current and every later Run return ErrStopped. Like every
// other method it must be called from the emulation goroutine, typically
// from a tick handler.
func (c *Chipset) Stop() {
	c.fail(ErrStopped)
}

func (c *Chipset) DMAChannel(n int) *dma.Channel {
	return c.DMA.Channel(n)
}

// RunQueue fires due events and, if an interrupt is pending and the CPU
// accepts it, delivers it. It returns false at the end of the millisecond.
func (c *Chipset) RunQueue(cpu CPU) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if !c.Scheduler.RunQueue() {
		return false, nil
	}
	if c.PIC.IRQCheck() && cpu.InterruptsEnabled() {
		vec, err := c.PIC.GetInterrupt()
		if err == nil {
			if err := cpu.Interrupt(vec); err != nil {
				return false, c.fail(fmt.Errorf("interrupt 0x%X: %w", vec, err))
			}
		}
	}
	if err := c.PIC.Err(); err != nil {
		return false, c.fail(err)
	}
	return true, nil
}

// RunMillisecond executes one virtual millisecond.
func (c *Chipset) RunMillisecond(cpu CPU) error {
	for {
		more, err := c.RunQueue(cpu)
		if err != nil {
			return err
		}
		if !more {
			break
		}

		want := c.Clock.Cycles
		n, err := cpu.Execute(want)
		if n <= 0 || n > c.Clock.Cycles {
			n = c.Clock.Cycles
		}
		c.Clock.Consume(n)
		if err != nil {
			return c.fail(err)
		}
	}
	c.Scheduler.Tick()
	return nil
}

// Run executes ms virtual milliseconds.
func (c *Chipset) Run(cpu CPU, ms int) error {
	for i := 0; i < ms; i++ {
		if err := c.RunMillisecond(cpu); err != nil {
			return err
		}
	}
	return nil
}

// State is a copy of the chipset registers that is safe to hand to another
// goroutine.
type State struct {
	Ticks uint64
	Time  float64

	Primary, Secondary pic.RegisterSet
	IRQCheck           bool
	Interrupts         pic.Stats

	DMA []dma.ChannelRegisters

	Events     []scheduler.EventInfo
	FreeEvents int

	Err string
}

func (c *Chipset) State() State {
	s := State{
		Ticks:      c.Clock.Ticks,
		Time:       c.Clock.FullIndex(),
		Primary:    c.PIC.Primary().Registers(),
		Secondary:  c.PIC.Secondary().Registers(),
		IRQCheck:   c.PIC.IRQCheck(),
		Interrupts: c.PIC.Stats(),
		DMA:        c.DMA.Channels(),
		Events:     c.Scheduler.Events(),
		FreeEvents: c.Scheduler.Free(),
	}
	if c.err != nil {
		s.Err = c.err.Error()
	}
	return s
}
