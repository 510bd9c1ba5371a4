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

package pic

import (
	"errors"
	"log"

	"github.com/andreas-jonsson/xtchipset/emulator/processor"
	"github.com/andreas-jonsson/xtchipset/emulator/scheduler"
)

const (
	PrimaryCommandPort   uint16 = 0x20
	PrimaryDataPort      uint16 = 0x21
	SecondaryCommandPort uint16 = 0xA0
	SecondaryDataPort    uint16 = 0xA1
)

var (
	ErrNoInterrupts    = errors.New("no interrupts")
	ErrUnsupportedMode = errors.New("unsupported mode")
)

type Stats struct {
	Dispatched [16]uint64
	Spurious   uint64
}

// Device is the primary/secondary controller pair of an AT, or only the
// primary when XT is set.
type Device struct {
	XT bool

	// VectorBase holds the primary and secondary vector bases loaded on Reset.
	VectorBase [2]byte

	// OnDispatch is called for every interrupt handed to the CPU.
	OnDispatch func(irq, vector int)

	clock     *scheduler.Clock
	primary   Controller
	secondary Controller
	stats     Stats
}

func New(clock *scheduler.Clock, xt bool) *Device {
	m := &Device{XT: xt, VectorBase: [2]byte{0x08, 0x70}}
	m.Attach(clock)
	return m
}

// Attach connects the pair to the clock whose CPU budget is stalled when an
// interrupt becomes pending.
func (m *Device) Attach(clock *scheduler.Clock) {
	m.clock = clock
	m.primary = Controller{name: "primary", stall: clock.Stall}
	m.secondary = Controller{name: "secondary", cascade: &m.primary}
	m.Reset()
}

func (m *Device) Install(p processor.Processor) error {
	if m.XT {
		return p.InstallIODeviceAt(m, PrimaryCommandPort, PrimaryDataPort)
	}
	return p.InstallIODeviceAt(m, PrimaryCommandPort, PrimaryDataPort, SecondaryCommandPort, SecondaryDataPort)
}

func (m *Device) Name() string {
	return "Programmable Interrupt Controller (Intel 8259)"
}

// Reset puts both chips in the state a DOS machine leaves them in.
func (m *Device) Reset() {
	m.primary.reset(m.VectorBase[0] & 0xF8)
	m.secondary.reset(m.VectorBase[1] & 0xF8)
	m.stats = Stats{}

	m.SetIRQMask(0, false) // system timer
	m.SetIRQMask(1, false) // keyboard
	m.SetIRQMask(2, false) // cascade
	m.SetIRQMask(8, false) // RTC
}

// Step reports unsupported configurations requested by the guest.
func (m *Device) Step(int) error {
	return m.Err()
}

func (m *Device) Err() error {
	if err := m.primary.Err(); err != nil {
		return err
	}
	return m.secondary.Err()
}

func (m *Device) Primary() *Controller {
	return &m.primary
}

func (m *Device) Secondary() *Controller {
	return &m.secondary
}

func (m *Device) Stats() Stats {
	return m.stats
}

// IRQCheck reports if the CPU should call GetInterrupt.
func (m *Device) IRQCheck() bool {
	return m.primary.irqCheck
}

func (m *Device) route(irq int) (*Controller, byte, bool) {
	if m.XT {
		if irq == 9 {
			irq = 2
		}
		if irq >= 8 {
			log.Printf("pic: IRQ %d requires a secondary controller", irq)
			return nil, 0, false
		}
	} else if irq == 2 {
		// What was IRQ 2 on the XT arrives on IRQ 9 on the AT.
		irq = 9
	}

	switch {
	case irq < 0 || irq > 15:
		log.Printf("pic: invalid IRQ %d", irq)
		return nil, 0, false
	case irq > 7:
		return &m.secondary, byte(irq - 8), true
	default:
		return &m.primary, byte(irq), true
	}
}

// RaiseIRQ sets the request latch of irq.
func (m *Device) RaiseIRQ(irq int) {
	c, line, ok := m.route(irq)
	if !ok {
		return
	}

	old := m.clock.Cycles
	c.raise(line)
	if old != m.clock.Cycles {
		// Raised from a port write in the middle of a CPU run. Real hardware
		// executes a few more instructions before taking the interrupt.
		m.clock.CycleLeft -= 2
		m.clock.Cycles = 2
	}
}

// LowerIRQ clears the request latch of irq.
func (m *Device) LowerIRQ(irq int) {
	if c, line, ok := m.route(irq); ok {
		c.lower(line)
	}
}

func (m *Device) SetIRQMask(irq int, masked bool) {
	if irq < 0 || irq > 15 || (m.XT && irq > 7) {
		return
	}

	c := &m.primary
	if irq > 7 {
		c = &m.secondary
	}
	bit := byte(1) << (irq & 7)
	mask := c.imr &^ bit
	if masked {
		mask |= bit
	}
	c.setIMR(mask)
}

// GetInterrupt starts servicing the highest priority pending line and
// returns its vector. The CPU calls it when IRQCheck is set and interrupts
// are enabled.
func (m *Device) GetInterrupt() (int, error) {
	if !m.primary.irqCheck {
		return 0, ErrNoInterrupts
	}
	defer func() { m.primary.irqCheck = false }()

	line := m.primary.nextLine()
	if line == noIRQ {
		return 0, ErrNoInterrupts
	}
	if line == cascadeLine && !m.XT {
		return m.startSecondary()
	}

	m.primary.startIRQ(line)
	return m.dispatched(int(line), int(m.primary.vectorBase)+int(line)), nil
}

func (m *Device) startSecondary() (int, error) {
	line := m.secondary.nextLine()
	if line == noIRQ {
		log.Print("pic: IRQ 2 is active on the primary without a pending secondary line")
		m.stats.Spurious++
		m.primary.lower(cascadeLine)
		return 0, ErrNoInterrupts
	}

	m.secondary.startIRQ(line)
	m.primary.startIRQ(cascadeLine)
	return m.dispatched(int(line)+8, int(m.secondary.vectorBase)+int(line)), nil
}

func (m *Device) dispatched(irq, vector int) int {
	m.stats.Dispatched[irq]++
	if m.OnDispatch != nil {
		m.OnDispatch(irq, vector)
	}
	return vector
}

func (m *Device) In(port uint16) byte {
	switch port {
	case PrimaryCommandPort:
		return m.primary.readCommand()
	case PrimaryDataPort:
		return m.primary.readData()
	case SecondaryCommandPort:
		return m.secondary.readCommand()
	case SecondaryDataPort:
		return m.secondary.readData()
	}
	return 0xFF
}

func (m *Device) Out(port uint16, data byte) {
	switch port {
	case PrimaryCommandPort:
		m.primary.writeCommand(data)
	case PrimaryDataPort:
		m.primary.writeData(data)
	case SecondaryCommandPort:
		m.secondary.writeCommand(data)
	case SecondaryDataPort:
		m.secondary.writeData(data)
	}
}

var _ processor.InterruptController = (*Device)(nil)
