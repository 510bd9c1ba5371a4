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

package dma

import (
	"errors"
	"log"

	"github.com/andreas-jonsson/xtchipset/emulator/memory"
	"github.com/andreas-jonsson/xtchipset/emulator/processor"
)

var ErrNoController = errors.New("no DMA controller")

const (
	secondaryFirstPort uint16 = 0xC0
	secondaryLastPort  uint16 = 0xDF
)

// Options selects the hardware variant.
type Options struct {
	Primary   bool
	Secondary bool

	// ExtraPageRegisters keeps the unused ports of 0x80-0x8F as scratch bytes.
	ExtraPageRegisters bool

	// PageRegistersWriteOnly emulates PC/XT boards where page registers read 0xFF.
	PageRegistersWriteOnly bool

	AllowDecrement bool
}

func DefaultOptions() Options {
	return Options{
		Primary:            true,
		Secondary:          true,
		ExtraPageRegisters: true,
		AllowDecrement:     true,
	}
}

type portConflict struct {
	name    string
	release func()
}

// Device is the port-mapped pair of DMA controllers. Controllers are created
// the first time one of their channels is looked up.
type Device struct {
	// Memory is the bus transfers read and write. Install sets it to the
	// processor if it is nil.
	Memory memory.Memory

	// OnEvent is called for every channel callback event.
	OnEvent func(channel int, ev Event)

	opt         Options
	proc        processor.Processor
	controllers [2]*Controller
	extraPages  [16]byte
	wrapping    uint32
	conflicts   []portConflict
}

func New(mem memory.Memory, opt Options) *Device {
	if opt.Secondary {
		opt.Primary = true
	}
	return &Device{Memory: mem, opt: opt, wrapping: 0xFFFF}
}

func (m *Device) Install(p processor.Processor) error {
	m.proc = p
	if m.Memory == nil {
		m.Memory = p
	}
	if m.opt.Primary {
		if err := p.InstallIODevice(m, 0x00, 0x0F); err != nil {
			return err
		}
		if err := p.InstallIODevice(m, 0x80, 0x87); err != nil {
			return err
		}
	}
	if m.opt.Secondary {
		if err := p.InstallIODevice(m, 0x88, 0x8F); err != nil {
			return err
		}
	}
	if m.controllers[1] != nil {
		return p.InstallIODevice(m, secondaryFirstPort, secondaryLastPort)
	}
	return nil
}

func (m *Device) Name() string {
	return "Direct Memory Access Controller (Intel 8237)"
}

func (m *Device) Reset() {
	for _, ctrl := range m.controllers {
		if ctrl != nil {
			ctrl.reset()
		}
	}
	m.extraPages = [16]byte{}
	m.wrapping = 0xFFFF
}

func (m *Device) Step(int) error {
	return nil
}

// RegisterPortConflict adds a device that must give up ports 0xC0-0xDF
// when the secondary controller is created.
func (m *Device) RegisterPortConflict(name string, release func()) {
	m.conflicts = append(m.conflicts, portConflict{name, release})
}

// Controller returns controller 0 or 1, creating it if it is enabled.
func (m *Device) Controller(n int) *Controller {
	if n < 0 || n > 1 {
		return nil
	}
	if ctrl := m.controllers[n]; ctrl != nil {
		return ctrl
	}

	switch {
	case n == 0 && !m.opt.Primary:
		return nil
	case n == 1 && !m.opt.Secondary:
		return nil
	}

	if n == 1 {
		for _, c := range m.conflicts {
			log.Printf("dma: %s releases ports 0x%X-0x%X", c.name, secondaryFirstPort, secondaryLastPort)
			c.release()
		}
		m.conflicts = nil
	}

	ctrl := newController(m, n)
	m.controllers[n] = ctrl

	if n == 1 && m.proc != nil {
		if err := m.proc.InstallIODevice(m, secondaryFirstPort, secondaryLastPort); err != nil {
			log.Print("dma: could not map secondary controller: ", err)
		}
	}
	return ctrl
}

// Channel returns global channel n, 0-7, or nil if its controller is not
// available.
func (m *Device) Channel(n int) *Channel {
	if n < 0 || n > 7 {
		return nil
	}
	ctrl := m.Controller(n / 4)
	if ctrl == nil {
		return nil
	}
	return ctrl.channels[n%4]
}

// createdChannel is Channel without creating the secondary controller, so
// guest reads never evict devices sharing its ports.
func (m *Device) createdChannel(n int) *Channel {
	if n < 4 {
		return m.Channel(n)
	}
	if ctrl := m.controllers[1]; ctrl != nil && n <= 7 {
		return ctrl.channels[n%4]
	}
	return nil
}

// Channels returns the registers of every created channel.
func (m *Device) Channels() []ChannelRegisters {
	var regs []ChannelRegisters
	for _, ctrl := range m.controllers {
		if ctrl == nil {
			continue
		}
		for _, c := range ctrl.channels {
			regs = append(regs, c.Registers())
		}
	}
	return regs
}

// CloseSecondController removes channels 4-7. They can not be created again.
func (m *Device) CloseSecondController() {
	m.controllers[1] = nil
	m.opt.Secondary = false
}

func (m *Device) SecondControllerAvailable() bool {
	return m.controllers[1] != nil
}

// SetWrapping sets the mask applied to channel addresses.
func (m *Device) SetWrapping(mask uint32) {
	m.wrapping = mask
}

func pageChannel(port uint16) (int, bool) {
	switch port {
	case 0x81:
		return 2, true
	case 0x82:
		return 3, true
	case 0x83:
		return 1, true
	case 0x87:
		return 0, true
	case 0x89:
		return 6, true
	case 0x8A:
		return 7, true
	case 0x8B:
		return 5, true
	case 0x8F:
		return 4, true
	}
	return 0, false
}

func (m *Device) In(port uint16) byte {
	switch {
	case port < 0x10:
		if ctrl := m.Controller(0); ctrl != nil {
			return ctrl.ReadReg(int(port))
		}
	case port >= secondaryFirstPort && port <= secondaryLastPort:
		if ctrl := m.controllers[1]; ctrl != nil {
			return ctrl.ReadReg(int(port-secondaryFirstPort) >> 1)
		}
	case port >= 0x80 && port <= 0x8F:
		if m.opt.PageRegistersWriteOnly {
			return 0xFF
		}
		if n, ok := pageChannel(port); ok {
			if c := m.createdChannel(n); c != nil {
				return c.pageNum
			}
			return 0xFF
		}
		if m.opt.ExtraPageRegisters {
			return m.extraPages[port&0xF]
		}
	}
	log.Printf("dma: reading undefined port 0x%X", port)
	return 0xFF
}

func (m *Device) Out(port uint16, data byte) {
	switch {
	case port < 0x10:
		if ctrl := m.Controller(0); ctrl != nil {
			ctrl.WriteReg(int(port), data, m.opt.AllowDecrement)
			return
		}
	case port >= secondaryFirstPort && port <= secondaryLastPort:
		if ctrl := m.controllers[1]; ctrl != nil {
			ctrl.WriteReg(int(port-secondaryFirstPort)>>1, data, m.opt.AllowDecrement)
			return
		}
	case port >= 0x80 && port <= 0x8F:
		m.extraPages[port&0xF] = data
		if n, ok := pageChannel(port); ok {
			if c := m.Channel(n); c != nil {
				c.SetPage(data)
			}
			return
		}
		if m.opt.ExtraPageRegisters {
			return
		}
	}
	log.Printf("dma: writing undefined port 0x%X", port)
}
