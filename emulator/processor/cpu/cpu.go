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

package cpu

import (
	"errors"
	"log"

	"github.com/andreas-jonsson/xtchipset/emulator/memory"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral"
	"github.com/andreas-jonsson/xtchipset/emulator/processor"
)

const (
	MaxPeripherals = 32

	pageShift = 12
	numPages  = (memory.AddressMask + 1) >> pageShift
)

// CPU is the bus side of a processor. It has no instruction decoder, time
// passes in whole runs handed out by the chipset and hardware interrupts are
// delivered to installed handlers.
type CPU struct {
	// IF is the interrupt enable flag.
	IF bool

	stats        processor.Stats
	peripherals  []peripheral.Peripheral
	pic          processor.InterruptController
	interceptors [0x100]processor.InterruptHandler
	lastVector   int

	iomap         [0x10000]byte
	ioPeripherals [MaxPeripherals]memory.IO

	mmap           [numPages]byte
	memPeripherals [MaxPeripherals]memory.Memory
}

func NewCPU(peripherals []peripheral.Peripheral) (*CPU, []error) {
	p := &CPU{peripherals: peripherals, lastVector: -1}

	dummyIO := &memory.DummyIO{}
	for i := range p.ioPeripherals[:] {
		p.ioPeripherals[i] = dummyIO
	}

	dummyMem := &memory.DummyMemory{}
	for i := range p.memPeripherals[:] {
		p.memPeripherals[i] = dummyMem
	}

	for i := 1; i <= len(peripherals) && i < MaxPeripherals; i++ {
		if dev, ok := peripherals[i-1].(memory.IO); ok {
			p.ioPeripherals[i] = dev
		}
		if dev, ok := peripherals[i-1].(memory.Memory); ok {
			p.memPeripherals[i] = dev
		}
	}

	return p, p.installPeripherals()
}

func (p *CPU) installPeripherals() []error {
	var errs []error
	for _, d := range p.peripherals {
		log.Print("Installing peripheral: ", d.Name())
		if err := d.Install(p); err != nil {
			errs = append(errs, err)
		}
		if pic, ok := d.(processor.InterruptController); ok {
			p.pic = pic
		}
	}
	if p.pic == nil {
		errs = append(errs, errors.New("no interrupt controller detected"))
	}
	return errs
}

func (p *CPU) Close() {
	for _, d := range p.peripherals {
		if cd, b := d.(peripheral.PeripheralCloser); b {
			if err := cd.Close(); err != nil {
				log.Print("Failed to close peripheral: ", err)
			}
		}
	}
}

// GetStats returns the counters since the last call.
func (p *CPU) GetStats() processor.Stats {
	s := p.stats
	p.stats = processor.Stats{}
	return s
}

func (p *CPU) GetInterruptController() processor.InterruptController {
	return p.pic
}

func (p *CPU) Reset() {
	log.Print("CPU reset!")

	p.IF = true
	p.lastVector = -1
	for _, d := range p.peripherals {
		d.Reset()
	}
}

// InterruptsEnabled reports if the CPU accepts hardware interrupts.
func (p *CPU) InterruptsEnabled() bool {
	return p.IF
}

// LastVector is the most recent hardware interrupt vector, or -1.
func (p *CPU) LastVector() int {
	return p.lastVector
}

// Interrupt delivers a hardware interrupt. Without an installed handler the
// interrupt is counted and dropped.
func (p *CPU) Interrupt(n int) error {
	if n < 0 || n > 0xFF {
		return errors.New("invalid interrupt number")
	}
	p.stats.NumInterrupts++
	p.lastVector = n

	if handler := p.interceptors[n]; handler != nil {
		if err := handler.HandleInterrupt(n); err != nil && err != processor.ErrInterruptNotHandled {
			return err
		}
	}
	return nil
}

// Execute runs for up to cycles and returns how many were used. Peripherals
// are stepped once with the whole run.
func (p *CPU) Execute(cycles int64) (int64, error) {
	if cycles <= 0 {
		return 0, nil
	}
	p.stats.NumCycles += uint64(cycles)
	for _, d := range p.peripherals {
		if err := d.Step(int(cycles)); err != nil {
			return cycles, err
		}
	}
	return cycles, nil
}

func (p *CPU) GetMappedMemoryDevice(addr memory.Pointer) memory.Memory {
	return p.memPeripherals[p.mmap[addr.Masked()>>pageShift]]
}

func (p *CPU) GetMappedIODevice(port uint16) memory.IO {
	return p.ioPeripherals[p.iomap[port]]
}

func (p *CPU) InByte(port uint16) byte {
	p.stats.RX++
	return p.GetMappedIODevice(port).In(port)
}

func (p *CPU) OutByte(port uint16, data byte) {
	p.stats.TX++
	p.GetMappedIODevice(port).Out(port, data)
}

func (p *CPU) InWord(port uint16) uint16 {
	return uint16(p.InByte(port)) | (uint16(p.InByte(port+1)) << 8)
}

func (p *CPU) OutWord(port uint16, data uint16) {
	p.OutByte(port, byte(data&0xFF))
	p.OutByte(port+1, byte(data>>8))
}

func (p *CPU) ReadByte(addr memory.Pointer) byte {
	p.stats.RX++
	addr = addr.Masked()
	return p.GetMappedMemoryDevice(addr).ReadByte(addr)
}

func (p *CPU) WriteByte(addr memory.Pointer, data byte) {
	p.stats.TX++
	addr = addr.Masked()
	p.GetMappedMemoryDevice(addr).WriteByte(addr, data)
}

func (p *CPU) ReadWord(addr memory.Pointer) uint16 {
	return uint16(p.ReadByte(addr)) | (uint16(p.ReadByte(addr+1)) << 8)
}

func (p *CPU) WriteWord(addr memory.Pointer, data uint16) {
	p.WriteByte(addr, byte(data&0xFF))
	p.WriteByte(addr+1, byte(data>>8))
}

func (p *CPU) InstallInterruptHandler(num int, handler processor.InterruptHandler) error {
	if num < 0 || num > 0xFF {
		return errors.New("invalid interrupt number")
	}
	p.interceptors[num] = handler
	return nil
}

// InstallMemoryDevice maps the 4K pages covering from-to to device.
func (p *CPU) InstallMemoryDevice(device memory.Memory, from, to memory.Pointer) error {
	if from > to || to > memory.AddressMask {
		return errors.New("invalid memory range")
	}
	for i, d := range p.memPeripherals[:] {
		if d == device {
			for pg := from >> pageShift; pg <= to>>pageShift; pg++ {
				p.mmap[pg] = byte(i)
			}
			return nil
		}
	}
	return errors.New("could not find peripheral")
}

func (p *CPU) InstallIODevice(device memory.IO, from, to uint16) error {
	for i, d := range p.ioPeripherals[:] {
		if d == device {
			for port := int(from); port <= int(to); port++ {
				p.iomap[port] = byte(i)
			}
			return nil
		}
	}
	return errors.New("could not find peripheral")
}

func (p *CPU) InstallIODeviceAt(device memory.IO, port ...uint16) error {
	for _, a := range port {
		if err := p.InstallIODevice(device, a, a); err != nil {
			return err
		}
	}
	return nil
}
