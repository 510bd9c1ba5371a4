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
	"testing"

	"github.com/andreas-jonsson/xtchipset/emulator/memory"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral"
	"github.com/andreas-jonsson/xtchipset/emulator/processor"
)

// testDevice is an interrupt controller with one I/O port and one page of
// memory.
type testDevice struct {
	peripheral.NullDevice

	port   byte
	page   [0x1000]byte
	steps  int
	closed bool
	err    error
}

func (d *testDevice) Install(p processor.Processor) error {
	if err := p.InstallIODeviceAt(d, 0x300); err != nil {
		return err
	}
	return p.InstallMemoryDevice(d, 0x10000, 0x10FFF)
}

func (d *testDevice) Step(int) error { d.steps++; return d.err }
func (d *testDevice) Close() error { d.closed = true; return nil }
func (d *testDevice) In(uint16) byte { return d.port }
func (d *testDevice) Out(_ uint16, v byte) { d.port = v }
func (d *testDevice) ReadByte(a memory.Pointer) byte { return d.page[a&0xFFF] }
func (d *testDevice) WriteByte(a memory.Pointer, v byte) {
	d.page[a&0xFFF] = v
}

func (d *testDevice) GetInterrupt() (int, error) { return 0, nil }
func (d *testDevice) IRQCheck() bool { return false }
func (d *testDevice) RaiseIRQ(int) {}
func (d *testDevice) LowerIRQ(int) {}
func (d *testDevice) SetIRQMask(int, bool) {}

type handlerFunc func(int) error

func (f handlerFunc) HandleInterrupt(n int) error {
	return f(n)
}

func newCPU(t *testing.T) (*CPU, *testDevice) {
	t.Helper()
	d := &testDevice{}
	p, errs := NewCPU([]peripheral.Peripheral{&peripheral.NullDevice{}, d})
	for _, err := range errs {
		t.Fatal(err)
	}
	p.Reset()
	return p, d
}

func TestNoInterruptController(t *testing.T) {
	_, errs := NewCPU([]peripheral.Peripheral{&peripheral.NullDevice{}})
	if len(errs) != 1 {
		t.Errorf("errors = %v, want one", errs)
	}
}

func TestBuses(t *testing.T) {
	p, d := newCPU(t)
	if p.GetInterruptController() != processor.InterruptController(d) {
		t.Fatal("interrupt controller not detected")
	}

	t.Run("IO", func(t *testing.T) {
		p.OutWord(0x300, 0x1234)
		if d.port != 0x12 {
			t.Errorf("port = 0x%X, want the high byte written last", d.port)
		}
		if v := p.InByte(0x301); v != 0xFF {
			t.Errorf("unmapped port read 0x%X", v)
		}
	})

	t.Run("Memory", func(t *testing.T) {
		p.WriteWord(0x10010, 0xBEEF)
		if d.page[0x10] != 0xEF || d.page[0x11] != 0xBE {
			t.Errorf("page = % X", d.page[0x10:0x12])
		}
		// Addresses wrap at the 24-bit bus.
		if v := p.ReadWord(0x1010010); v != 0xBEEF {
			t.Errorf("ReadWord() = 0x%X", v)
		}
		if v := p.ReadByte(0x20000); v != 0xFF {
			t.Errorf("unmapped memory read 0x%X", v)
		}
	})

	t.Run("InvalidRange", func(t *testing.T) {
		if err := p.InstallMemoryDevice(d, 0x2000, 0x1000); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestInterrupt(t *testing.T) {
	p, _ := newCPU(t)
	if !p.InterruptsEnabled() || p.LastVector() != -1 {
		t.Fatal("unexpected state after reset")
	}

	var got []int
	p.InstallInterruptHandler(0x08, handlerFunc(func(n int) error {
		got = append(got, n)
		return nil
	}))
	p.InstallInterruptHandler(0x09, handlerFunc(func(int) error {
		return processor.ErrInterruptNotHandled
	}))
	boom := errors.New("boom")
	p.InstallInterruptHandler(0x0A, handlerFunc(func(int) error {
		return boom
	}))

	if err := p.Interrupt(0x08); err != nil || len(got) != 1 {
		t.Errorf("Interrupt(8) = %v, handled %v", err, got)
	}
	if err := p.Interrupt(0x09); err != nil {
		t.Errorf("Interrupt(9) = %v", err)
	}
	if err := p.Interrupt(0x0A); !errors.Is(err, boom) {
		t.Errorf("Interrupt(10) = %v", err)
	}
	if err := p.Interrupt(0x100); err == nil {
		t.Error("expected an error for vector 0x100")
	}
	if p.LastVector() != 0x0A {
		t.Errorf("last vector = 0x%X", p.LastVector())
	}
	if s := p.GetStats(); s.NumInterrupts != 3 {
		t.Errorf("interrupts = %d", s.NumInterrupts)
	}
}

func TestExecute(t *testing.T) {
	p, d := newCPU(t)
	if n, err := p.Execute(100); n != 100 || err != nil || d.steps != 1 {
		t.Errorf("Execute() = %d, %v with %d steps", n, err, d.steps)
	}
	if n, _ := p.Execute(0); n != 0 || d.steps != 1 {
		t.Error("empty run stepped peripherals")
	}

	d.err = errors.New("device failure")
	if _, err := p.Execute(10); err != d.err {
		t.Errorf("Execute() = %v", err)
	}

	p.Close()
	if !d.closed {
		t.Error("peripheral not closed")
	}
}
