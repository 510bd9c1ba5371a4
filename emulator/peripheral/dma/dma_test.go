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
	"bytes"
	"testing"

	"github.com/andreas-jonsson/xtchipset/emulator/memory"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral/ram"
)

const (
	modeSingleRead  = 0x48
	modeSingleWrite = 0x44
	modeAutoInit    = 0x10
	modeDecrement   = 0x20
)

func newDMA(t *testing.T, opt Options) (*Device, *ram.Device) {
	t.Helper()
	mem := ram.New(ram.DefaultSize)
	return New(mem, opt), mem
}

func regPort(ch, reg int) uint16 {
	if ch < 4 {
		return uint16(reg)
	}
	return 0xC0 + uint16(reg)<<1
}

func programChannel(m *Device, ch int, addr, count uint16, mode byte) {
	local := ch & 3
	m.Out(regPort(ch, 0xC), 0)
	m.Out(regPort(ch, local*2), byte(addr))
	m.Out(regPort(ch, local*2), byte(addr>>8))
	m.Out(regPort(ch, local*2+1), byte(count))
	m.Out(regPort(ch, local*2+1), byte(count>>8))
	m.Out(regPort(ch, 0xB), mode|byte(local))
	m.Out(regPort(ch, 0xA), byte(local))
}

func TestAutoInitRoundTrip(t *testing.T) {
	for _, k := range []uint16{0, 3, 15, 255} {
		m, _ := newDMA(t, DefaultOptions())
		programChannel(m, 1, 0x1000, k, modeSingleRead|modeAutoInit)

		c := m.Channel(1)
		var tc int
		c.RegisterCallback(func(_ *Channel, ev Event) {
			if ev == ReachedTC {
				tc++
			}
		})

		buf := make([]byte, int(k)+1)
		if n := c.Read(len(buf), buf); n != len(buf) {
			t.Fatalf("k=%d: read %d units, want %d", k, n, len(buf))
		}
		r := c.Registers()
		if tc != 1 {
			t.Errorf("k=%d: terminal count reported %d times", k, tc)
		}
		if r.CurrentCount != k || r.CurrentAddress != 0x1000 {
			t.Errorf("k=%d: not reloaded: %+v", k, r)
		}
		if r.Masked {
			t.Errorf("k=%d: auto-init channel was masked", k)
		}
	}
}

func TestAutoInitContinues(t *testing.T) {
	m, mem := newDMA(t, DefaultOptions())
	for i := 0; i < 4; i++ {
		mem.WriteByte(memory.Pointer(0x200+i), byte(i+1))
	}
	programChannel(m, 3, 0x200, 3, modeSingleRead|modeAutoInit)

	buf := make([]byte, 10)
	if n := m.Channel(3).Read(10, buf); n != 10 {
		t.Fatalf("read %d units, want 10", n)
	}
	want := []byte{1, 2, 3, 4, 1, 2, 3, 4, 1, 2}
	if !bytes.Equal(buf, want) {
		t.Errorf("read %v, want %v", buf, want)
	}
	if r := m.Channel(3).Registers(); r.CurrentAddress != 0x202 || r.CurrentCount != 1 {
		t.Errorf("registers after wrap: %+v", r)
	}
}

func TestWriteToTerminalCount(t *testing.T) {
	m, mem := newDMA(t, DefaultOptions())
	m.Out(0x83, 0x01)
	programChannel(m, 1, 0x0100, 3, modeSingleWrite)

	c := m.Channel(1)
	var events []Event
	c.RegisterCallback(func(_ *Channel, ev Event) {
		events = append(events, ev)
	})

	src := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if n := c.Write(4, src); n != 4 {
		t.Fatalf("wrote %d units, want 4", n)
	}
	for i, b := range src {
		if v := mem.ReadByte(memory.Pointer(0x10100 + i)); v != b {
			t.Errorf("memory[0x%X] = 0x%X, want 0x%X", 0x10100+i, v, b)
		}
	}

	r := c.Registers()
	if !r.TerminalCount || !r.Masked {
		t.Errorf("after TC: %+v", r)
	}
	if r.CurrentAddress != 0x0104 || r.CurrentCount != 0xFFFF {
		t.Errorf("address 0x%X count 0x%X, want 0x104 and 0xFFFF", r.CurrentAddress, r.CurrentCount)
	}
	want := []Event{Unmasked, ReachedTC, TransferEnd}
	if len(events) != len(want) {
		t.Fatalf("events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events %v, want %v", events, want)
			break
		}
	}

	if n := c.Write(1, src); n != 0 {
		t.Errorf("masked channel wrote %d units", n)
	}
}

func TestPartialTransfer(t *testing.T) {
	m, _ := newDMA(t, DefaultOptions())
	programChannel(m, 0, 0x0040, 9, modeSingleWrite)

	c := m.Channel(0)
	if n := c.Write(4, make([]byte, 4)); n != 4 {
		t.Fatalf("wrote %d units, want 4", n)
	}
	if r := c.Registers(); r.CurrentAddress != 0x44 || r.CurrentCount != 5 || r.TerminalCount {
		t.Errorf("after partial write: %+v", r)
	}
	if n := c.Write(10, make([]byte, 10)); n != 6 {
		t.Errorf("wrote %d units, want the remaining 6", n)
	}
}

func TestReserveEvicts(t *testing.T) {
	m, _ := newDMA(t, DefaultOptions())
	c := m.Channel(1)

	var releasedA, releasedB int
	c.Reserve("sb", func() { releasedA++ })
	if c.ReservationOwner() != "sb" {
		t.Fatalf("owner = %q", c.ReservationOwner())
	}

	programChannel(m, 1, 0x1234, 0x55, modeSingleRead)
	c.RegisterCallback(func(*Channel, Event) {})

	c.Reserve("gus", func() { releasedB++ })
	if releasedA != 1 || releasedB != 0 {
		t.Errorf("release calls: first owner %d, new owner %d", releasedA, releasedB)
	}
	if c.ReservationOwner() != "gus" {
		t.Errorf("owner = %q, want gus", c.ReservationOwner())
	}

	r := c.Registers()
	if !r.Masked || r.BaseAddress != 0 || r.BaseCount != 0 || r.Request {
		t.Errorf("transfer state not reset: %+v", r)
	}

	c.Reserve("gus", nil)
	if releasedB != 1 {
		t.Errorf("re-reserving did not release the previous claim")
	}
}

func TestSharedFlipFlop(t *testing.T) {
	m, _ := newDMA(t, DefaultOptions())
	m.Out(0x0C, 0)

	m.Out(0x00, 0x34) // low byte of channel 0
	m.Out(0x02, 0x12) // high byte of channel 1
	if r := m.Channel(0).Registers(); r.BaseAddress != 0x0034 {
		t.Errorf("channel 0 address 0x%X", r.BaseAddress)
	}
	if r := m.Channel(1).Registers(); r.BaseAddress != 0x1200 {
		t.Errorf("channel 1 address 0x%X", r.BaseAddress)
	}

	m.Out(0x0C, 0)
	m.Out(0x04, 0xCD)
	m.Out(0x04, 0xAB)
	if lo, hi := m.In(0x04), m.In(0x04); lo != 0xCD || hi != 0xAB {
		t.Errorf("read back 0x%X%X, want 0xABCD", hi, lo)
	}

	m.In(0x04)
	if !m.Controller(0).FlipFlop() {
		t.Fatal("flip-flop did not toggle on read")
	}
	m.In(0x0C)
	if m.Controller(0).FlipFlop() {
		t.Error("reading the clear register left the flip-flop set")
	}
}

func TestSecondaryController(t *testing.T) {
	m, mem := newDMA(t, DefaultOptions())

	var released int
	m.RegisterPortConflict("tandy", func() { released++ })
	if m.SecondControllerAvailable() {
		t.Fatal("secondary controller created eagerly")
	}
	if m.Channel(1) == nil || m.SecondControllerAvailable() {
		t.Fatal("primary lookup created the secondary controller")
	}

	c := m.Channel(5)
	if c == nil || !c.Is16Bit() || c.Number() != 5 {
		t.Fatalf("channel 5 = %+v", c)
	}
	if released != 1 {
		t.Errorf("port conflict released %d times", released)
	}
	m.Channel(6)
	if released != 1 {
		t.Error("port conflict released again")
	}

	m.Out(0x8B, 0x03)
	programChannel(m, 5, 0x0010, 1, modeSingleWrite)
	if n := c.Write(2, []byte{1, 2, 3, 4}); n != 2 {
		t.Fatalf("wrote %d words, want 2", n)
	}
	for i, want := range []byte{1, 2, 3, 4} {
		if v := mem.ReadByte(memory.Pointer(0x20020 + i)); v != want {
			t.Errorf("memory[0x%X] = %d, want %d", 0x20020+i, v, want)
		}
	}
	if m.In(0x8B) != 0x03 {
		t.Errorf("page register reads 0x%X", m.In(0x8B))
	}

	m.CloseSecondController()
	if m.SecondControllerAvailable() || m.Channel(5) != nil {
		t.Error("secondary controller still available after close")
	}
}

func TestPageReadKeepsConflicts(t *testing.T) {
	m, _ := newDMA(t, DefaultOptions())

	var released int
	m.RegisterPortConflict("tandy", func() { released++ })

	if v := m.In(0x8B); v != 0xFF {
		t.Errorf("page register of a missing controller reads 0x%X", v)
	}
	if released != 0 || m.SecondControllerAvailable() {
		t.Fatal("reading a page register created the secondary controller")
	}

	m.Out(0x8B, 0x01)
	if released != 1 || !m.SecondControllerAvailable() {
		t.Fatal("writing a page register did not create the secondary controller")
	}
	if v := m.In(0x8B); v != 0x01 {
		t.Errorf("page register reads 0x%X, want 0x01", v)
	}
}

func TestPrimaryOnly(t *testing.T) {
	m, _ := newDMA(t, Options{Primary: true})
	if m.Channel(4) != nil || m.Channel(8) != nil || m.Channel(-1) != nil {
		t.Error("channel outside the primary controller returned")
	}
	if m.Channel(3) == nil {
		t.Error("primary channel missing")
	}

	disabled, _ := newDMA(t, Options{})
	if disabled.Channel(0) != nil {
		t.Error("disabled controller returned a channel")
	}
}

func TestStatusRegister(t *testing.T) {
	m, _ := newDMA(t, DefaultOptions())
	programChannel(m, 2, 0, 0, modeSingleRead)
	m.Channel(3).RegisterCallback(func(*Channel, Event) {})

	m.Channel(2).Read(1, make([]byte, 1))
	if v := m.In(0x08); v != 0x84 {
		t.Errorf("status = 0x%X, want 0x84", v)
	}
	if v := m.In(0x08); v != 0x80 {
		t.Errorf("status after read = 0x%X, want 0x80", v)
	}
}

func TestMaskRegisters(t *testing.T) {
	m, _ := newDMA(t, DefaultOptions())

	masked := func() (bits byte) {
		for i := 0; i < 4; i++ {
			if m.Channel(i).Masked() {
				bits |= 1 << i
			}
		}
		return
	}

	m.Out(0x0E, 0)
	if masked() != 0 {
		t.Errorf("clear mask left 0x%X", masked())
	}
	m.Out(0x0F, 0x0A)
	if masked() != 0x0A {
		t.Errorf("multiple mask = 0x%X, want 0x0A", masked())
	}
	m.Out(0x0A, 0x04)
	if masked() != 0x0B {
		t.Errorf("single mask = 0x%X, want 0x0B", masked())
	}

	m.Out(0x00, 0x55)
	m.Out(0x0D, 0)
	if masked() != 0x0F || m.Controller(0).FlipFlop() {
		t.Errorf("master clear: mask 0x%X flip-flop %v", masked(), m.Controller(0).FlipFlop())
	}
}

func TestPageRegisters(t *testing.T) {
	t.Run("ReadWrite", func(t *testing.T) {
		m, _ := newDMA(t, DefaultOptions())
		for port, ch := range map[uint16]int{0x87: 0, 0x83: 1, 0x81: 2, 0x82: 3, 0x8F: 4, 0x8B: 5, 0x89: 6, 0x8A: 7} {
			m.Out(port, byte(0x10+ch))
			if r := m.Channel(ch).Registers(); r.Page != byte(0x10+ch) {
				t.Errorf("port 0x%X: channel %d page 0x%X", port, ch, r.Page)
			}
		}
		m.Out(0x80, 0x42)
		if m.In(0x80) != 0x42 {
			t.Errorf("extra page register reads 0x%X", m.In(0x80))
		}
	})

	t.Run("WriteOnly", func(t *testing.T) {
		opt := DefaultOptions()
		opt.PageRegistersWriteOnly = true
		m, _ := newDMA(t, opt)
		m.Out(0x87, 0x05)
		if m.In(0x87) != 0xFF {
			t.Errorf("write-only page register reads 0x%X", m.In(0x87))
		}
		if m.Channel(0).Registers().Page != 0x05 {
			t.Error("page not stored")
		}
	})
}

func TestDecrementMode(t *testing.T) {
	m, mem := newDMA(t, DefaultOptions())
	for i := 0; i < 16; i++ {
		mem.WriteByte(memory.Pointer(i), byte(i))
	}
	programChannel(m, 2, 10, 7, modeSingleRead|modeDecrement)

	c := m.Channel(2)
	buf := make([]byte, 3)
	if n := c.Read(3, buf); n != 3 {
		t.Fatalf("read %d units", n)
	}
	if !bytes.Equal(buf, []byte{10, 9, 8}) {
		t.Errorf("read %v, want [10 9 8]", buf)
	}
	if r := c.Registers(); r.CurrentAddress != 7 || !r.Decrement {
		t.Errorf("after decrementing read: %+v", r)
	}
	if n := c.Write(1, buf); n != 0 {
		t.Errorf("decrementing write moved %d units", n)
	}

	opt := DefaultOptions()
	opt.AllowDecrement = false
	m, _ = newDMA(t, opt)
	programChannel(m, 2, 10, 7, modeSingleRead|modeDecrement)
	if m.Channel(2).Registers().Decrement {
		t.Error("decrement mode set while disallowed")
	}
}

func TestEventHook(t *testing.T) {
	m, _ := newDMA(t, DefaultOptions())
	var seen []Event
	m.OnEvent = func(ch int, ev Event) {
		if ch == 0 {
			seen = append(seen, ev)
		}
	}
	m.Out(0x0A, 0x00)
	m.Out(0x0A, 0x04)
	if len(seen) != 2 || seen[0] != Unmasked || seen[1] != Masked {
		t.Errorf("events %v", seen)
	}
}
