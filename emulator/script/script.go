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

package script

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/andreas-jonsson/xtchipset/emulator/chipset"
	"github.com/andreas-jonsson/xtchipset/emulator/memory"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral/dma"
	"github.com/andreas-jonsson/xtchipset/emulator/processor/cpu"
	"github.com/andreas-jonsson/xtchipset/emulator/scheduler"
	"github.com/spf13/afero"
	lua "github.com/yuin/gopher-lua"
)

var ErrScript = errors.New("script error")

// Host runs Lua programs that act as the guest and as device models.
type Host struct {
	L *lua.LState

	chip *chipset.Chipset
	cpu  *cpu.CPU

	events map[*lua.LFunction]scheduler.Handler
	err    error
}

func New(c *chipset.Chipset, p *cpu.CPU) *Host {
	h := &Host{
		L:      lua.NewState(),
		chip:   c,
		cpu:    p,
		events: make(map[*lua.LFunction]scheduler.Handler),
	}

	for name, fn := range map[string]lua.LGFunction{
		"outb":      h.outb,
		"inb":       h.inb,
		"raise":     h.raise,
		"lower":     h.lower,
		"mask":      h.mask,
		"run":       h.run,
		"time":      h.time,
		"cycles":    h.cycles,
		"after":     h.after,
		"cancel":    h.cancel,
		"interrupt": h.interrupt,
		"poke":      h.poke,
		"peek":      h.peek,
		"linear":    h.linear,
		"dma_read":  h.dmaRead,
		"dma_write": h.dmaWrite,
		"reserve":   h.reserve,
		"on_dma":    h.onDMA,
		"dreq":      h.dreq,
		"log":       h.log,
	} {
		h.L.SetGlobal(name, h.L.NewFunction(fn))
	}
	return h
}

func (h *Host) Close() {
	h.L.Close()
}

func (h *Host) RunString(src string) error {
	if err := h.L.DoString(src); err != nil {
		return fmt.Errorf("%w: %v", ErrScript, err)
	}
	return nil
}

func (h *Host) RunFile(fs afero.Fs, name string) error {
	src, err := afero.ReadFile(fs, name)
	if err != nil {
		return err
	}
	if err := h.RunString(string(src)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// call runs a Lua callback from Go. The first error is kept and reported by
// the next run().
func (h *Host) call(fn *lua.LFunction, args ...lua.LValue) {
	if err := h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		log.Print("script: ", err)
		if h.err == nil {
			h.err = err
		}
	}
}

func (h *Host) channel(L *lua.LState, n int) *dma.Channel {
	c := h.chip.DMAChannel(n)
	if c == nil {
		L.RaiseError("%v", fmt.Errorf("%w: channel %d", dma.ErrNoController, n))
	}
	return c
}

func (h *Host) outb(L *lua.LState) int {
	h.cpu.OutByte(uint16(L.CheckInt(1)), byte(L.CheckInt(2)))
	return 0
}

func (h *Host) inb(L *lua.LState) int {
	L.Push(lua.LNumber(h.cpu.InByte(uint16(L.CheckInt(1)))))
	return 1
}

func (h *Host) raise(L *lua.LState) int {
	h.chip.PIC.RaiseIRQ(L.CheckInt(1))
	return 0
}

func (h *Host) lower(L *lua.LState) int {
	h.chip.PIC.LowerIRQ(L.CheckInt(1))
	return 0
}

func (h *Host) mask(L *lua.LState) int {
	h.chip.PIC.SetIRQMask(L.CheckInt(1), L.OptBool(2, true))
	return 0
}

func (h *Host) run(L *lua.LState) int {
	err := h.chip.Run(h.cpu, L.CheckInt(1))
	if err == nil {
		err, h.err = h.err, nil
	}
	if err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (h *Host) time(L *lua.LState) int {
	L.Push(lua.LNumber(h.chip.Clock.FullIndex()))
	return 1
}

// cycles returns the cycles per millisecond and, given a new value, changes
// it from the next millisecond on.
func (h *Host) cycles(L *lua.LState) int {
	if L.GetTop() >= 1 {
		h.chip.Clock.SetCycleMax(int64(L.CheckInt(1)))
	}
	L.Push(lua.LNumber(h.chip.Clock.CycleMax))
	return 1
}

func (h *Host) handler(fn *lua.LFunction) scheduler.Handler {
	if ev, ok := h.events[fn]; ok {
		return ev
	}
	ev := h.chip.Scheduler.NewHandler("script", func(payload uint32) {
		h.call(fn, lua.LNumber(payload))
	})
	h.events[fn] = ev
	return ev
}

func (h *Host) after(L *lua.LState) int {
	delay := float64(L.CheckNumber(1))
	fn := L.CheckFunction(2)
	payload := uint32(L.OptInt(3, 0))
	h.chip.Scheduler.AddEvent(h.handler(fn), delay, payload)
	return 0
}

func (h *Host) cancel(L *lua.LState) int {
	fn := L.CheckFunction(1)
	ev, ok := h.events[fn]
	if !ok {
		return 0
	}
	if L.GetTop() >= 2 {
		h.chip.Scheduler.RemoveSpecificEvents(ev, uint32(L.CheckInt(2)))
	} else {
		h.chip.Scheduler.RemoveEvents(ev)
	}
	return 0
}

type luaInterrupt struct {
	h  *Host
	fn *lua.LFunction
}

func (i luaInterrupt) HandleInterrupt(n int) error {
	i.h.call(i.fn, lua.LNumber(n))
	return nil
}

func (h *Host) interrupt(L *lua.LState) int {
	vector := L.CheckInt(1)
	if err := h.cpu.InstallInterruptHandler(vector, luaInterrupt{h, L.CheckFunction(2)}); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (h *Host) poke(L *lua.LState) int {
	h.cpu.WriteByte(memory.Pointer(L.CheckInt(1)), byte(L.CheckInt(2)))
	return 0
}

// linear converts a segment and offset to an address for peek and poke.
func (h *Host) linear(L *lua.LState) int {
	L.Push(lua.LNumber(memory.NewPointer(uint16(L.CheckInt(1)), uint16(L.CheckInt(2)))))
	return 1
}

func (h *Host) peek(L *lua.LState) int {
	L.Push(lua.LNumber(h.cpu.ReadByte(memory.Pointer(L.CheckInt(1)))))
	return 1
}

func (h *Host) dmaRead(L *lua.LState) int {
	c := h.channel(L, L.CheckInt(1))
	want := L.CheckInt(2)
	if want < 0 {
		L.ArgError(2, "negative count")
	}
	unit := 1
	if c.Is16Bit() {
		unit = 2
	}
	buf := make([]byte, want*unit)
	n := c.Read(want, buf)
	L.Push(lua.LString(buf[:n*unit]))
	L.Push(lua.LNumber(n))
	return 2
}

func (h *Host) dmaWrite(L *lua.LState) int {
	c := h.channel(L, L.CheckInt(1))
	data := []byte(L.CheckString(2))
	want := len(data)
	if c.Is16Bit() {
		want /= 2
	}
	L.Push(lua.LNumber(c.Write(want, data)))
	return 1
}

func (h *Host) reserve(L *lua.LState) int {
	c := h.channel(L, L.CheckInt(1))
	owner := L.CheckString(2)

	var release func()
	if fn := L.OptFunction(3, nil); fn != nil {
		release = func() { h.call(fn, lua.LString(owner)) }
	}
	c.Reserve(owner, release)
	return 0
}

func (h *Host) onDMA(L *lua.LState) int {
	c := h.channel(L, L.CheckInt(1))
	if L.Get(2) == lua.LNil {
		c.RegisterCallback(nil)
		return 0
	}
	fn := L.CheckFunction(2)
	c.RegisterCallback(func(c *dma.Channel, ev dma.Event) {
		h.call(fn, lua.LNumber(c.Number()), lua.LString(ev.String()))
	})
	return 0
}

// dreq drives the request line of a channel, as seen in the status register.
func (h *Host) dreq(L *lua.LState) int {
	h.channel(L, L.CheckInt(1)).SetRequest(L.CheckBool(2))
	return 0
}

func (h *Host) log(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	log.Print("script: ", strings.Join(parts, " "))
	return 0
}
