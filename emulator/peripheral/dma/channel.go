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
	"fmt"
	"log"

	"github.com/andreas-jonsson/xtchipset/emulator/memory"
)

// Event is passed to a channel callback.
type Event int

const (
	Masked Event = iota
	Unmasked
	ReachedTC
	TransferEnd
)

func (e Event) String() string {
	switch e {
	case Masked:
		return "masked"
	case Unmasked:
		return "unmasked"
	case ReachedTC:
		return "reached-tc"
	case TransferEnd:
		return "transfer-end"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Callback is notified about mask changes and terminal count of a channel.
type Callback func(c *Channel, ev Event)

// ChannelRegisters is a copy of the state of one channel.
type ChannelRegisters struct {
	Number int
	Is16   bool

	Page                           byte
	BaseAddress, CurrentAddress    uint16
	BaseCount, CurrentCount        uint16
	AutoInit, Decrement            bool
	Masked, TerminalCount, Request bool

	Owner string
}

// Channel is one 8237 channel. Counts hold the number of units minus one,
// like the hardware. Units are bytes on channels 0-3 and words on 4-7.
type Channel struct {
	dev  *Device
	num  int
	is16 bool

	pageNum  byte
	pageBase uint32

	baseAddr uint16
	currAddr uint32
	baseCnt  uint16
	currCnt  uint16

	autoInit  bool
	increment bool
	masked    bool
	tc        bool
	request   bool

	callback Callback

	owner   string
	release func()
}

func newChannel(dev *Device, num int) *Channel {
	c := &Channel{dev: dev, num: num, is16: num >= 4}
	c.resetRegisters()
	return c
}

func (c *Channel) resetRegisters() {
	c.pageNum, c.pageBase = 0, 0
	c.baseAddr, c.currAddr = 0, 0
	c.baseCnt, c.currCnt = 0, 0
	c.autoInit = false
	c.increment = true
	c.masked = true
	c.tc = false
}

// Number is the global channel number, 0-7.
func (c *Channel) Number() int {
	return c.num
}

func (c *Channel) Is16Bit() bool {
	return c.is16
}

func (c *Channel) Registers() ChannelRegisters {
	return ChannelRegisters{
		Number:         c.num,
		Is16:           c.is16,
		Page:           c.pageNum,
		BaseAddress:    c.baseAddr,
		CurrentAddress: uint16(c.currAddr),
		BaseCount:      c.baseCnt,
		CurrentCount:   c.currCnt,
		AutoInit:       c.autoInit,
		Decrement:      !c.increment,
		Masked:         c.masked,
		TerminalCount:  c.tc,
		Request:        c.request,
		Owner:          c.owner,
	}
}

// Reset clears the transfer state and the callback. The reservation is kept.
func (c *Channel) Reset() {
	c.resetRegisters()
	c.callback = nil
	c.request = false
}

// Reserve hands the channel to owner. A previous owner is told to let go
// through its release function before the channel is reset for the new one.
func (c *Channel) Reserve(owner string, release func()) {
	if c.owner != "" {
		prev, fn := c.owner, c.release
		c.owner, c.release = "", nil
		log.Printf("dma: channel %d taken from %s by %s", c.num, prev, owner)
		if fn != nil {
			fn()
		}
	}
	c.Reset()
	c.owner, c.release = owner, release
}

// ReservationOwner returns the name of the current owner, or an empty string.
func (c *Channel) ReservationOwner() string {
	return c.owner
}

// RegisterCallback installs cb and immediately reports the mask state to it.
// A channel with a callback has a device requesting transfers.
func (c *Channel) RegisterCallback(cb Callback) {
	c.callback = cb
	c.SetMask(c.masked)
	c.request = cb != nil
}

func (c *Channel) notify(ev Event) {
	if c.dev.OnEvent != nil {
		c.dev.OnEvent(c.num, ev)
	}
	if c.callback != nil {
		c.callback(c, ev)
	}
}

func (c *Channel) SetMask(masked bool) {
	c.masked = masked
	if masked {
		c.notify(Masked)
	} else {
		c.notify(Unmasked)
	}
}

func (c *Channel) Masked() bool {
	return c.masked
}

func (c *Channel) SetPage(page byte) {
	c.pageNum = page
	if c.is16 {
		c.pageBase = uint32(page>>1) << 17
	} else {
		c.pageBase = uint32(page) << 16
	}
}

func (c *Channel) SetRequest(request bool) {
	c.request = request
}

func (c *Channel) TerminalCount() bool {
	return c.tc
}

func (c *Channel) reachedTC() {
	c.tc = true
	c.notify(ReachedTC)
}

func (c *Channel) shift() uint32 {
	if c.is16 {
		return 1
	}
	return 0
}

func (c *Channel) wrapMask() uint32 {
	s := c.shift()
	return ((0xFFFF << s) + s) | c.dev.wrapping
}

func (c *Channel) address(offset uint32) memory.Pointer {
	return memory.Pointer(c.pageBase + offset).Masked()
}

func (c *Channel) blockRead(dst []byte, units int) {
	s := c.shift()
	wrap := c.wrapMask()
	offset := c.currAddr << s
	if !c.increment && c.is16 {
		log.Print("dma: 16-bit decrementing transfers are not implemented")
		return
	}
	for i := 0; i < units<<s; i++ {
		offset &= wrap
		dst[i] = c.dev.Memory.ReadByte(c.address(offset))
		if c.increment {
			offset++
		} else {
			offset--
		}
	}
}

func (c *Channel) blockWrite(src []byte, units int) {
	s := c.shift()
	wrap := c.wrapMask()
	offset := c.currAddr << s
	for i := 0; i < units<<s; i++ {
		offset &= wrap
		c.dev.Memory.WriteByte(c.address(offset), src[i])
		offset++
	}
}

func (c *Channel) move(units int) {
	if c.increment {
		c.currAddr += uint32(units)
	} else {
		c.currAddr -= uint32(units)
	}
}

func (c *Channel) clamp(want int, buf []byte) int {
	if n := len(buf) >> c.shift(); want > n {
		log.Printf("dma: channel %d buffer holds %d of %d units", c.num, n, want)
		return n
	}
	return want
}

type blockFunc func(c *Channel, buf []byte, units int)

// transfer runs want units through block and returns the number moved. On
// terminal count an auto-init channel reloads and keeps going, any other
// channel is masked and stops.
func (c *Channel) transfer(want int, buf []byte, block blockFunc) int {
	if c.masked || want <= 0 {
		return 0
	}
	want = c.clamp(want, buf)
	s := c.shift()
	c.currAddr &= c.dev.wrapping

	var done int
	for want > 0 {
		left := int(c.currCnt) + 1
		if want < left {
			block(c, buf[done<<s:], want)
			c.move(want)
			c.currCnt -= uint16(want)
			return done + want
		}

		block(c, buf[done<<s:], left)
		want -= left
		done += left
		c.reachedTC()

		if c.autoInit {
			c.currCnt = c.baseCnt
			c.currAddr = uint32(c.baseAddr)
			continue
		}
		c.move(left)
		c.currCnt = 0xFFFF
		c.masked = true
		c.notify(TransferEnd)
		break
	}
	return done
}

// Read copies up to want units from memory into dst.
func (c *Channel) Read(want int, dst []byte) int {
	return c.transfer(want, dst, (*Channel).blockRead)
}

// Write copies up to want units from src into memory. Decrement mode is not
// supported for writes and moves nothing.
func (c *Channel) Write(want int, src []byte) int {
	if !c.increment {
		log.Printf("dma: channel %d decrement mode writes are not implemented", c.num)
		return 0
	}
	return c.transfer(want, src, (*Channel).blockWrite)
}
