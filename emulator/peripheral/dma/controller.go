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

import "log"

// Controller is one 8237 with its four channels. The address/count byte
// toggle is shared by all channels of the controller.
type Controller struct {
	index    int
	flipflop bool
	channels [4]*Channel
}

func newController(dev *Device, index int) *Controller {
	ctrl := &Controller{index: index}
	for i := range ctrl.channels {
		ctrl.channels[i] = newChannel(dev, index*4+i)
	}
	return ctrl
}

// Channel returns local channel n, 0-3.
func (ctrl *Controller) Channel(n int) *Channel {
	if n < 0 || n > 3 {
		return nil
	}
	return ctrl.channels[n]
}

func (ctrl *Controller) FlipFlop() bool {
	return ctrl.flipflop
}

func (ctrl *Controller) reset() {
	ctrl.flipflop = false
	for _, c := range ctrl.channels {
		c.resetRegisters()
	}
}

func (ctrl *Controller) toggle() bool {
	ctrl.flipflop = !ctrl.flipflop
	return ctrl.flipflop
}

// WriteReg writes controller register reg, 0x0-0xF.
func (ctrl *Controller) WriteReg(reg int, val byte, allowDecrement bool) {
	switch reg {
	case 0x0, 0x2, 0x4, 0x6: // base address
		c := ctrl.channels[reg>>1]
		if ctrl.toggle() {
			c.baseAddr = c.baseAddr&0xFF00 | uint16(val)
			c.currAddr = c.currAddr&0xFF00 | uint32(val)
		} else {
			c.baseAddr = c.baseAddr&0x00FF | uint16(val)<<8
			c.currAddr = c.currAddr&0x00FF | uint32(val)<<8
		}
	case 0x1, 0x3, 0x5, 0x7: // base count
		c := ctrl.channels[reg>>1]
		if ctrl.toggle() {
			c.baseCnt = c.baseCnt&0xFF00 | uint16(val)
			c.currCnt = c.currCnt&0xFF00 | uint16(val)
		} else {
			c.baseCnt = c.baseCnt&0x00FF | uint16(val)<<8
			c.currCnt = c.currCnt&0x00FF | uint16(val)<<8
		}
	case 0x8: // command
	case 0x9: // request, memory to memory
		log.Printf("dma %d: software request 0x%X ignored", ctrl.index, val)
	case 0xA: // single mask
		ctrl.channels[val&3].SetMask(val&0x04 != 0)
	case 0xB: // mode
		c := ctrl.channels[val&3]
		c.autoInit = val&0x10 != 0
		c.increment = !allowDecrement || val&0x20 == 0
	case 0xC: // clear flip-flop
		ctrl.flipflop = false
	case 0xD: // master clear
		for _, c := range ctrl.channels {
			c.SetMask(true)
			c.tc = false
		}
		ctrl.flipflop = false
	case 0xE: // clear mask
		for _, c := range ctrl.channels {
			c.SetMask(false)
		}
	case 0xF: // write all mask bits
		for _, c := range ctrl.channels {
			c.SetMask(val&1 != 0)
			val >>= 1
		}
	}
}

// ReadReg reads controller register reg, 0x0-0xF.
func (ctrl *Controller) ReadReg(reg int) byte {
	switch reg {
	case 0x0, 0x2, 0x4, 0x6:
		c := ctrl.channels[reg>>1]
		if ctrl.toggle() {
			return byte(c.currAddr)
		}
		return byte(c.currAddr >> 8)
	case 0x1, 0x3, 0x5, 0x7:
		c := ctrl.channels[reg>>1]
		if ctrl.toggle() {
			return byte(c.currCnt)
		}
		return byte(c.currCnt >> 8)
	case 0x8: // status
		var ret byte
		for i, c := range ctrl.channels {
			if c.tc {
				ret |= 1 << i
			}
			c.tc = false
			if c.request {
				ret |= 1 << (4 + i)
			}
		}
		return ret
	case 0xC: // most boards clear the flip-flop on read as well
		ctrl.flipflop = false
	default:
		log.Printf("dma %d: reading undefined register 0x%X", ctrl.index, reg)
	}
	return 0xFF
}
