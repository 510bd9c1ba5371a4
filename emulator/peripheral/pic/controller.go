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
	"fmt"
	"log"
)

const (
	cascadeLine = 2
	noIRQ       = 8
)

// RegisterSet is a copy of one controller's registers.
type RegisterSet struct {
	Request, Mask, InService byte
	ActiveIRQ, VectorBase    byte

	SpecialMask, AutoEOI, RotateOnAutoEOI bool
	Single, ReadInService                 bool

	ICWIndex, ICWWords int
}

// Controller models a single 8259A. The secondary chip of an AT has cascade
// pointing at the primary and signals it through line 2. The primary has no
// cascade target and signals the CPU instead.
type Controller struct {
	name    string
	cascade *Controller
	stall   func()

	icwWords, icwIndex int

	special         bool
	autoEOI         bool
	rotateOnAutoEOI bool
	single          bool
	requestISR      bool
	vectorBase      byte

	irr, imr, isr byte
	activeIRQ     byte

	// irqCheck is set on the primary while the CPU should look for an interrupt.
	irqCheck bool
	err      error
}

func (c *Controller) reset(vectorBase byte) {
	*c = Controller{
		name:       c.name,
		cascade:    c.cascade,
		stall:      c.stall,
		vectorBase: vectorBase,
		imr:        0xFF,
		activeIRQ:  noIRQ,
	}
}

func (c *Controller) Registers() RegisterSet {
	return RegisterSet{
		Request:         c.irr,
		Mask:            c.imr,
		InService:       c.isr,
		ActiveIRQ:       c.activeIRQ,
		VectorBase:      c.vectorBase,
		SpecialMask:     c.special,
		AutoEOI:         c.autoEOI,
		RotateOnAutoEOI: c.rotateOnAutoEOI,
		Single:          c.single,
		ReadInService:   c.requestISR,
		ICWIndex:        c.icwIndex,
		ICWWords:        c.icwWords,
	}
}

// Err returns the first unsupported configuration the guest asked for.
func (c *Controller) Err() error {
	return c.err
}

func (c *Controller) fail(format string, v ...interface{}) {
	err := fmt.Errorf("pic %s: %w: %s", c.name, ErrUnsupportedMode, fmt.Sprintf(format, v...))
	log.Print(err)
	if c.err == nil {
		c.err = err
	}
}

// ready is the set of lines that are requested, unmasked and not in service.
func (c *Controller) ready() byte {
	return c.irr &^ c.imr &^ c.isr
}

func (c *Controller) priorityLimit() byte {
	if c.special {
		return noIRQ
	}
	return c.activeIRQ
}

func (c *Controller) setIMR(val byte) {
	change := c.imr ^ val
	c.imr = val
	if c.irr&change&^c.isr != 0 {
		c.checkForIRQ()
	}
}

func (c *Controller) updateActiveIRQ() {
	c.activeIRQ = noIRQ
	for i := byte(0); i < 8; i++ {
		if c.isr&(1<<i) != 0 {
			c.activeIRQ = i
			return
		}
	}
}

func (c *Controller) checkAfterEOI() {
	c.updateActiveIRQ()
	if c.ready() != 0 {
		c.checkForIRQ()
	}
}

func (c *Controller) checkForIRQ() {
	if possible := c.ready(); possible != 0 {
		limit := c.priorityLimit()
		for i := byte(0); i < limit; i++ {
			if possible&(1<<i) != 0 {
				c.activate()
				return
			}
		}
	}
	c.deactivate()
}

func (c *Controller) activate() {
	if c.cascade != nil {
		c.cascade.raise(cascadeLine)
		return
	}
	c.irqCheck = true
	if c.stall != nil {
		c.stall()
	}
}

func (c *Controller) deactivate() {
	if c.cascade != nil {
		c.cascade.lower(cascadeLine)
		return
	}
	c.irqCheck = false
}

func (c *Controller) raise(line byte) {
	bit := byte(1) << line
	if c.irr&bit != 0 {
		return
	}
	c.irr |= bit
	if bit&^c.imr&^c.isr != 0 && (c.special || line < c.activeIRQ) {
		c.activate()
	}
}

func (c *Controller) lower(line byte) {
	bit := byte(1) << line
	if c.irr&bit == 0 {
		return
	}
	c.irr &^= bit
	// The line may have been the one holding the output high, but others
	// can be pending too, so recheck instead of deactivating.
	if bit&^c.imr&^c.isr != 0 && (c.special || line < c.activeIRQ) {
		c.checkForIRQ()
	}
}

// nextLine returns the line that would be dispatched next, or noIRQ.
func (c *Controller) nextLine() byte {
	possible := c.ready()
	limit := c.priorityLimit()
	for i := byte(0); i < limit; i++ {
		if possible&(1<<i) != 0 {
			return i
		}
	}
	return noIRQ
}

func (c *Controller) startIRQ(line byte) {
	c.irr &^= 1 << line
	if !c.autoEOI {
		c.activeIRQ = line
		c.isr |= 1 << line
	} else if c.rotateOnAutoEOI {
		log.Printf("pic %s: rotate on auto EOI not handled", c.name)
	}
}

func (c *Controller) eoi(line byte) {
	c.isr &^= 1 << line
	c.checkAfterEOI()
}

func (c *Controller) writeCommand(val byte) {
	switch {
	case val&0x10 != 0: // ICW1
		if val&0x04 != 0 {
			c.fail("ICW1 0x%X: 4 byte interval", val)
		}
		if val&0x08 != 0 {
			c.fail("ICW1 0x%X: level triggered mode", val)
		}
		if val&0xE0 != 0 {
			c.fail("ICW1 0x%X: 8080/8085 mode", val)
		}
		c.single = val&0x02 != 0
		c.icwIndex = 1
		c.icwWords = 2 + int(val&0x01)
	case val&0x08 != 0: // OCW3
		if val&0x04 != 0 {
			log.Printf("pic %s: poll command not handled", c.name)
		}
		if val&0x02 != 0 {
			c.requestISR = val&0x01 != 0
		}
		if val&0x40 != 0 {
			c.special = val&0x20 != 0
			// Priorities changed, something may be dispatchable now.
			c.checkForIRQ()
		}
	default: // OCW2
		if val&0x20 != 0 {
			if val&0x80 != 0 {
				log.Printf("pic %s: rotate mode not supported", c.name)
			}
			if val&0x40 != 0 {
				c.eoi(val & 7)
			} else if c.activeIRQ != noIRQ {
				// Some guests broadcast a non-specific EOI to both chips, so
				// nothing in service is not an error.
				c.eoi(c.activeIRQ)
			}
		} else if val&0x40 == 0 {
			c.rotateOnAutoEOI = val&0x80 != 0
		} else if val&0x80 != 0 {
			log.Printf("pic %s: set priority command not handled", c.name)
		}
	}
}

func (c *Controller) writeData(val byte) {
	switch c.icwIndex {
	case 0: // OCW1
		c.setIMR(val)
	case 1: // ICW2
		c.vectorBase = val & 0xF8
		c.advanceICW()
		if c.icwIndex != 0 && c.single {
			// No ICW3 without a cascade.
			if c.icwWords == 3 {
				c.icwIndex = 3
			} else {
				c.icwIndex = 0
			}
		}
	case 2: // ICW3
		c.advanceICW()
	case 3: // ICW4
		c.autoEOI = val&0x02 != 0
		if val&0x01 == 0 {
			c.fail("ICW4 0x%X: 8085 mode", val)
		}
		if val&0x10 != 0 {
			c.fail("ICW4 0x%X: special fully nested mode", val)
		}
		c.advanceICW()
	default:
		log.Printf("pic %s: unexpected ICW 0x%X", c.name, val)
	}
}

func (c *Controller) advanceICW() {
	if c.icwIndex >= c.icwWords {
		c.icwIndex = 0
	} else {
		c.icwIndex++
	}
}

func (c *Controller) readCommand() byte {
	if c.requestISR {
		return c.isr
	}
	return c.irr
}

func (c *Controller) readData() byte {
	return c.imr
}
