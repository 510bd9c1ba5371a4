/*
Copyright (C) 2019-2020 Andreas T Jonsson

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/


/*
References:
	https://wiki.osdev.org/Programmable_Interval_Timer
	fake86's - i8253.c
*/

package pit

import (
	"github.com/andreas-jonsson/xtchipset/emulator/processor"
	"github.com/andreas-jonsson/xtchipset/emulator/scheduler"
)

// InputFrequency is the PIT clock in Hz.
const InputFrequency = 1193182

const (
	accessLatch = iota
	accessLowByte
	accessHighByte
	accessToggle
)

type pitChannel struct {
	enabled, toggle bool
	latched         bool
	frequency       float64
	effective       uint32
	latch, data     uint16
	access          byte
	start           float64
}

// Device is an 8253 timer. Counters are derived from virtual time and
// channel 0 raises IRQ 0 from a scheduler event once per period.
type Device struct {
	pic      processor.InterruptController
	sched    *scheduler.Scheduler
	handler  scheduler.Handler
	channels [3]pitChannel
}

func New(sched *scheduler.Scheduler) *Device {
	m := &Device{sched: sched}
	m.handler = sched.NewHandler("pit", m.timerEvent)
	return m
}

func (m *Device) Install(p processor.Processor) error {
	m.pic = p.GetInterruptController()
	return p.InstallIODevice(m, 0x40, 0x43)
}

func (m *Device) Name() string {
	return "Programmable Interval Timer (Intel 8253)"
}

func (m *Device) Reset() {
	m.sched.RemoveEvents(m.handler)
	m.channels = [3]pitChannel{}
}

func (m *Device) Step(int) error {
	return nil
}

func (m *Device) GetFrequency(channel int) float64 {
	return m.channels[channel].frequency
}

// Period is the time between two IRQ 0 in virtual milliseconds.
func (m *Device) Period() float64 {
	ch := &m.channels[0]
	if !ch.enabled {
		return 0
	}
	return float64(ch.effective) * 1000 / InputFrequency
}

func (m *Device) timerEvent(uint32) {
	if m.pic != nil {
		m.pic.LowerIRQ(0)
		m.pic.RaiseIRQ(0)
	}
	if p := m.Period(); p > 0 {
		m.sched.AddEvent(m.handler, p, 0)
	}
}

func (m *Device) count(ch *pitChannel) uint16 {
	if !ch.enabled {
		return ch.data
	}
	elapsed := m.sched.Clock().FullIndex() - ch.start
	ticks := uint64(elapsed * InputFrequency / 1000)
	return uint16(uint64(ch.effective) - ticks%uint64(ch.effective))
}

func (m *Device) In(port uint16) byte {
	if port == 0x43 {
		return 0
	}

	ch := &m.channels[port&3]
	v := ch.latch
	if !ch.latched {
		v = m.count(ch)
	}

	var ret byte
	switch ch.access {
	case accessLowByte:
		ret = byte(v)
		ch.latched = false
	case accessHighByte:
		ret = byte(v >> 8)
		ch.latched = false
	default:
		if ch.toggle {
			ret = byte(v >> 8)
			ch.latched = false
		} else {
			ret = byte(v)
		}
		ch.toggle = !ch.toggle
	}
	return ret
}

func (m *Device) Out(port uint16, data byte) {
	switch port {
	case 0x40, 0x41, 0x42:
		ch := &m.channels[port&3]
		data16 := uint16(data)
		done := true

		switch ch.access {
		case accessLowByte:
			ch.data = (ch.data & 0xFF00) | data16
		case accessHighByte:
			ch.data = (ch.data & 0x00FF) | (data16 << 8)
		default:
			if ch.toggle {
				ch.data = (ch.data & 0x00FF) | (data16 << 8)
			} else {
				ch.data = (ch.data & 0xFF00) | data16
				done = false
			}
			ch.toggle = !ch.toggle
		}
		if done {
			m.load(int(port & 3))
		}
	case 0x43: // Mode/Command register.
		if data>>6 == 3 {
			return
		}
		ch := &m.channels[data>>6]
		if access := (data >> 4) & 3; access == accessLatch {
			ch.latch = m.count(ch)
			ch.latched = true
		} else {
			ch.access = access
			ch.toggle = false
		}
	}
}

func (m *Device) load(n int) {
	ch := &m.channels[n]
	ch.enabled = true
	if ch.data == 0 {
		ch.effective = 65536
	} else {
		ch.effective = uint32(ch.data)
	}
	ch.frequency = InputFrequency / float64(ch.effective)
	ch.start = m.sched.Clock().FullIndex()

	if n == 0 {
		m.sched.RemoveEvents(m.handler)
		m.sched.AddEvent(m.handler, m.Period(), 0)
	}
}
