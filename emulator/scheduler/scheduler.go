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

package scheduler

import (
	"log"
)

// DefaultQueueSize is the number of events that can be pending at once.
const DefaultQueueSize = 512

const none = -1

// Handler is a registered event callback. Two handlers are the same handler
// only if they came from the same NewHandler call.
type Handler struct {
	id   uint32
	name string
	fn   func(payload uint32)
}

func (h Handler) Name() string {
	return h.name
}

func (h Handler) Valid() bool {
	return h.id != 0 && h.fn != nil
}

type entry struct {
	index   float64
	payload uint32
	handler Handler
	pass    uint64
	next    int
}

// EventInfo describes a pending event.
type EventInfo struct {
	Name    string
	Index   float64
	Payload uint32
}

// Scheduler is a fixed size queue of timed callbacks ordered by virtual time.
// Entries live in an arena and are chained by index in ascending order of
// fire time, so head is always the earliest pending event.
type Scheduler struct {
	clock   *Clock
	entries []entry
	free    int
	head    int
	used    int

	handlers  uint32
	tickers   []Handler
	inService bool
	srvLag    float64
	pass      uint64

	// OnDrop is called when an event is dropped because the queue is full.
	OnDrop func(name string, payload uint32)
}

func New(clock *Clock, size int) *Scheduler {
	if size <= 0 {
		size = DefaultQueueSize
	}
	s := &Scheduler{clock: clock, entries: make([]entry, size)}
	s.Reset()
	return s
}

func (s *Scheduler) Clock() *Clock {
	return s.clock
}

// Reset drops every pending event. Registered handlers stay valid.
func (s *Scheduler) Reset() {
	for i := range s.entries {
		s.entries[i] = entry{next: i + 1}
	}
	s.entries[len(s.entries)-1].next = none
	s.free = 0
	s.head = none
	s.used = 0
	s.inService = false
	s.srvLag = 0
}

// NewHandler registers fn under a new identity.
func (s *Scheduler) NewHandler(name string, fn func(payload uint32)) Handler {
	s.handlers++
	return Handler{id: s.handlers, name: name, fn: fn}
}

// Pending is the number of queued events.
func (s *Scheduler) Pending() int {
	return s.used
}

// Free is the number of unused queue slots.
func (s *Scheduler) Free() int {
	return len(s.entries) - s.used
}

// Events lists the pending events in firing order.
func (s *Scheduler) Events() []EventInfo {
	events := make([]EventInfo, 0, s.used)
	for i := s.head; i != none; i = s.entries[i].next {
		e := &s.entries[i]
		events = append(events, EventInfo{Name: e.handler.name, Index: e.index, Payload: e.payload})
	}
	return events
}

// AddEvent schedules h to fire delay virtual milliseconds from now. Inside a
// firing event "now" is the fire time of that event.
func (s *Scheduler) AddEvent(h Handler, delay float64, payload uint32) {
	if !h.Valid() {
		log.Print("scheduler: ignoring invalid event handler")
		return
	}
	if s.free == none {
		log.Printf("scheduler: event queue full, dropping %q", h.name)
		if s.OnDrop != nil {
			s.OnDrop(h.name, payload)
		}
		return
	}

	i := s.free
	e := &s.entries[i]
	s.free = e.next

	if s.inService {
		e.index = delay + s.srvLag
		e.pass = s.pass
	} else {
		e.index = delay + s.clock.TickIndex()
		e.pass = 0
	}
	e.handler = h
	e.payload = payload
	s.used++
	s.insert(i)
}

func (s *Scheduler) insert(i int) {
	e := &s.entries[i]
	if s.head == none || s.entries[s.head].index > e.index {
		e.next = s.head
		s.head = i
	} else {
		prev := s.head
		for s.entries[prev].next != none && s.entries[s.entries[prev].next].index <= e.index {
			prev = s.entries[prev].next
		}
		e.next = s.entries[prev].next
		s.entries[prev].next = i
	}

	// Stop the CPU early if the new head is due before its current run ends.
	c := s.clock
	if c.MakeCycles(s.entries[s.head].index-c.TickIndex()) < c.Cycles {
		c.Stall()
	}
}

func (s *Scheduler) release(i int) {
	s.entries[i] = entry{next: s.free}
	s.free = i
	s.used--
}

// RemoveEvents cancels every pending event of h.
func (s *Scheduler) RemoveEvents(h Handler) {
	s.remove(func(e *entry) bool { return e.handler.id == h.id })
}

// RemoveSpecificEvents cancels the pending events of h carrying payload.
func (s *Scheduler) RemoveSpecificEvents(h Handler, payload uint32) {
	s.remove(func(e *entry) bool { return e.handler.id == h.id && e.payload == payload })
}

func (s *Scheduler) remove(match func(e *entry) bool) {
	prev := none
	for i := s.head; i != none; {
		next := s.entries[i].next
		if match(&s.entries[i]) {
			if prev == none {
				s.head = next
			} else {
				s.entries[prev].next = next
			}
			s.release(i)
		} else {
			prev = i
		}
		i = next
	}
}

// RunQueue fires every event that is due and sets the CPU's next run-length.
// It returns false when the current millisecond has no cycles left, the
// caller should then Tick.
func (s *Scheduler) RunQueue() bool {
	c := s.clock
	c.CycleLeft += c.Cycles
	c.Cycles = 0
	if c.CycleLeft <= 0 {
		return false
	}

	nd := float64(c.TickIndexND())
	cycleMax := float64(c.CycleMax)

	s.inService = true
	s.pass++
	for {
		// Events added by this pass wait for the next one, but stay in place
		// so older due events behind them still fire. Callbacks may add or
		// cancel events, so the walk restarts from the head every time.
		prev, i := none, s.head
		for i != none && s.entries[i].pass == s.pass {
			prev, i = i, s.entries[i].next
		}
		if i == none || s.entries[i].index*cycleMax > nd {
			break
		}

		e := &s.entries[i]
		if prev == none {
			s.head = e.next
		} else {
			s.entries[prev].next = e.next
		}
		h, payload := e.handler, e.payload
		s.srvLag = e.index
		s.release(i)
		h.fn(payload)
	}
	s.inService = false

	if s.head != none {
		cycles := int64(s.entries[s.head].index*cycleMax - nd)
		if cycles <= 0 {
			cycles = 1
		}
		if cycles < c.CycleLeft {
			c.Cycles = cycles
		} else {
			c.Cycles = c.CycleLeft
		}
	} else {
		c.Cycles = c.CycleLeft
	}
	c.CycleLeft -= c.Cycles
	c.Publish()
	return true
}

// AddTickHandler registers h to be called with a zero payload at the start of
// every virtual millisecond.
func (s *Scheduler) AddTickHandler(h Handler) {
	if h.Valid() {
		s.tickers = append(s.tickers, h)
	}
}

func (s *Scheduler) DelTickHandler(h Handler) {
	for i, t := range s.tickers {
		if t.id == h.id {
			s.tickers = append(s.tickers[:i], s.tickers[i+1:]...)
			return
		}
	}
}

// Tick starts a new virtual millisecond. Pending events are moved one
// millisecond closer instead of being recomputed from an absolute time.
func (s *Scheduler) Tick() {
	s.clock.startTick()
	for i := s.head; i != none; i = s.entries[i].next {
		s.entries[i].index -= 1.0
	}

	tickers := append([]Handler(nil), s.tickers...)
	for _, t := range tickers {
		t.fn(0)
	}
	s.clock.Publish()
}
