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
	"sync"
	"testing"
)

// runMillis drives the scheduler like the CPU loop does, with a CPU that
// always executes its whole run-length.
func runMillis(s *Scheduler, ms int) {
	c := s.Clock()
	for i := 0; i < ms; i++ {
		for s.RunQueue() {
			c.Consume(c.Cycles)
		}
		s.Tick()
	}
}

func TestSchedulerOrdering(t *testing.T) {
	s := New(NewClock(1000), 16)
	delays := []float64{0.5, 0.1, 2.2, 0.9, 0.3, 1.7, 3.05, 0.75}

	var fired []float64
	h := s.NewHandler("order", func(payload uint32) {
		fired = append(fired, delays[payload])
	})
	for i, d := range delays {
		s.AddEvent(h, d, uint32(i))
	}
	if s.Pending() != len(delays) {
		t.Fatalf("pending = %d, want %d", s.Pending(), len(delays))
	}

	runMillis(s, 5)

	if len(fired) != len(delays) {
		t.Fatalf("fired %d events, want %d", len(fired), len(delays))
	}
	for i := 1; i < len(fired); i++ {
		if fired[i] < fired[i-1] {
			t.Errorf("event %v fired after %v", fired[i], fired[i-1])
		}
	}
	if s.Pending() != 0 || s.Free() != 16 {
		t.Errorf("pool leaked: pending=%d free=%d", s.Pending(), s.Free())
	}
}

func TestSchedulerFiresAtCycle(t *testing.T) {
	s := New(NewClock(1000), 8)
	c := s.Clock()

	var firedAt int64 = -1
	h := s.NewHandler("at", func(uint32) {
		firedAt = c.TickIndexND()
	})
	s.AddEvent(h, 0.25, 0)

	if !s.RunQueue() {
		t.Fatal("expected cycles left in the first millisecond")
	}
	if c.Cycles != 250 {
		t.Fatalf("run-length = %d, want 250", c.Cycles)
	}
	c.Consume(c.Cycles)
	s.RunQueue()
	if firedAt != 250 {
		t.Errorf("fired at cycle %d, want 250", firedAt)
	}
	if c.Cycles != 750 {
		t.Errorf("run-length after drain = %d, want 750", c.Cycles)
	}
}

func TestSchedulerReentrant(t *testing.T) {
	s := New(NewClock(1000), 8)
	c := s.Clock()

	var fired []uint32
	var h Handler
	h = s.NewHandler("again", func(payload uint32) {
		fired = append(fired, payload)
		if payload == 1 {
			s.AddEvent(h, 0, 2)
		}
	})
	s.AddEvent(h, 0, 1)

	s.RunQueue()
	if len(fired) != 1 {
		t.Fatalf("fired %v, want only the first event in the first pass", fired)
	}
	if c.Cycles != 1 {
		t.Errorf("run-length = %d, want 1", c.Cycles)
	}

	c.Consume(c.Cycles)
	s.RunQueue()
	if len(fired) != 2 || fired[1] != 2 {
		t.Errorf("fired %v, want [1 2]", fired)
	}
}

func TestSchedulerReentrantKeepsDueEvents(t *testing.T) {
	s := New(NewClock(1000), 8)
	c := s.Clock()

	var fired []string
	var b Handler
	b = s.NewHandler("b", func(uint32) { fired = append(fired, "b") })
	a := s.NewHandler("a", func(uint32) {
		fired = append(fired, "a")
		s.AddEvent(b, 0, 0)
	})
	cc := s.NewHandler("c", func(uint32) { fired = append(fired, "c") })
	s.AddEvent(a, 0.2, 0)
	s.AddEvent(cc, 0.3, 0)

	// The CPU overruns its run-length and reaches 0.5 ms before the queue
	// is serviced again.
	s.RunQueue()
	c.Consume(500)
	s.RunQueue()

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "c" {
		t.Fatalf("fired %v, want [a c]", fired)
	}
	if c.Cycles != 1 {
		t.Errorf("run-length = %d, want 1", c.Cycles)
	}
	events := s.Events()
	if len(events) != 1 || events[0].Name != "b" || events[0].Index != 0.2 {
		t.Errorf("pending = %+v, want b at 0.2", events)
	}

	c.Consume(c.Cycles)
	s.RunQueue()
	if len(fired) != 3 || fired[2] != "b" {
		t.Errorf("fired %v, want [a c b]", fired)
	}
	if s.Pending() != 0 || s.Free() != 8 {
		t.Errorf("pool leaked: pending=%d free=%d", s.Pending(), s.Free())
	}
}

func TestSchedulerRelativeToFireTime(t *testing.T) {
	s := New(NewClock(1000), 8)
	var times []float64
	var h Handler
	h = s.NewHandler("periodic", func(payload uint32) {
		times = append(times, s.Clock().FullIndex())
		if payload < 3 {
			s.AddEvent(h, 0.4, payload+1)
		}
	})
	s.AddEvent(h, 0.4, 0)
	runMillis(s, 3)

	want := []float64{0.4, 0.8, 1.2, 1.6}
	if len(times) != len(want) {
		t.Fatalf("fired %d times, want %d", len(times), len(want))
	}
	for i, w := range want {
		if d := times[i] - w; d > 0.0011 || d < -0.0011 {
			t.Errorf("event %d fired at %v, want %v", i, times[i], w)
		}
	}
}

func TestSchedulerQueueFull(t *testing.T) {
	s := New(NewClock(1000), 4)
	var dropped []string
	s.OnDrop = func(name string, _ uint32) {
		dropped = append(dropped, name)
	}

	h := s.NewHandler("fill", func(uint32) {})
	for i := 0; i < 5; i++ {
		s.AddEvent(h, float64(i), uint32(i))
	}
	if s.Pending() != 4 || s.Free() != 0 {
		t.Errorf("pending=%d free=%d, want 4 and 0", s.Pending(), s.Free())
	}
	if len(dropped) != 1 || dropped[0] != "fill" {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestSchedulerRemove(t *testing.T) {
	s := New(NewClock(1000), 16)
	a := s.NewHandler("a", func(uint32) {})
	b := s.NewHandler("b", func(uint32) {})

	for i := 0; i < 3; i++ {
		s.AddEvent(a, 1, uint32(i))
		s.AddEvent(b, 2, uint32(i))
	}

	t.Run("Specific", func(t *testing.T) {
		s.RemoveSpecificEvents(a, 1)
		if s.Pending() != 5 {
			t.Fatalf("pending = %d, want 5", s.Pending())
		}
		for _, e := range s.Events() {
			if e.Name == "a" && e.Payload == 1 {
				t.Error("specific event still queued")
			}
		}
	})

	t.Run("All", func(t *testing.T) {
		s.RemoveEvents(b)
		events := s.Events()
		if len(events) != 2 {
			t.Fatalf("pending = %d, want 2", len(events))
		}
		for _, e := range events {
			if e.Name != "a" {
				t.Errorf("unexpected event %q", e.Name)
			}
		}
		if s.Free() != 14 {
			t.Errorf("free = %d, want 14", s.Free())
		}
	})
}

func TestSchedulerTickRebase(t *testing.T) {
	s := New(NewClock(1000), 8)
	h := s.NewHandler("later", func(uint32) {})
	s.AddEvent(h, 2.5, 0)

	s.Tick()
	events := s.Events()
	if len(events) != 1 || events[0].Index != 1.5 {
		t.Fatalf("events after tick = %+v", events)
	}
	if s.Clock().Ticks != 1 {
		t.Errorf("ticks = %d", s.Clock().Ticks)
	}
}

func TestSchedulerStallsCPU(t *testing.T) {
	s := New(NewClock(1000), 8)
	c := s.Clock()

	s.RunQueue()
	if c.Cycles != 1000 {
		t.Fatalf("run-length with empty queue = %d, want 1000", c.Cycles)
	}

	h := s.NewHandler("soon", func(uint32) {})
	s.AddEvent(h, 0.1, 0)
	if c.Cycles != 0 || c.CycleLeft != 1000 {
		t.Errorf("cycles=%d left=%d, want CPU stalled", c.Cycles, c.CycleLeft)
	}
}

func TestSchedulerTickHandlers(t *testing.T) {
	s := New(NewClock(100), 8)
	var count int
	h := s.NewHandler("tick", func(uint32) { count++ })
	s.AddTickHandler(h)

	runMillis(s, 3)
	if count != 3 {
		t.Fatalf("tick handler called %d times, want 3", count)
	}

	s.DelTickHandler(h)
	runMillis(s, 2)
	if count != 3 {
		t.Errorf("tick handler called after removal")
	}
}

func TestClockSnapshot(t *testing.T) {
	s := New(NewClock(100), 8)
	c := s.Clock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var last float64
		for {
			select {
			case <-done:
				return
			default:
			}
			v := c.Snapshot()
			if v < last {
				t.Errorf("snapshot went backwards: %v < %v", v, last)
				return
			}
			last = v
		}
	}()

	runMillis(s, 50)
	close(done)
	wg.Wait()

	if v := c.Snapshot(); v != 50 {
		t.Errorf("snapshot = %v, want 50", v)
	}
}
