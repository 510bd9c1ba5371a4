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

package platform

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/andreas-jonsson/xtchipset/emulator/chipset"
	"github.com/andreas-jonsson/xtchipset/emulator/debug"
	"github.com/andreas-jonsson/xtchipset/emulator/scheduler"
	"github.com/gdamore/tcell"
)

type tcellPlatform struct {
	settings

	screen   tcell.Screen
	clock    atomic.Pointer[scheduler.Clock]
	done     chan struct{}
	quitOnce sync.Once
}

func newTcellPlatform(s tcell.Screen, cfg settings) *tcellPlatform {
	return &tcellPlatform{settings: cfg, screen: s, done: make(chan struct{})}
}

func tcellStart(mainLoop func(Platform), cfg settings) {
	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)

	s, err := tcell.NewScreen()
	if err != nil {
		log.Fatal(err)
	}
	if err = s.Init(); err != nil {
		log.Fatal(err)
	}
	defer s.Fini()

	s.HideCursor()
	s.DisableMouse()
	s.Clear()

	// The screen owns the terminal now, keep the log off it.
	debug.MuteLogging(true)
	defer debug.MuteLogging(false)

	p := newTcellPlatform(s, cfg)
	Instance = p
	go p.pollEvents()
	mainLoop(p)
}

func (p *tcellPlatform) Present(st chipset.State) {
	// A full queue only means the monitor is behind, the next snapshot
	// replaces this one anyway.
	p.screen.PostEvent(tcell.NewEventInterrupt(st))
}

func (p *tcellPlatform) SetClock(c *scheduler.Clock) {
	p.clock.Store(c)
}

// now is the latest virtual time, which may be ahead of the last snapshot.
func (p *tcellPlatform) now(st chipset.State) float64 {
	if c := p.clock.Load(); c != nil {
		if t := c.Snapshot(); t > st.Time {
			return t
		}
	}
	return st.Time
}

func (p *tcellPlatform) Done() <-chan struct{} {
	return p.done
}

func (p *tcellPlatform) quit() {
	p.quitOnce.Do(func() { close(p.done) })
}

func (p *tcellPlatform) pollEvents() {
	s := p.screen
	for {
		switch ev := s.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyF12, tcell.KeyCtrlC:
				p.quit()
			case tcell.KeyRune:
				if ev.Rune() == 'q' {
					p.quit()
				}
			}
		case *tcell.EventResize:
			s.Sync()
		case *tcell.EventInterrupt:
			if st, ok := ev.Data().(chipset.State); ok {
				drawMonitor(s, p.title, p.now(st), st, debug.History())
				s.Show()
			}
		}
	}
}
