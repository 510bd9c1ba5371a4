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
	"flag"
	"log"
	"os"

	"github.com/andreas-jonsson/xtchipset/emulator/chipset"
	"github.com/andreas-jonsson/xtchipset/emulator/scheduler"
	"golang.org/x/term"
)

type settings struct {
	title    string
	duration int64
	headless bool
}

type internalPlatform interface {
	config() *settings
}

type Config func(internalPlatform) error

// ConfigWithTitle sets the text shown in the monitor header or next to the
// progress bar.
func ConfigWithTitle(title string) Config {
	return func(p internalPlatform) error {
		p.config().title = title
		return nil
	}
}

// ConfigWithDuration tells the platform how many virtual milliseconds the
// run will last. Zero or less means unknown.
func ConfigWithDuration(ms int64) Config {
	return func(p internalPlatform) error {
		p.config().duration = ms
		return nil
	}
}

func ConfigWithHeadless(p internalPlatform) error {
	p.config().headless = true
	return nil
}

type Platform interface {
	// Present hands a chipset snapshot to the platform. It does not block
	// and may drop snapshots if the platform is busy.
	Present(s chipset.State)

	// Done is closed when the user asks to quit.
	Done() <-chan struct{}

	// SetClock gives the platform the clock whose published time it may
	// read from its own goroutine.
	SetClock(c *scheduler.Clock)
}

var Instance Platform

// Start runs mainLoop on the current goroutine with the monitor if stdout is
// a terminal, or with a progress bar otherwise.
func Start(mainLoop func(Platform), configs ...Config) {
	headless := !term.IsTerminal(int(os.Stdout.Fd()))
	if f := flag.Lookup("headless"); f != nil && f.Value.(flag.Getter).Get().(bool) {
		headless = true
	}
	if headless {
		configs = append(configs, ConfigWithHeadless)
	}

	var s settings
	for _, cfg := range configs {
		if err := cfg(&s); err != nil {
			log.Fatal(err)
		}
	}

	if s.headless {
		headlessStart(mainLoop, s)
		return
	}
	tcellStart(mainLoop, s)
}

func (s *settings) config() *settings {
	return s
}
