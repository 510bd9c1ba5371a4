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
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/andreas-jonsson/xtchipset/emulator/chipset"
	"github.com/andreas-jonsson/xtchipset/emulator/scheduler"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

type headlessPlatform struct {
	settings

	bar      *progressbar.ProgressBar
	done     chan struct{}
	quitOnce sync.Once
}

func newHeadlessPlatform(w io.Writer, width int, cfg settings) *headlessPlatform {
	total := cfg.duration
	if total <= 0 {
		total = -1
	}
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(cfg.title),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("ms"),
		progressbar.OptionShowIts(),
		progressbar.OptionSpinnerType(14),
	}
	if width > 0 {
		opts = append(opts, progressbar.OptionSetWidth(width))
	}
	return &headlessPlatform{
		settings: cfg,
		bar:      progressbar.NewOptions64(total, opts...),
		done:     make(chan struct{}),
	}
}

func headlessStart(mainLoop func(Platform), cfg settings) {
	width := 0
	if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil {
		width = w / 2
	}
	p := newHeadlessPlatform(os.Stderr, width, cfg)
	Instance = p

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			p.quit()
		case <-p.done:
		}
	}()

	mainLoop(p)
	p.bar.Finish()
	p.quit()
}

func (p *headlessPlatform) Present(st chipset.State) {
	p.bar.Set64(int64(st.Ticks))
	if st.Err != "" {
		p.bar.Describe(st.Err)
	}
}

// SetClock is a no-op, progress follows the snapshots handed to Present.
func (p *headlessPlatform) SetClock(*scheduler.Clock) {}

func (p *headlessPlatform) Done() <-chan struct{} {
	return p.done
}

func (p *headlessPlatform) quit() {
	p.quitOnce.Do(func() { close(p.done) })
}
