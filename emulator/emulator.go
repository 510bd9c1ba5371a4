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

package emulator

import (
	"errors"
	"flag"
	"log"
	"time"

	"github.com/andreas-jonsson/xtchipset/emulator/chipset"
	"github.com/andreas-jonsson/xtchipset/emulator/debug"
	"github.com/andreas-jonsson/xtchipset/emulator/processor/cpu"
	"github.com/andreas-jonsson/xtchipset/emulator/script"
	"github.com/andreas-jonsson/xtchipset/emulator/trace"
	"github.com/andreas-jonsson/xtchipset/platform"
	"github.com/spf13/afero"
)

var ErrNoScript = errors.New("no script given")

// Start runs the machine described by the command line on p.
func Start(p platform.Platform) {
	fs := afero.NewOsFs()
	cfg, err := loadConfig(fs, flag.CommandLine)
	if err != nil {
		log.Print(err)
		return
	}
	if err := Run(fs, cfg, p); err != nil {
		log.Print(err)
	}
}

// Run builds the chipset, runs the guest script and then cfg.Duration more
// milliseconds. A quit request from the platform ends the run without error.
func Run(fs afero.Fs, cfg Config, p platform.Platform) (err error) {
	if cfg.Script == "" {
		return ErrNoScript
	}

	if cfg.Log != "" {
		closeLog, lerr := debug.LogToFile(fs, cfg.Log)
		if lerr != nil {
			return lerr
		}
		defer closeLog()
	}

	c := chipset.New(cfg.Chipset())
	proc, errs := cpu.NewCPU(c.Peripherals())
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	defer proc.Close()
	proc.Reset()

	if cfg.Trace != "" {
		rec, terr := trace.Start(fs, cfg.Trace, trace.DefaultQueueSize, trace.DefaultBufferSize)
		if terr != nil {
			return terr
		}
		rec.Attach(c)
		defer func() {
			if cerr := rec.Close(); err == nil {
				err = cerr
			}
		}()
	}

	p.SetClock(c.Clock)
	host := script.New(c, proc)
	defer host.Close()

	every := cfg.PresentEvery
	if every <= 0 {
		every = defaultPresentEvery
	}
	start := time.Now()
	tick := c.Scheduler.NewHandler("present", func(uint32) {
		ticks := c.Clock.Ticks
		if ticks%uint64(every) == 0 {
			p.Present(c.State())
		}
		select {
		case <-p.Done():
			c.Stop()
		default:
		}
		if cfg.Realtime {
			if d := time.Duration(ticks)*time.Millisecond - time.Since(start); d > 0 {
				time.Sleep(d)
			}
		}
	})
	c.Scheduler.AddTickHandler(tick)

	err = host.RunFile(fs, cfg.Script)
	if err == nil && cfg.Duration > 0 {
		err = c.Run(proc, cfg.Duration)
	}
	p.Present(c.State())

	if errors.Is(c.Err(), chipset.ErrStopped) {
		log.Print("emulator: stopped by user")
		return nil
	}
	return err
}
