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

package trace

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log"
	"strings"

	"github.com/andreas-jonsson/xtchipset/emulator/chipset"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral/dma"
	"github.com/spf13/afero"
)

// Recorder encodes events as JSON lines on its own goroutine. A nil
// Recorder discards everything.
type Recorder struct {
	events chan Event
	done   chan error
}

// Start creates name on fs and begins recording. Names ending in .gz are
// compressed.
func Start(fs afero.Fs, name string, queueSize, bufferSize int) (*Recorder, error) {
	fp, err := fs.Create(name)
	if err != nil {
		return nil, err
	}

	var out io.Writer = fp
	var zw *gzip.Writer
	if strings.HasSuffix(name, ".gz") {
		zw = gzip.NewWriter(fp)
		out = zw
	}

	r := &Recorder{
		events: make(chan Event, queueSize),
		done:   make(chan error, 1),
	}

	go func() {
		var buffer bytes.Buffer
		var werr error

		defer func() {
			if _, err := io.Copy(out, &buffer); err != nil && werr == nil {
				werr = err
			}
			if zw != nil {
				if err := zw.Close(); err != nil && werr == nil {
					werr = err
				}
			}
			if err := fp.Close(); err != nil && werr == nil {
				werr = err
			}
			r.done <- werr
		}()

		enc := json.NewEncoder(&buffer)
		for ev := range r.events {
			if werr != nil {
				continue
			}
			if werr = enc.Encode(ev); werr != nil {
				log.Print("trace: ", werr)
				continue
			}
			if buffer.Len() >= bufferSize {
				if _, werr = io.Copy(out, &buffer); werr != nil {
					log.Print("trace: ", werr)
				}
			}
		}
	}()
	return r, nil
}

func (r *Recorder) Record(ev Event) {
	if r == nil {
		return
	}
	r.events <- ev
}

// Close flushes the trace and waits for the writer to finish.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	close(r.events)
	return <-r.done
}

// Attach records interrupt dispatches, DMA channel events and dropped
// scheduler events of c.
func (r *Recorder) Attach(c *chipset.Chipset) {
	if r == nil {
		return
	}
	now := c.Clock.FullIndex

	c.PIC.OnDispatch = func(irq, vector int) {
		r.Record(Event{Time: now(), Kind: KindInterrupt, Line: irq, Vector: vector})
	}
	c.DMA.OnEvent = func(channel int, ev dma.Event) {
		r.Record(Event{Time: now(), Kind: KindDMA, Line: channel, Name: ev.String()})
	}
	c.Scheduler.OnDrop = func(name string, _ uint32) {
		r.Record(Event{Time: now(), Kind: KindDrop, Line: -1, Name: name})
	}
}
