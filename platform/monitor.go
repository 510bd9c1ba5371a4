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
	"fmt"
	"strings"

	"github.com/andreas-jonsson/xtchipset/emulator/chipset"
	"github.com/andreas-jonsson/xtchipset/emulator/peripheral/pic"
	"github.com/gdamore/tcell"
)

var (
	styleText   = tcell.StyleDefault.Foreground(tcell.ColorSilver).Background(tcell.ColorBlack)
	styleHeader = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy).Bold(true)
	styleLabel  = tcell.StyleDefault.Foreground(tcell.ColorTeal).Background(tcell.ColorBlack)
	styleActive = tcell.StyleDefault.Foreground(tcell.ColorYellow).Background(tcell.ColorBlack)
	styleError  = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorMaroon).Bold(true)
)

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) int {
	w, _ := s.Size()
	for _, r := range text {
		if x >= w {
			break
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}

func drawLine(s tcell.Screen, y int, style tcell.Style, text string) {
	w, _ := s.Size()
	x := drawText(s, 0, y, style, text)
	for ; x < w; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}

func flags(names ...string) string {
	var set []string
	for i := 0; i+1 < len(names); i += 2 {
		if names[i+1] != "" {
			set = append(set, names[i])
		}
	}
	if len(set) == 0 {
		return "-"
	}
	return strings.Join(set, ",")
}

func yes(b bool) string {
	if b {
		return "y"
	}
	return ""
}

func picRow(name string, r pic.RegisterSet) string {
	active := "-"
	if r.ActiveIRQ < 8 {
		active = fmt.Sprint(r.ActiveIRQ)
	}
	return fmt.Sprintf("%-9s %02X   %02X   %02X   %-4s %02X    %s",
		name, r.Request, r.Mask, r.InService, active, r.VectorBase,
		flags("smm", yes(r.SpecialMask), "aeoi", yes(r.AutoEOI), "single", yes(r.Single), "isr", yes(r.ReadInService)))
}

// drawMonitor renders one chipset snapshot followed by as much of the log
// as fits.
func drawMonitor(s tcell.Screen, title string, now float64, st chipset.State, history []string) {
	w, h := s.Size()
	s.Fill(' ', styleText)

	if title == "" {
		title = "xtchipset"
	}
	drawLine(s, 0, styleHeader, fmt.Sprintf(" %s  %.3f ms  [q] quit", title, now))

	y := 2
	drawLine(s, y, styleLabel, "PIC       IRR  IMR  ISR  act  base  flags")
	y++
	drawLine(s, y, styleText, picRow("primary", st.Primary))
	y++
	drawLine(s, y, styleText, picRow("secondary", st.Secondary))
	y++

	var counts strings.Builder
	for irq, n := range st.Interrupts.Dispatched {
		if n != 0 {
			fmt.Fprintf(&counts, " %d:%d", irq, n)
		}
	}
	style := styleText
	if st.IRQCheck {
		style = styleActive
	}
	drawLine(s, y, style, fmt.Sprintf("irq%s  spurious:%d", counts.String(), st.Interrupts.Spurious))
	y += 2

	drawLine(s, y, styleLabel, "DMA  page addr  count mode     state")
	y++
	for _, c := range st.DMA {
		if y >= h {
			return
		}
		mode := "inc"
		if c.Decrement {
			mode = "dec"
		}
		if c.AutoInit {
			mode += ",auto"
		}
		style := styleText
		if c.Request && !c.Masked {
			style = styleActive
		}
		width := ""
		if c.Is16 {
			width = "w"
		}
		drawLine(s, y, style, fmt.Sprintf("%d%-3s %02X   %04X  %04X  %-8s %s %s",
			c.Number, width, c.Page, c.CurrentAddress&0xFFFF, c.CurrentCount, mode,
			flags("masked", yes(c.Masked), "tc", yes(c.TerminalCount), "req", yes(c.Request)), c.Owner))
		y++
	}
	y++

	if y < h {
		drawLine(s, y, styleLabel, fmt.Sprintf("events %d pending, %d free", len(st.Events), st.FreeEvents))
		y++
	}
	for i, e := range st.Events {
		if i == 4 || y >= h {
			break
		}
		drawLine(s, y, styleText, fmt.Sprintf("  %-12s %8.3f  %d", e.Name, e.Index, e.Payload))
		y++
	}

	if st.Err != "" && y < h {
		y++
		drawLine(s, y, styleError, st.Err)
		y++
	}

	y++
	if n := h - y; n > 0 {
		if len(history) > n {
			history = history[len(history)-n:]
		}
		for _, line := range history {
			if len(line) > w {
				line = line[:w]
			}
			drawLine(s, y, styleText, line)
			y++
		}
	}
}
