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

package memory

import "testing"

func TestPointer(t *testing.T) {
	t.Run("RealMode", func(t *testing.T) {
		if p := NewPointer(0xF000, 0xFFF0); p != 0xFFFF0 {
			t.Errorf("NewPointer() = %v", p)
		}
		// The 8088 wraps at 1MB.
		if p := NewPointer(0xFFFF, 0x0010); p != 0 {
			t.Errorf("NewPointer() = %v, want wrap to 0", p)
		}
	})

	t.Run("Masked", func(t *testing.T) {
		if p := Pointer(0x1234567).Masked(); p != 0x234567 {
			t.Errorf("Masked() = %v", p)
		}
		if s := Pointer(0x500).String(); s != "0x000500" {
			t.Errorf("String() = %q", s)
		}
	})
}
