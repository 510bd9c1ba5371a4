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

package version

import "testing"

func TestVersion(t *testing.T) {
	v := Version{1, 2, 3, ""}
	if s := v.FullString(); s != "1.2.3" {
		t.Errorf("FullString() = %q", s)
	}
	v.Build = "dirty"
	if s := v.FullString(); s != "1.2.3-dirty" {
		t.Errorf("FullString() = %q", s)
	}
}
