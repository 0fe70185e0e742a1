// Zaparoo Bridge
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Bridge.
//
// Zaparoo Bridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Bridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Bridge.  If not, see <http://www.gnu.org/licenses/>.

package uart

import "slices"

// StandardRates are the rates a measured baud rate snaps to.
var StandardRates = []int{
	300, 600, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 74880, 115200,
	230400, 256000, 460800, 921600, 1500000, 1843200, 3686400,
}

// ClosestStandardRate returns the standard rate nearest to raw. Ties go to
// the higher rate.
func ClosestStandardRate(raw int) int {
	i := 1
	for ; i < len(StandardRates)-1; i++ {
		if raw <= StandardRates[i] {
			if raw-StandardRates[i-1] < StandardRates[i]-raw {
				i--
			}
			break
		}
	}
	return StandardRates[i]
}

// IsStandardRate reports whether rate appears in StandardRates.
func IsStandardRate(rate int) bool {
	return slices.Contains(StandardRates, rate)
}
