// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gamestate

import "strconv"

// FormatMoney abbreviates an amount the way in-game chat shows it:
// 2.5B, 12.3M, 4.0k, or the plain number below a thousand.
func FormatMoney(amount int64) string {
	value := float64(amount)
	switch {
	case amount >= 1_000_000_000:
		return strconv.FormatFloat(value/1_000_000_000, 'f', 1, 64) + "B"
	case amount >= 1_000_000:
		return strconv.FormatFloat(value/1_000_000, 'f', 1, 64) + "M"
	case amount >= 1_000:
		return strconv.FormatFloat(value/1_000, 'f', 1, 64) + "k"
	}
	return strconv.FormatInt(amount, 10)
}
