package models

import "math"

// Round2 rounds to two decimal places, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// KDR is kills over deaths with deaths floored at 1, rounded to two decimals.
func KDR(kills, deaths int) float64 {
	return Round2(float64(kills) / float64(max(deaths, 1)))
}

// WinRate is wins over matches played, rounded to two decimals. Zero matches give zero.
func WinRate(wins, matches int) float64 {
	if matches <= 0 {
		return 0
	}
	return Round2(float64(wins) / float64(matches))
}
