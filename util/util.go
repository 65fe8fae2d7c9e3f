// Package util contains misc internal utilities.
package util

import (
	"strconv"
	"strings"
	"time"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// ClampInt clamps i to the closed interval [low, high]
func ClampInt(i, low, high int) int {
	if i < low {
		return low
	}
	if i > high {
		return high
	}
	return i
}

// SecsToDuration converts a floating point number of seconds to a duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * 1e9)
}

// Uint16ToFITS offsets unsigned samples into the signed range FITS stores
// them in, to be read back with BZERO = 32768
func Uint16ToFITS(buf []uint16) []int16 {
	out := make([]int16, len(buf))
	for idx := 0; idx < len(buf); idx++ {
		// underflow on uint16 produces the wrapping the FITS standard expects
		out[idx] = int16(buf[idx] - 32768)
	}
	return out
}
