// Package source implements a durable, append-only MIDI note source keyed
// by musical time.
package source

import "fmt"

// PPQN is the number of ticks in one beat.
const PPQN = 1920

// Beats is a musical time measured in ticks of 1/PPQN beat.
type Beats int64

// OneTick is the smallest representable step in musical time.
const OneTick Beats = 1

// NewBeats builds a time from whole beats plus ticks.
func NewBeats(beats, ticks int64) Beats {
	return Beats(beats*PPQN + ticks)
}

// BeatsFromFloat converts a fractional beat count, rounding to the nearest tick.
func BeatsFromFloat(f float64) Beats {
	if f < 0 {
		return Beats(f*PPQN - 0.5)
	}
	return Beats(f*PPQN + 0.5)
}

// FromTicks converts a tick count at another resolution.
func FromTicks(ticks int64, resolution uint16) Beats {
	if resolution == 0 || resolution == PPQN {
		return Beats(ticks)
	}
	return Beats(ticks * PPQN / int64(resolution))
}

// Ticks returns the raw tick count.
func (b Beats) Ticks() int64 {
	return int64(b)
}

// Float returns the time as fractional beats.
func (b Beats) Float() float64 {
	return float64(b) / PPQN
}

func (b Beats) String() string {
	sign := ""
	v := int64(b)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d:%04d", sign, v/PPQN, v%PPQN)
}
