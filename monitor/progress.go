// SPDX-License-Identifier: GPL-3.0-or-later
package monitor

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	WindowSize = 60
	BarWidth   = 30
	NoETA      = "--:--"
	NoRate     = "---"
)

type sample struct {
	at    time.Time
	count int
}

// RateWindow keeps the last WindowSize progress samples of one account.
type RateWindow struct {
	samples []sample
}

func (w *RateWindow) Add(at time.Time, count int) {
	w.samples = append(w.samples, sample{at: at, count: count})
	if len(w.samples) > WindowSize {
		w.samples = w.samples[len(w.samples)-WindowSize:]
	}
}

// Rate is the progress per second between the oldest and the newest sample.
// It is false until there are two samples showing progress.
func (w *RateWindow) Rate() (float64, bool) {
	if len(w.samples) < 2 {
		return 0, false
	}
	oldest, newest := w.samples[0], w.samples[len(w.samples)-1]
	dt := newest.at.Sub(oldest.at).Seconds()
	dc := newest.count - oldest.count
	if dt <= 0 || dc <= 0 {
		return 0, false
	}
	return float64(dc) / dt, true
}

// FormatETA renders seconds as MmSSs, HhMMm or, beyond a day, whole hours.
func FormatETA(seconds float64) string {
	if seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return NoETA
	}
	if seconds > 86400 {
		return fmt.Sprintf("%.0fh", seconds/3600)
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func ProgressBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(float64(width) * fraction)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
