/*
Package estimate derives the block production rate from a trailing window of
block timestamps, and projects the wall-clock instant at which a future
block height will be reached.
*/
package estimate

import "fmt"

// Mode selects the rate used in projections: the empirical trailing
// average, or the schedule's nominal block time.
type Mode string

const (
	Empirical Mode = "empirical"
	Nominal   Mode = "nominal"
)

func (m Mode) Valid() bool {
	return m == Empirical || m == Nominal
}

// RateWindowError means the sample window had no usable intervals, so no
// empirical rate could be derived. The caller should retain the previously
// active rate.
type RateWindowError struct {
	NumSamples int
}

func (err RateWindowError) Error() string {
	return fmt.Sprintf("no valid intervals in a window of %d samples", err.NumSamples)
}

// AvgInterval returns the mean interval, in seconds, between adjacent
// timestamps in times, ordered most recent first. Only strictly positive
// deltas count; non-positive ones come from out-of-order or duplicated feed
// timestamps and are excluded. Returns a RateWindowError if times has fewer
// than two entries or no interval is valid. The average is recomputed fresh
// from each window; there is no state across calls.
func AvgInterval(times []int64) (float64, error) {
	var sum, n int64
	for i := 0; i+1 < len(times); i++ {
		d := times[i] - times[i+1]
		if d > 0 {
			sum += d
			n++
		}
	}
	if n == 0 {
		return 0, RateWindowError{NumSamples: len(times)}
	}
	return float64(sum) / float64(n), nil
}
