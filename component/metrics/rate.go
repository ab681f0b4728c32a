package metrics

import "time"

// RatePoint is one instantaneous-rate datapoint derived from a pair of
// consecutive counter samples. The timestamp is the later sample's.
type RatePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Rate      float64   `json:"rate"`
}

// currentRateLookback is how many trailing samples CurrentRate scans for a
// valid consecutive pair.
const currentRateLookback = 5

// ToRateSeries converts a cumulative counter's sample sequence into an
// instantaneous-rate sequence. For each consecutive pair the rate is the
// value delta divided by the actual elapsed seconds between the two
// timestamps; the sampling cadence is never assumed. A negative delta means
// the counter reset, and that pair is dropped instead of emitting a negative
// rate. Fewer than 2 input samples yield an empty result.
func ToRateSeries(datapoints []Sample) []RatePoint {
	if len(datapoints) < 2 {
		return nil
	}
	out := make([]RatePoint, 0, len(datapoints)-1)
	for i := 1; i < len(datapoints); i++ {
		prev, curr := datapoints[i-1], datapoints[i]
		rate, ok := pairRate(prev, curr)
		if !ok {
			continue
		}
		out = append(out, RatePoint{Timestamp: curr.Timestamp, Rate: rate})
	}
	return out
}

// CurrentRate returns the most recent valid consecutive-pair rate within the
// trailing samples, or false when fewer than 2 samples exist or no valid
// pair is found in the lookback window.
func CurrentRate(datapoints []Sample) (float64, bool) {
	n := len(datapoints)
	if n < 2 {
		return 0, false
	}
	lo := n - (currentRateLookback - 1)
	if lo < 1 {
		lo = 1
	}
	for i := n - 1; i >= lo; i-- {
		if rate, ok := pairRate(datapoints[i-1], datapoints[i]); ok {
			return rate, true
		}
	}
	return 0, false
}

func pairRate(prev, curr Sample) (float64, bool) {
	delta := curr.Value - prev.Value
	if delta < 0 {
		// counter reset
		return 0, false
	}
	seconds := curr.Timestamp.Sub(prev.Timestamp).Seconds()
	if seconds <= 0 {
		return 0, false
	}
	return delta / seconds, true
}
