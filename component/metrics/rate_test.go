package metrics_test

import (
	"testing"
	"time"

	"github.com/ocihub/compute-telemetry/component/metrics"

	"github.com/stretchr/testify/require"
)

func counterSamples(base time.Time, step time.Duration, values ...float64) []metrics.Sample {
	samples := make([]metrics.Sample, 0, len(values))
	for i, value := range values {
		samples = append(samples, metrics.Sample{
			Timestamp: base.Add(time.Duration(i) * step),
			Value:     value,
		})
	}
	return samples
}

func TestToRateSeries(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	samples := counterSamples(base, time.Minute, 100, 160, 160, 280, 340, 400)

	rates := metrics.ToRateSeries(samples)
	require.Len(t, rates, len(samples)-1)
	for _, point := range rates {
		require.GreaterOrEqual(t, point.Rate, 0.0)
	}
	require.InDelta(t, 1.0, rates[0].Rate, 1e-9)  // 60 ops over 60s
	require.InDelta(t, 0.0, rates[1].Rate, 1e-9)  // idle minute
	require.InDelta(t, 2.0, rates[2].Rate, 1e-9)  // 120 ops over 60s
	require.Equal(t, samples[1].Timestamp, rates[0].Timestamp)
}

func TestToRateSeriesCounterReset(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// the counter resets once between the 3rd and 4th sample
	samples := counterSamples(base, time.Minute, 100, 160, 220, 10, 70, 130)

	rates := metrics.ToRateSeries(samples)
	require.Len(t, rates, len(samples)-2)
	for _, point := range rates {
		require.GreaterOrEqual(t, point.Rate, 0.0)
	}
}

func TestToRateSeriesUsesActualCadence(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	samples := []metrics.Sample{
		{Timestamp: base, Value: 0},
		{Timestamp: base.Add(time.Minute), Value: 120},
		// a gap: the next sample arrives three minutes later
		{Timestamp: base.Add(4 * time.Minute), Value: 480},
	}

	rates := metrics.ToRateSeries(samples)
	require.Len(t, rates, 2)
	require.InDelta(t, 2.0, rates[0].Rate, 1e-9)
	require.InDelta(t, 2.0, rates[1].Rate, 1e-9) // 360 ops over 180s, not over an assumed minute
}

func TestToRateSeriesNeedsTwoSamples(t *testing.T) {
	t.Parallel()

	require.Empty(t, metrics.ToRateSeries(nil))
	require.Empty(t, metrics.ToRateSeries(counterSamples(time.Now().UTC(), time.Minute, 42)))
}

func TestCurrentRate(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	samples := counterSamples(base, time.Minute, 10, 15)

	rate, ok := metrics.CurrentRate(samples)
	require.True(t, ok)
	require.InDelta(t, 5.0/60.0, rate, 1e-9)
}

func TestCurrentRateSingleSample(t *testing.T) {
	t.Parallel()

	_, ok := metrics.CurrentRate(counterSamples(time.Now().UTC(), time.Minute, 10))
	require.False(t, ok)
	_, ok = metrics.CurrentRate(nil)
	require.False(t, ok)
}

func TestCurrentRateSkipsTrailingReset(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// latest pair is a reset; the pair before it is valid
	samples := counterSamples(base, time.Minute, 100, 220, 40)

	rate, ok := metrics.CurrentRate(samples)
	require.True(t, ok)
	require.InDelta(t, 2.0, rate, 1e-9)
}

func TestCurrentRateNoValidPairInWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// strictly decreasing: every consecutive pair looks like a reset
	samples := counterSamples(base, time.Minute, 600, 500, 400, 300, 200, 100)

	_, ok := metrics.CurrentRate(samples)
	require.False(t, ok)
}
