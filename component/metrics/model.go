package metrics

import (
	"fmt"
	"time"
)

// Target metric set of the compute-agent namespace. The order is the order
// results are reported in.
const (
	MetricCPUUtilization    = "CpuUtilization"
	MetricMemoryUtilization = "MemoryUtilization"
	MetricLoadAverage       = "LoadAverage"
	MetricDiskIopsRead      = "DiskIopsRead"
	MetricDiskIopsWritten   = "DiskIopsWritten"
)

var targetMetrics = []string{
	MetricCPUUtilization,
	MetricMemoryUtilization,
	MetricLoadAverage,
	MetricDiskIopsRead,
	MetricDiskIopsWritten,
}

// cumulative counters require rate derivation before display. Classification
// is a fixed mapping, never inferred from data.
var cumulativeMetrics = map[string]struct{}{
	MetricDiskIopsRead:    {},
	MetricDiskIopsWritten: {},
}

// TargetMetrics returns the fixed target metric set in reporting order.
func TargetMetrics() []string {
	out := make([]string, len(targetMetrics))
	copy(out, targetMetrics)
	return out
}

func IsTargetMetric(name string) bool {
	for _, m := range targetMetrics {
		if m == name {
			return true
		}
	}
	return false
}

// IsCumulative reports whether the named metric is a monotonically
// accumulating counter rather than a gauge.
func IsCumulative(name string) bool {
	_, ok := cumulativeMetrics[name]
	return ok
}

// Sample is one (timestamp, value) datapoint. Timestamps are UTC instants.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is the normalized time series of one metric for one instance over
// one window. Datapoints are strictly increasing in timestamp and
// deduplicated. An empty Datapoints slice is a valid outcome, distinct from
// a fetch failure.
type Series struct {
	InstanceID string    `json:"instance_id"`
	MetricName string    `json:"metric_name"`
	Namespace  string    `json:"namespace"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Unit       string    `json:"unit,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	Datapoints []Sample  `json:"datapoints"`
}

// LatestValue returns the most recent sample value.
func (s *Series) LatestValue() (float64, bool) {
	if len(s.Datapoints) == 0 {
		return 0, false
	}
	return s.Datapoints[len(s.Datapoints)-1].Value, true
}

// Window bounds of the look-back, [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

const (
	MinHoursBack = 1
	MaxHoursBack = 24
)

// NewWindow resolves an hours_back look-back to absolute UTC bounds at call
// time. Bounds are never persisted; every call recomputes them.
func NewWindow(hoursBack int) (Window, error) {
	if hoursBack < MinHoursBack || hoursBack > MaxHoursBack {
		return Window{}, fmt.Errorf("hours_back should be between %d and %d, got %d", MinHoursBack, MaxHoursBack, hoursBack)
	}
	end := time.Now().UTC()
	return Window{
		Start: end.Add(-time.Duration(hoursBack) * time.Hour),
		End:   end,
	}, nil
}

// FetchError reports the failure of one metric's backend call. It carries
// the upstream error text verbatim and never aborts sibling metrics.
type FetchError struct {
	Metric  string
	Message string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %s", e.Metric, e.Message)
}
