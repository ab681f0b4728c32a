package assistant

import (
	"fmt"
	"strings"

	"github.com/ocihub/compute-telemetry/component/directory"
	"github.com/ocihub/compute-telemetry/component/metrics"
)

const noDataLine = "No data available"

// BuildContext flattens an instance's aggregate metric results into the text
// block handed to the natural-language assistant: a few instance header
// lines followed by one line per target metric. Gauges report the latest
// sampled value with its unit, counters the derived current rate in ops/sec,
// and anything empty or failed an explicit no-data line.
func BuildContext(instance directory.Instance, results map[string]metrics.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instance: %s\n", instance.DisplayName)
	fmt.Fprintf(&b, "Shape: %s\n", instance.Shape)
	fmt.Fprintf(&b, "Availability Domain: %s\n", instance.AvailabilityDomain)

	for _, name := range metrics.TargetMetrics() {
		b.WriteString(metricLine(name, results[name]))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func metricLine(name string, result metrics.Result) string {
	if result.Err != nil || result.Series == nil {
		return fmt.Sprintf("%s: %s", name, noDataLine)
	}

	if metrics.IsCumulative(name) {
		rate, ok := metrics.CurrentRate(result.Series.Datapoints)
		if !ok {
			return fmt.Sprintf("%s: %s", name, noDataLine)
		}
		return fmt.Sprintf("%s: %.4f ops/sec", name, rate)
	}

	value, ok := result.Series.LatestValue()
	if !ok {
		return fmt.Sprintf("%s: %s", name, noDataLine)
	}
	return strings.TrimRight(fmt.Sprintf("%s: %.2f %s", name, value, result.Series.Unit), " ")
}
