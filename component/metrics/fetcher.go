package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/ocihub/compute-telemetry/component/oci"
	"github.com/ocihub/compute-telemetry/config"
	"github.com/ocihub/compute-telemetry/utils"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	fetchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_backend_fetch_total",
		Help: "Number of telemetry backend fetches by metric and result.",
	}, []string{"metric", "result"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_backend_fetch_duration_seconds",
		Help:    "Latency of telemetry backend fetches.",
		Buckets: prometheus.DefBuckets,
	})
)

const retryBaseDelay = 200 * time.Millisecond

// Fetcher executes single-metric queries against the monitoring backend and
// normalizes the nested response into a flat, timestamp-sorted series.
type Fetcher struct {
	monitoring oci.MonitoringAPI
	namespace  string
	resolution string
	retryTimes uint
}

func NewFetcher(api oci.MonitoringAPI, cfg *config.Metrics) *Fetcher {
	return &Fetcher{
		monitoring: api,
		namespace:  cfg.Namespace,
		resolution: cfg.Resolution,
		retryTimes: cfg.RetryTimes,
	}
}

// Fetch retrieves the named metric for one resource over the window.
//
// compartmentID must be the instance's owning compartment: the backend
// scopes query authorization by it and silently returns empty data for the
// wrong compartment instead of an error.
//
// A backend failure yields a *FetchError carrying the upstream text. A
// successful call with no data for the window yields a series with an empty
// datapoint list, which is not an error.
func (f *Fetcher) Fetch(ctx context.Context, metricName, resourceID, compartmentID string, window Window) (*Series, error) {
	query := BuildQuery(metricName, resourceID)
	request := monitoring.SummarizeMetricsDataRequest{
		CompartmentId: common.String(compartmentID),
		SummarizeMetricsDataDetails: monitoring.SummarizeMetricsDataDetails{
			Namespace:  common.String(f.namespace),
			Query:      common.String(query),
			StartTime:  &common.SDKTime{Time: window.Start},
			EndTime:    &common.SDKTime{Time: window.End},
			Resolution: common.String(f.resolution),
		},
	}

	start := time.Now()
	var response monitoring.SummarizeMetricsDataResponse
	var err error
	utils.WithRetryBackoff(ctx, f.retryTimes, retryBaseDelay, func(retried uint) bool {
		response, err = f.monitoring.SummarizeMetricsData(ctx, request)
		if err != nil && retried < f.retryTimes {
			log.Warn("retrying metric fetch",
				zap.String("metric", metricName),
				zap.Uint("retried", retried),
				zap.Error(err))
		}
		return err == nil
	})
	fetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		fetchCounter.WithLabelValues(metricName, "error").Inc()
		return nil, &FetchError{Metric: metricName, Message: err.Error()}
	}
	fetchCounter.WithLabelValues(metricName, "ok").Inc()

	return f.normalize(metricName, resourceID, window, response.Items), nil
}

// normalize flattens the backend's nested response (multiple series, each
// with multiple aggregated points) into one timestamp-sorted, deduplicated
// sequence. Unit and resolution metadata come from the first series.
func (f *Fetcher) normalize(metricName, resourceID string, window Window, items []monitoring.MetricData) *Series {
	series := &Series{
		InstanceID: resourceID,
		MetricName: metricName,
		Namespace:  f.namespace,
		StartTime:  window.Start,
		EndTime:    window.End,
		Resolution: f.resolution,
		Datapoints: []Sample{},
	}

	if len(items) > 0 {
		first := items[0]
		if unit, ok := first.Metadata["unit"]; ok {
			series.Unit = unit
		}
		if first.Resolution != nil && len(*first.Resolution) > 0 {
			series.Resolution = *first.Resolution
		}
	}

	for _, item := range items {
		for _, datapoint := range item.AggregatedDatapoints {
			if datapoint.Timestamp == nil || datapoint.Value == nil {
				continue
			}
			series.Datapoints = append(series.Datapoints, Sample{
				Timestamp: datapoint.Timestamp.Time.UTC(),
				Value:     *datapoint.Value,
			})
		}
	}

	sort.SliceStable(series.Datapoints, func(i, j int) bool {
		return series.Datapoints[i].Timestamp.Before(series.Datapoints[j].Timestamp)
	})
	series.Datapoints = dedupeByTimestamp(series.Datapoints)
	return series
}

func dedupeByTimestamp(samples []Sample) []Sample {
	if len(samples) < 2 {
		return samples
	}
	out := samples[:1]
	for _, sample := range samples[1:] {
		if sample.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, sample)
	}
	return out
}
