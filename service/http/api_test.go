package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ocihub/compute-telemetry/component/audit"
	"github.com/ocihub/compute-telemetry/component/directory"
	"github.com/ocihub/compute-telemetry/component/metrics"
	"github.com/ocihub/compute-telemetry/component/oci"
	"github.com/ocihub/compute-telemetry/config"

	"github.com/gin-gonic/gin"
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"github.com/stretchr/testify/require"
)

const (
	testTenancy     = "ocid1.tenancy.oc1..root"
	testInstance    = "ocid1.instance.oc1..web"
	testCompartment = "ocid1.compartment.oc1..dev"
)

type fakeIdentity struct {
	fn func(identity.ListCompartmentsRequest) (identity.ListCompartmentsResponse, error)
}

func (f *fakeIdentity) ListCompartments(_ context.Context, request identity.ListCompartmentsRequest) (identity.ListCompartmentsResponse, error) {
	return f.fn(request)
}

type fakeCompute struct {
	list func(core.ListInstancesRequest) (core.ListInstancesResponse, error)
	get  func(core.GetInstanceRequest) (core.GetInstanceResponse, error)
}

func (f *fakeCompute) ListInstances(_ context.Context, request core.ListInstancesRequest) (core.ListInstancesResponse, error) {
	return f.list(request)
}

func (f *fakeCompute) GetInstance(_ context.Context, request core.GetInstanceRequest) (core.GetInstanceResponse, error) {
	return f.get(request)
}

type fakeMonitoring struct {
	fn func(monitoring.SummarizeMetricsDataRequest) (monitoring.SummarizeMetricsDataResponse, error)
}

func (f *fakeMonitoring) SummarizeMetricsData(_ context.Context, request monitoring.SummarizeMetricsDataRequest) (monitoring.SummarizeMetricsDataResponse, error) {
	return f.fn(request)
}

func runningCompute(state core.InstanceLifecycleStateEnum) *fakeCompute {
	return &fakeCompute{get: func(request core.GetInstanceRequest) (core.GetInstanceResponse, error) {
		return core.GetInstanceResponse{Instance: core.Instance{
			Id:                 common.String(testInstance),
			DisplayName:        common.String("web-1"),
			AvailabilityDomain: common.String("AD-1"),
			CompartmentId:      common.String(testCompartment),
			Shape:              common.String("VM.Standard.E4.Flex"),
			LifecycleState:     state,
			TimeCreated:        &common.SDKTime{Time: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)},
		}}, nil
	}}
}

// steadyMonitoring answers every query with three one-minute datapoints so
// cumulative metrics have enough history for rate derivation.
func steadyMonitoring() *fakeMonitoring {
	return &fakeMonitoring{fn: func(request monitoring.SummarizeMetricsDataRequest) (monitoring.SummarizeMetricsDataResponse, error) {
		base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		points := make([]monitoring.AggregatedDatapoint, 0, 3)
		for i := 0; i < 3; i++ {
			points = append(points, monitoring.AggregatedDatapoint{
				Timestamp: &common.SDKTime{Time: base.Add(time.Duration(i) * time.Minute)},
				Value:     common.Float64(float64(100 + i*60)),
			})
		}
		return monitoring.SummarizeMetricsDataResponse{
			Items: []monitoring.MetricData{{
				Metadata:             map[string]string{"unit": "Percent"},
				Resolution:           common.String("1m"),
				AggregatedDatapoints: points,
			}},
		}, nil
	}}
}

func newTestService(t *testing.T, identityAPI oci.IdentityAPI, computeAPI oci.ComputeAPI, monitoringAPI oci.MonitoringAPI, compartmentTTL time.Duration) (*Service, *gin.Engine) {
	t.Helper()

	store, err := audit.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	client := oci.NewClientForTest(identityAPI, computeAPI, monitoringAPI, testTenancy)
	cfg := config.GetDefaultConfig().Metrics
	cfg.RetryTimes = 0
	fetcher := metrics.NewFetcher(client.Monitoring, &cfg)

	service := NewService(directory.New(client), fetcher, metrics.NewAggregator(fetcher, &cfg), store, compartmentTTL)
	ng := gin.New()
	service.HTTPService(ng)
	return service, ng
}

func perform(ng *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ng.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestMetricCatalog(t *testing.T) {
	_, ng := newTestService(t, nil, nil, nil, 0)

	w := perform(ng, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "oci_computeagent", body["namespace"])
	available := body["available_metrics"].([]any)
	require.Len(t, available, len(metrics.TargetMetrics()))
	require.Equal(t, "CpuUtilization", available[0])
}

func TestInstanceMetricRejectsBadInput(t *testing.T) {
	_, ng := newTestService(t, nil, runningCompute(core.InstanceLifecycleStateRunning), steadyMonitoring(), 0)

	// unknown metric name
	w := perform(ng, http.MethodGet, "/instances/"+testInstance+"/metrics/HeapUsage?compartment_id="+testCompartment)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decodeBody(t, w)["message"], "invalid metric name")

	// compartment scope is mandatory
	w = perform(ng, http.MethodGet, "/instances/"+testInstance+"/metrics/CpuUtilization")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decodeBody(t, w)["message"], "compartment_id is required")

	// hours_back must be an integer within bounds
	for _, hoursBack := range []string{"abc", "0", "25", "-3"} {
		w = perform(ng, http.MethodGet, "/instances/"+testInstance+"/metrics/CpuUtilization?compartment_id="+testCompartment+"&hours_back="+hoursBack)
		require.Equal(t, http.StatusBadRequest, w.Code, "hours_back=%s", hoursBack)
	}
}

func TestNonRunningInstanceGetsConflict(t *testing.T) {
	_, ng := newTestService(t, nil, runningCompute(core.InstanceLifecycleStateStopped), steadyMonitoring(), 0)

	for _, target := range []string{
		"/instances/" + testInstance + "/metrics?compartment_id=" + testCompartment,
		"/instances/" + testInstance + "/metrics/CpuUtilization?compartment_id=" + testCompartment,
		"/instances/" + testInstance + "/summary?compartment_id=" + testCompartment,
	} {
		w := perform(ng, http.MethodGet, target)
		require.Equal(t, http.StatusConflict, w.Code, target)
		require.Contains(t, decodeBody(t, w)["message"], "instance is STOPPED")
	}
}

func TestInstanceMetricGauge(t *testing.T) {
	_, ng := newTestService(t, nil, runningCompute(core.InstanceLifecycleStateRunning), steadyMonitoring(), 0)

	w := perform(ng, http.MethodGet, "/instances/"+testInstance+"/metrics/CpuUtilization?compartment_id="+testCompartment)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "CpuUtilization", body["metric_name"])
	require.Equal(t, testInstance, body["instance_id"])
	require.Len(t, body["datapoints"], 3)

	// gauges carry no derived rate fields
	require.NotContains(t, body, "rate_datapoints")
	require.NotContains(t, body, "current_rate")
}

func TestInstanceMetricCounterDerivesRates(t *testing.T) {
	_, ng := newTestService(t, nil, runningCompute(core.InstanceLifecycleStateRunning), steadyMonitoring(), 0)

	w := perform(ng, http.MethodGet, "/instances/"+testInstance+"/metrics/DiskIopsRead?compartment_id="+testCompartment)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Len(t, body["rate_datapoints"], 2)
	// 60 ops over 60 seconds
	require.InDelta(t, 1.0, body["current_rate"].(float64), 1e-9)
}

func TestInstanceMetricsIsolatesFailures(t *testing.T) {
	backend := &fakeMonitoring{fn: func(request monitoring.SummarizeMetricsDataRequest) (monitoring.SummarizeMetricsDataResponse, error) {
		name, _, err := metrics.ParseQuery(*request.SummarizeMetricsDataDetails.Query)
		if err != nil {
			return monitoring.SummarizeMetricsDataResponse{}, err
		}
		if name == metrics.MetricMemoryUtilization {
			return monitoring.SummarizeMetricsDataResponse{}, fmt.Errorf("throttled")
		}
		return steadyMonitoring().fn(request)
	}}
	_, ng := newTestService(t, nil, runningCompute(core.InstanceLifecycleStateRunning), backend, 0)

	w := perform(ng, http.MethodGet, "/instances/"+testInstance+"/metrics?compartment_id="+testCompartment)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, testInstance, body["instance_id"])
	require.NotEmpty(t, body["timestamp"])

	results := body["metrics"].(map[string]any)
	require.Len(t, results, len(metrics.TargetMetrics()))

	memory := results[metrics.MetricMemoryUtilization].(map[string]any)
	require.Contains(t, memory["error"], "throttled")
	for _, name := range metrics.TargetMetrics() {
		if name == metrics.MetricMemoryUtilization {
			continue
		}
		series := results[name].(map[string]any)
		require.NotContains(t, series, "error")
		require.Len(t, series["datapoints"], 3)
	}
}

func TestInstanceSummary(t *testing.T) {
	_, ng := newTestService(t, nil, runningCompute(core.InstanceLifecycleStateRunning), steadyMonitoring(), 0)

	w := perform(ng, http.MethodGet, "/instances/"+testInstance+"/summary?compartment_id="+testCompartment)
	require.Equal(t, http.StatusOK, w.Code)

	text := w.Body.String()
	require.Contains(t, text, "Instance: web-1")
	require.Contains(t, text, "Shape: VM.Standard.E4.Flex")
	require.Contains(t, text, "CpuUtilization:")
	require.Contains(t, text, "ops/sec")
}

func TestCompartmentsAreCached(t *testing.T) {
	calls := 0
	identityAPI := &fakeIdentity{fn: func(identity.ListCompartmentsRequest) (identity.ListCompartmentsResponse, error) {
		calls++
		return identity.ListCompartmentsResponse{Items: []identity.Compartment{{
			Id:             common.String(testCompartment),
			Name:           common.String("dev"),
			LifecycleState: identity.CompartmentLifecycleStateActive,
		}}}, nil
	}}
	_, ng := newTestService(t, identityAPI, nil, nil, time.Minute)

	for i := 0; i < 3; i++ {
		w := perform(ng, http.MethodGet, "/compartments")
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, decodeBody(t, w)["compartments"], 2) // synthesized root + dev
	}
	require.Equal(t, 1, calls)
}

func TestInstancesList(t *testing.T) {
	computeAPI := runningCompute(core.InstanceLifecycleStateRunning)
	computeAPI.list = func(request core.ListInstancesRequest) (core.ListInstancesResponse, error) {
		require.Equal(t, testCompartment, *request.CompartmentId)
		return core.ListInstancesResponse{Items: []core.Instance{{
			Id:             common.String(testInstance),
			DisplayName:    common.String("web-1"),
			CompartmentId:  common.String(testCompartment),
			LifecycleState: core.InstanceLifecycleStateRunning,
		}}}, nil
	}
	_, ng := newTestService(t, nil, computeAPI, nil, 0)

	w := perform(ng, http.MethodGet, "/instances?compartment_id="+testCompartment)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody(t, w)["instances"], 1)
}

func TestAuditTrail(t *testing.T) {
	_, ng := newTestService(t, nil, runningCompute(core.InstanceLifecycleStateRunning), steadyMonitoring(), 0)

	w := perform(ng, http.MethodGet, "/instances/"+testInstance+"/metrics/CpuUtilization?compartment_id="+testCompartment)
	require.Equal(t, http.StatusOK, w.Code)

	w = perform(ng, http.MethodGet, "/audit")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decodeBody(t, w)["entries"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	require.Equal(t, testInstance, entry["instance_id"])
	require.Equal(t, "CpuUtilization", entry["metric"])
	require.Equal(t, "ok", entry["outcome"])

	// prune requires a parseable cutoff
	w = perform(ng, http.MethodDelete, "/audit?before=yesterday")
	require.Equal(t, http.StatusBadRequest, w.Code)

	cutoff := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	w = perform(ng, http.MethodDelete, "/audit?before="+cutoff)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decodeBody(t, w)["pruned"])

	w = perform(ng, http.MethodGet, "/audit")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decodeBody(t, w)["entries"])
}
