package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ocihub/compute-telemetry/component/assistant"
	"github.com/ocihub/compute-telemetry/component/audit"
	"github.com/ocihub/compute-telemetry/component/directory"
	"github.com/ocihub/compute-telemetry/component/metrics"
	"github.com/ocihub/compute-telemetry/config"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
)

// Service is the query API surface composing discovery, metric fetching and
// the audit log. It is stateless per call apart from the transparent
// compartment cache.
type Service struct {
	directory  *directory.Directory
	fetcher    *metrics.Fetcher
	aggregator *metrics.Aggregator
	audit      *audit.Store

	compartments *ttlcache.Cache[string, []directory.Compartment]
}

func NewService(
	dir *directory.Directory,
	fetcher *metrics.Fetcher,
	aggregator *metrics.Aggregator,
	auditStore *audit.Store,
	compartmentTTL time.Duration,
) *Service {
	s := &Service{
		directory:  dir,
		fetcher:    fetcher,
		aggregator: aggregator,
		audit:      auditStore,
	}
	if compartmentTTL > 0 {
		s.compartments = ttlcache.New[string, []directory.Compartment](
			ttlcache.WithTTL[string, []directory.Compartment](compartmentTTL),
			ttlcache.WithDisableTouchOnHit[string, []directory.Compartment](),
		)
	}
	return s
}

func (s *Service) HTTPService(ng *gin.Engine) {
	ng.GET("/compartments", s.handleCompartments)
	ng.GET("/instances", s.handleInstances)
	ng.GET("/instances/:id/metrics", s.handleInstanceMetrics)
	ng.GET("/instances/:id/metrics/:metric", s.handleInstanceMetric)
	ng.GET("/instances/:id/summary", s.handleInstanceSummary)
	ng.GET("/metrics", s.handleMetricCatalog)
	ng.GET("/audit", s.handleAuditList)
	ng.DELETE("/audit", s.handleAuditPrune)
}

func (s *Service) handleCompartments(c *gin.Context) {
	parent := c.Query("parent_compartment_id")

	if s.compartments != nil {
		if item := s.compartments.Get(parent); item != nil {
			c.JSON(http.StatusOK, gin.H{"compartments": item.Value()})
			return
		}
	}

	compartments, err := s.directory.ListCompartments(c.Request.Context(), parent)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	if s.compartments != nil {
		s.compartments.Set(parent, compartments, ttlcache.DefaultTTL)
	}
	c.JSON(http.StatusOK, gin.H{"compartments": compartments})
}

func (s *Service) handleInstances(c *gin.Context) {
	compartmentID := c.Query("compartment_id")

	var instances []directory.Instance
	var err error
	if len(compartmentID) == 0 {
		instances, err = s.directory.ListAllInstances(c.Request.Context())
	} else {
		instances, err = s.directory.ListInstances(c.Request.Context(), compartmentID)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	if instances == nil {
		instances = []directory.Instance{}
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances})
}

func (s *Service) handleInstanceMetrics(c *gin.Context) {
	instanceID := c.Param("id")
	compartmentID, ok := requireCompartmentID(c)
	if !ok {
		return
	}
	window, ok := parseWindow(c)
	if !ok {
		return
	}
	instance, ok := s.requireRunningInstance(c, instanceID)
	if !ok {
		return
	}

	start := time.Now()
	results := s.aggregator.FetchAll(c.Request.Context(), instance.ID, compartmentID, window)
	durationMS := time.Since(start).Milliseconds()
	s.recordResults(c, instance.ID, results, durationMS)

	c.JSON(http.StatusOK, gin.H{
		"instance_id": instance.ID,
		"metrics":     results,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

type seriesPayload struct {
	*metrics.Series
	RateDatapoints []metrics.RatePoint `json:"rate_datapoints,omitempty"`
	CurrentRate    *float64            `json:"current_rate,omitempty"`
}

func (s *Service) handleInstanceMetric(c *gin.Context) {
	instanceID := c.Param("id")
	metricName := c.Param("metric")
	if !metrics.IsTargetMetric(metricName) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": fmt.Sprintf("invalid metric name %q, available: %s", metricName, strings.Join(metrics.TargetMetrics(), ", ")),
		})
		return
	}
	compartmentID, ok := requireCompartmentID(c)
	if !ok {
		return
	}
	window, ok := parseWindow(c)
	if !ok {
		return
	}
	instance, ok := s.requireRunningInstance(c, instanceID)
	if !ok {
		return
	}

	timeout := time.Duration(config.GetGlobalConfig().Metrics.TimeoutSeconds) * time.Second
	fetchCtx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	start := time.Now()
	series, err := s.fetcher.Fetch(fetchCtx, metricName, instance.ID, compartmentID, window)
	durationMS := time.Since(start).Milliseconds()
	if err != nil {
		s.recordEntry(c, audit.Entry{
			InstanceID: instance.ID,
			Metric:     metricName,
			Outcome:    audit.OutcomeError,
			DurationMS: durationMS,
			Detail:     err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	s.recordEntry(c, audit.Entry{
		InstanceID: instance.ID,
		Metric:     metricName,
		Outcome:    audit.OutcomeOK,
		DurationMS: durationMS,
	})

	payload := seriesPayload{Series: series}
	if metrics.IsCumulative(metricName) {
		payload.RateDatapoints = metrics.ToRateSeries(series.Datapoints)
		if rate, ok := metrics.CurrentRate(series.Datapoints); ok {
			payload.CurrentRate = &rate
		}
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Service) handleInstanceSummary(c *gin.Context) {
	instanceID := c.Param("id")
	compartmentID, ok := requireCompartmentID(c)
	if !ok {
		return
	}
	window, ok := parseWindow(c)
	if !ok {
		return
	}
	instance, ok := s.requireRunningInstance(c, instanceID)
	if !ok {
		return
	}

	results := s.aggregator.FetchAll(c.Request.Context(), instance.ID, compartmentID, window)
	c.String(http.StatusOK, assistant.BuildContext(instance, results))
}

func (s *Service) handleMetricCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"available_metrics": metrics.TargetMetrics(),
		"namespace":         config.GetGlobalConfig().Metrics.Namespace,
	})
}

func (s *Service) handleAuditList(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "audit store is not available",
		})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "limit should be an integer",
		})
		return
	}
	entries, err := s.audit.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Service) handleAuditPrune(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "audit store is not available",
		})
		return
	}
	before, err := time.Parse(time.RFC3339, c.Query("before"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "before should be an RFC 3339 timestamp",
		})
		return
	}
	pruned, err := s.audit.Prune(c.Request.Context(), before)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pruned": pruned})
}

// requireCompartmentID rejects metric queries without an explicit
// compartment scope. The backend silently returns empty data when queried
// with a compartment that does not own the instance, so guessing a default
// here would turn a caller mistake into invisible data loss.
func requireCompartmentID(c *gin.Context) (string, bool) {
	compartmentID := c.Query("compartment_id")
	if len(compartmentID) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "compartment_id is required and must be the instance's owning compartment",
		})
		return "", false
	}
	return compartmentID, true
}

func parseWindow(c *gin.Context) (metrics.Window, bool) {
	raw := c.DefaultQuery("hours_back", "1")
	hours, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "hours_back should be an integer",
		})
		return metrics.Window{}, false
	}
	window, err := metrics.NewWindow(hours)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return metrics.Window{}, false
	}
	return window, true
}

// requireRunningInstance resolves instance metadata and gates metric access:
// non-RUNNING instances keep their metadata visible but metric queries get
// an explicit unavailability signal instead of an empty series.
func (s *Service) requireRunningInstance(c *gin.Context, instanceID string) (directory.Instance, bool) {
	instance, err := s.directory.GetInstance(c.Request.Context(), instanceID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return directory.Instance{}, false
	}
	if !instance.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{
			"status":  "error",
			"message": fmt.Sprintf("metrics unavailable: instance is %s, metrics are only collected for RUNNING instances", instance.LifecycleState),
		})
		return instance, false
	}
	return instance, true
}

func (s *Service) recordResults(c *gin.Context, instanceID string, results map[string]metrics.Result, durationMS int64) {
	for _, name := range metrics.TargetMetrics() {
		entry := audit.Entry{
			InstanceID: instanceID,
			Metric:     name,
			Outcome:    audit.OutcomeOK,
			DurationMS: durationMS,
		}
		if result := results[name]; result.Err != nil {
			entry.Outcome = audit.OutcomeError
			entry.Detail = result.Err.Message
		}
		s.recordEntry(c, entry)
	}
}

func (s *Service) recordEntry(c *gin.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	s.audit.Record(c.Request.Context(), entry)
}
