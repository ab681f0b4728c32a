package metrics

import (
	"fmt"
	"regexp"
)

// The monitoring query language expression built here selects one metric
// filtered to one resource, aggregated with a mean over fixed 1-minute
// buckets. Building a query is pure; it never touches the network.

// BuildQuery returns the MQL expression for the given metric and resource.
func BuildQuery(metricName, resourceID string) string {
	return fmt.Sprintf(`%s[1m]{resourceId = "%s"}.mean()`, metricName, resourceID)
}

var queryPattern = regexp.MustCompile(`^(\w+)\[1m\]\{resourceId = "([^"]+)"\}\.mean\(\)$`)

// ParseQuery recovers the metric name and resource id filter from an
// expression produced by BuildQuery.
func ParseQuery(query string) (metricName, resourceID string, err error) {
	m := queryPattern.FindStringSubmatch(query)
	if m == nil {
		return "", "", fmt.Errorf("unrecognized query expression: %s", query)
	}
	return m[1], m[2], nil
}
