package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ocihub/compute-telemetry/config"

	"golang.org/x/sync/errgroup"
)

// Result is the tagged per-metric outcome of an aggregate fetch: either a
// normalized series or a fetch error, never both.
type Result struct {
	Series *Series
	Err    *FetchError
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(map[string]string{"error": r.Err.Message})
	}
	return json.Marshal(r.Series)
}

// Aggregator fans the fixed target metric set out to the fetcher for one
// instance. Fetches run concurrently under a bound, each with its own
// timeout budget so a hung upstream call cannot block the aggregate
// response.
type Aggregator struct {
	fetcher     *Fetcher
	concurrency int
	timeout     time.Duration
}

func NewAggregator(fetcher *Fetcher, cfg *config.Metrics) *Aggregator {
	return &Aggregator{
		fetcher:     fetcher,
		concurrency: cfg.Concurrency,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// FetchAll collects every target metric for the instance independently. The
// returned map has exactly one entry per target metric, each either a series
// or the error that metric's fetch produced. One metric's failure or timeout
// never prevents collection of the others.
func (a *Aggregator) FetchAll(ctx context.Context, resourceID, compartmentID string, window Window) map[string]Result {
	targets := TargetMetrics()
	results := make([]Result, len(targets))

	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)
	for i, name := range targets {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			series, err := a.fetcher.Fetch(fetchCtx, name, resourceID, compartmentID, window)
			if err != nil {
				var fetchErr *FetchError
				if !errors.As(err, &fetchErr) {
					fetchErr = &FetchError{Metric: name, Message: err.Error()}
				}
				results[i] = Result{Err: fetchErr}
				return nil
			}
			results[i] = Result{Series: series}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Result, len(targets))
	for i, name := range targets {
		out[name] = results[i]
	}
	return out
}
