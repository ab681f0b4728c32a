package oci

import (
	"context"
	"fmt"

	"github.com/ocihub/compute-telemetry/config"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// IdentityAPI is the slice of the identity service used for compartment
// discovery.
type IdentityAPI interface {
	ListCompartments(ctx context.Context, request identity.ListCompartmentsRequest) (identity.ListCompartmentsResponse, error)
}

// ComputeAPI is the slice of the compute service used for instance discovery.
type ComputeAPI interface {
	ListInstances(ctx context.Context, request core.ListInstancesRequest) (core.ListInstancesResponse, error)
	GetInstance(ctx context.Context, request core.GetInstanceRequest) (core.GetInstanceResponse, error)
}

// MonitoringAPI is the slice of the monitoring service used for time-series
// queries.
type MonitoringAPI interface {
	SummarizeMetricsData(ctx context.Context, request monitoring.SummarizeMetricsDataRequest) (monitoring.SummarizeMetricsDataResponse, error)
}

// Client bundles the backend API clients together with the tenancy they were
// resolved against. It is constructed once at startup and injected into the
// components that need it; connections inside the SDK clients are safe to
// share across requests.
type Client struct {
	Identity   IdentityAPI
	Compute    ComputeAPI
	Monitoring MonitoringAPI

	tenancy string
	region  string
	closed  atomic.Bool
}

func NewClient(cfg *config.OCI) (*Client, error) {
	provider, err := newConfigurationProvider(cfg)
	if err != nil {
		return nil, err
	}

	tenancy := cfg.Tenancy
	if len(tenancy) == 0 {
		tenancy, err = provider.TenancyOCID()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve tenancy: %w", err)
		}
	}
	region, err := provider.Region()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve region: %w", err)
	}

	identityClient, err := identity.NewIdentityClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}
	computeClient, err := core.NewComputeClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}
	monitoringClient, err := monitoring.NewMonitoringClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitoring client: %w", err)
	}

	log.Info("backend clients initialized",
		zap.String("tenancy", tenancy),
		zap.String("region", region),
		zap.String("auth-mode", cfg.AuthMode))

	return &Client{
		Identity:   identityClient,
		Compute:    computeClient,
		Monitoring: monitoringClient,
		tenancy:    tenancy,
		region:     region,
	}, nil
}

func newConfigurationProvider(cfg *config.OCI) (common.ConfigurationProvider, error) {
	switch cfg.AuthMode {
	case config.AuthInstancePrincipal:
		return auth.InstancePrincipalConfigurationProvider()
	case config.AuthUserPrincipal:
		if len(cfg.ConfigPath) > 0 {
			return common.ConfigurationProviderFromFileWithProfile(cfg.ConfigPath, cfg.Profile, "")
		}
		if len(cfg.Profile) > 0 {
			return common.CustomProfileConfigProvider("", cfg.Profile), nil
		}
		return common.DefaultConfigProvider(), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

// NewClientForTest assembles a client bundle around fake backend APIs.
func NewClientForTest(identityAPI IdentityAPI, computeAPI ComputeAPI, monitoringAPI MonitoringAPI, tenancy string) *Client {
	return &Client{
		Identity:   identityAPI,
		Compute:    computeAPI,
		Monitoring: monitoringAPI,
		tenancy:    tenancy,
		region:     "test-region",
	}
}

// Tenancy returns the tenancy OCID the clients operate in. It is the root of
// the compartment tree.
func (c *Client) Tenancy() string {
	return c.tenancy
}

func (c *Client) Region() string {
	return c.region
}

// Close marks the client bundle as torn down. The underlying SDK clients hold
// no resources beyond pooled HTTP connections.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	log.Info("backend clients closed")
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
