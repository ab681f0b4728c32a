package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ocihub/compute-telemetry/component/oci"
	"github.com/ocihub/compute-telemetry/config"
	"github.com/ocihub/compute-telemetry/utils"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Directory resolves the compartment hierarchy and enumerates the compute
// instances inside it. Every call fetches a fresh snapshot; nothing is
// cached here.
type Directory struct {
	client *oci.Client
}

func New(client *oci.Client) *Directory {
	return &Directory{client: client}
}

// ListCompartments returns the ACTIVE compartments below parentID, preceded
// by a synthesized root entry for the parent itself. An empty parentID
// defaults to the tenancy root.
//
// Failure to list the subtree degrades to the root-only result with a
// warning. Callers always get a usable, possibly smaller, list.
func (d *Directory) ListCompartments(ctx context.Context, parentID string) ([]Compartment, error) {
	if len(parentID) == 0 {
		parentID = d.client.Tenancy()
	}

	compartments := []Compartment{{
		ID:             parentID,
		Name:           "root",
		Description:    "Root compartment",
		LifecycleState: LifecycleActive,
	}}

	subtree, err := d.listSubtree(ctx, parentID)
	if err != nil {
		log.Warn("could not list sub-compartments, degrading to root only",
			zap.String("parent", parentID),
			zap.Error(err))
		return compartments, nil
	}

	return append(compartments, subtree...), nil
}

func (d *Directory) listSubtree(ctx context.Context, parentID string) ([]Compartment, error) {
	var out []Compartment
	var page *string
	for {
		resp, err := d.client.Identity.ListCompartments(ctx, identity.ListCompartmentsRequest{
			CompartmentId:          common.String(parentID),
			CompartmentIdInSubtree: common.Bool(true),
			AccessLevel:            identity.ListCompartmentsAccessLevelAccessible,
			Page:                   page,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			if string(item.LifecycleState) != LifecycleActive {
				continue
			}
			compartment, err := compartmentFromSDK(item)
			if err != nil {
				log.Warn("skipping malformed compartment", zap.Error(err))
				continue
			}
			out = append(out, compartment)
		}
		if resp.OpcNextPage == nil {
			return out, nil
		}
		page = resp.OpcNextPage
	}
}

// ListInstances lists the instances strictly within one compartment. All
// lifecycle states are returned; state filtering is up to the caller.
func (d *Directory) ListInstances(ctx context.Context, compartmentID string) ([]Instance, error) {
	if len(compartmentID) == 0 {
		return nil, fmt.Errorf("compartment id is required")
	}

	var out []Instance
	var page *string
	for {
		resp, err := d.client.Compute.ListInstances(ctx, core.ListInstancesRequest{
			CompartmentId: common.String(compartmentID),
			Page:          page,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list instances in %s: %w", compartmentID, err)
		}
		for _, item := range resp.Items {
			instance, err := instanceFromSDK(item)
			if err != nil {
				log.Warn("skipping malformed instance",
					zap.String("compartment", compartmentID),
					zap.Error(err))
				continue
			}
			out = append(out, instance)
		}
		if resp.OpcNextPage == nil {
			return out, nil
		}
		page = resp.OpcNextPage
	}
}

// ListAllInstances fans the per-compartment listing out across every visible
// compartment and unions the results. Compartments that fail to list are
// skipped with a warning rather than aborting the whole call. Listings run
// concurrently under the configured concurrency bound.
func (d *Directory) ListAllInstances(ctx context.Context) ([]Instance, error) {
	compartments, err := d.ListCompartments(ctx, "")
	if err != nil {
		return nil, err
	}

	limit := utils.NewRateLimit(config.GetGlobalConfig().Metrics.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var out []Instance
	for _, compartment := range compartments {
		if limit.GetToken(ctx.Done()) {
			break
		}
		wg.Add(1)
		go utils.GoWithRecovery(func() {
			defer wg.Done()
			defer limit.PutToken()

			instances, err := d.ListInstances(ctx, compartment.ID)
			if err != nil {
				log.Warn("skipping compartment during instance fan-out",
					zap.String("compartment", compartment.ID),
					zap.String("name", compartment.Name),
					zap.Error(err))
				return
			}
			for i := range instances {
				instances[i].CompartmentName = compartment.Name
			}
			mu.Lock()
			out = append(out, instances...)
			mu.Unlock()
		}, nil)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CompartmentID != out[j].CompartmentID {
			return out[i].CompartmentID < out[j].CompartmentID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetInstance fetches the metadata of a single instance.
func (d *Directory) GetInstance(ctx context.Context, instanceID string) (Instance, error) {
	if len(instanceID) == 0 {
		return Instance{}, fmt.Errorf("instance id is required")
	}
	resp, err := d.client.Compute.GetInstance(ctx, core.GetInstanceRequest{
		InstanceId: common.String(instanceID),
	})
	if err != nil {
		return Instance{}, fmt.Errorf("failed to get instance %s: %w", instanceID, err)
	}
	return instanceFromSDK(resp.Instance)
}
