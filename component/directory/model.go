package directory

import (
	"fmt"
	"time"

	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"
)

const (
	// LifecycleActive is the only compartment state exposed by discovery.
	LifecycleActive = "ACTIVE"
	// LifecycleRunning is the only instance state metrics are defined for.
	LifecycleRunning = "RUNNING"
)

// Compartment is an immutable snapshot of one node in the compartment tree.
type Compartment struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	LifecycleState string `json:"lifecycle_state"`
}

// Instance is an immutable snapshot of one compute instance. Metadata is
// returned for every lifecycle state; metrics are only defined for RUNNING
// instances.
type Instance struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"display_name"`
	LifecycleState     string `json:"lifecycle_state"`
	AvailabilityDomain string `json:"availability_domain"`
	CompartmentID      string `json:"compartment_id"`
	CompartmentName    string `json:"compartment_name,omitempty"`
	Shape              string `json:"shape"`
	TimeCreated        string `json:"time_created,omitempty"`
}

// IsRunning reports whether metrics are defined for this instance.
func (i *Instance) IsRunning() bool {
	return i.LifecycleState == LifecycleRunning
}

func compartmentFromSDK(c identity.Compartment) (Compartment, error) {
	if c.Id == nil || len(*c.Id) == 0 {
		return Compartment{}, fmt.Errorf("compartment with empty id")
	}
	out := Compartment{
		ID:             *c.Id,
		LifecycleState: string(c.LifecycleState),
	}
	if c.Name != nil {
		out.Name = *c.Name
	}
	if c.Description != nil {
		out.Description = *c.Description
	}
	return out, nil
}

func instanceFromSDK(in core.Instance) (Instance, error) {
	if in.Id == nil || len(*in.Id) == 0 {
		return Instance{}, fmt.Errorf("instance with empty id")
	}
	out := Instance{
		ID:             *in.Id,
		LifecycleState: string(in.LifecycleState),
	}
	if in.DisplayName != nil {
		out.DisplayName = *in.DisplayName
	}
	if in.AvailabilityDomain != nil {
		out.AvailabilityDomain = *in.AvailabilityDomain
	}
	if in.CompartmentId != nil {
		out.CompartmentID = *in.CompartmentId
	}
	if in.Shape != nil {
		out.Shape = *in.Shape
	}
	if in.TimeCreated != nil {
		out.TimeCreated = in.TimeCreated.Format(time.RFC3339)
	}
	return out, nil
}
