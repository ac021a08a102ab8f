package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/appkins-org/gceapi/pkg/gce"
	"github.com/appkins-org/gceapi/pkg/nova"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/volumeattach"
)

// Access config defaults for floating IPs without a stored name.
const (
	DefaultAccessConfigName = "external-nat"
	AccessConfigOneToOneNAT = "ONE_TO_ONE_NAT"
)

// server is the subset of the Nova server record the facade consumes.
type server struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Description *string   `json:"description"`
	Created     time.Time `json:"created"`
	Flavor      struct {
		ID           string `json:"id"`
		OriginalName string `json:"original_name"`
	} `json:"flavor"`
	Metadata  map[string]string         `json:"metadata"`
	Addresses map[string][]nova.Address `json:"addresses"`
	Fault     *struct {
		Message string `json:"message"`
	} `json:"fault"`
}

// InstanceAPI reads and resets Nova servers.
type InstanceAPI struct {
	Clients *Clients
}

// Get assembles the instance view of the server named name from Nova,
// Cinder and Neutron.
func (a *InstanceAPI) Get(ctx context.Context, _ gce.Scope, name string) (*nova.Instance, error) {
	compute, id, err := a.Clients.resolveServer(ctx, name)
	if err != nil {
		return nil, err
	}

	var srv server
	if err := servers.Get(ctx, compute, id).ExtractInto(&srv); err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", name, err)
	}

	instance := &nova.Instance{
		ID:        srv.ID,
		Name:      srv.Name,
		Created:   srv.Created,
		Status:    srv.Status,
		Flavor:    nova.Flavor{ID: srv.Flavor.ID, Name: srv.Flavor.OriginalName},
		Metadata:  srv.Metadata,
		Addresses: srv.Addresses,
	}
	if srv.Description != nil {
		instance.Description = *srv.Description
	}
	if srv.Fault != nil {
		instance.StatusMessage = srv.Fault.Message
	}

	if instance.Flavor.Name == "" && instance.Flavor.ID != "" {
		flavor, err := flavors.Get(ctx, compute, instance.Flavor.ID).Extract()
		if err != nil {
			return nil, fmt.Errorf("failed to get flavor %s: %w", instance.Flavor.ID, err)
		}
		instance.Flavor.Name = flavor.Name
	}

	if err := a.describeFloatingAddresses(ctx, instance); err != nil {
		return nil, err
	}

	instance.Volumes, err = a.attachedVolumes(ctx, compute, id)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// Reset hard reboots the server named name.
func (a *InstanceAPI) Reset(ctx context.Context, _ gce.Scope, name string) error {
	compute, id, err := a.Clients.resolveServer(ctx, name)
	if err != nil {
		return err
	}

	err = servers.Reboot(ctx, compute, id, servers.RebootOpts{Type: servers.HardReboot}).ExtractErr()
	if err != nil {
		return fmt.Errorf("failed to reset server %s: %w", name, err)
	}
	return nil
}

// describeFloatingAddresses fills the access config name and type of every
// floating address from the matching Neutron floating IP.
func (a *InstanceAPI) describeFloatingAddresses(ctx context.Context, instance *nova.Instance) error {
	var network *neutron
	for name, addresses := range instance.Addresses {
		for i := range addresses {
			address := &addresses[i]
			if address.ExtType != nova.AddressFloating {
				continue
			}
			if network == nil {
				client, err := a.Clients.GetNetworkClient()
				if err != nil {
					return fmt.Errorf("failed to get network client: %w", err)
				}
				network = &neutron{client: client}
			}

			fip, err := network.floatingIPByAddress(ctx, address.Addr)
			if err != nil {
				return fmt.Errorf("failed to look up floating IP %s on network %s: %w", address.Addr, name, err)
			}
			address.Name = DefaultAccessConfigName
			if fip != nil && fip.Description != "" {
				address.Name = fip.Description
			}
			address.Type = AccessConfigOneToOneNAT
		}
	}
	return nil
}

func (a *InstanceAPI) attachedVolumes(ctx context.Context, compute *gophercloud.ServiceClient, id string) ([]nova.Volume, error) {
	page, err := volumeattach.List(compute, id).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list volume attachments of %s: %w", id, err)
	}
	attachments, err := volumeattach.ExtractVolumeAttachments(page)
	if err != nil {
		return nil, fmt.Errorf("failed to extract volume attachments of %s: %w", id, err)
	}
	if len(attachments) == 0 {
		return nil, nil
	}

	blockStorage, err := a.Clients.GetBlockStorageClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get block storage client: %w", err)
	}

	result := make([]nova.Volume, 0, len(attachments))
	for _, attachment := range attachments {
		volume, err := volumes.Get(ctx, blockStorage, attachment.VolumeID).Extract()
		if err != nil {
			return nil, fmt.Errorf("failed to get volume %s: %w", attachment.VolumeID, err)
		}
		result = append(result, nova.Volume{
			DisplayName: volume.Name,
			DeviceName:  deviceName(attachment.Device),
			Bootable:    volume.Bootable,
			Metadata:    volume.Metadata,
		})
	}
	return result, nil
}

// deviceName strips the /dev/ prefix Nova reports attachment devices with.
func deviceName(device string) string {
	return strings.TrimPrefix(device, "/dev/")
}

// devicePath is the inverse of deviceName.
func devicePath(name string) string {
	if name == "" || strings.HasPrefix(name, "/dev/") {
		return name
	}
	return "/dev/" + name
}
