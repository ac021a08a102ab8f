package client

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/layer3/floatingips"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/ports"
)

// AddressAPI manages the access configs of an instance. An access config is
// a Neutron floating IP associated with one of the server's ports; its name
// is kept in the floating IP description.
type AddressAPI struct {
	Clients *Clients
}

// AddItem associates the floating IP natIP with the port the server named
// instance has on the network named networkInterface. An empty natIP picks
// the first unassociated floating IP of the project.
func (a *AddressAPI) AddItem(ctx context.Context, instance, networkInterface, natIP, accessType, name string) error {
	_, serverID, err := a.Clients.resolveServer(ctx, instance)
	if err != nil {
		return err
	}

	client, err := a.Clients.GetNetworkClient()
	if err != nil {
		return fmt.Errorf("failed to get network client: %w", err)
	}
	n := &neutron{client: client}

	network, err := n.networkByName(ctx, networkInterface)
	if err != nil {
		return err
	}

	serverPorts, err := n.serverPorts(ctx, serverID, network.ID)
	if err != nil {
		return err
	}
	port, err := first("port", serverPorts)
	if err != nil {
		return err
	}

	var fip *floatingips.FloatingIP
	if natIP == "" {
		fip, err = n.unassociatedFloatingIP(ctx)
	} else {
		fip, err = n.floatingIPByAddress(ctx, natIP)
		if err == nil && fip == nil {
			err = &KeyError{Collection: "floating IP", Key: natIP}
		}
	}
	if err != nil {
		return err
	}

	if name == "" {
		name = DefaultAccessConfigName
	}
	opts := floatingips.UpdateOpts{
		PortID:      &port.ID,
		Description: &name,
	}
	if _, err := floatingips.Update(ctx, client, fip.ID, opts).Extract(); err != nil {
		return fmt.Errorf("failed to associate floating IP %s with %s: %w", fip.FloatingIP, instance, err)
	}
	return nil
}

// DeleteItem disassociates the floating IP exposed as accessConfigName from
// the server named instance.
func (a *AddressAPI) DeleteItem(ctx context.Context, instance, accessConfigName string) error {
	_, serverID, err := a.Clients.resolveServer(ctx, instance)
	if err != nil {
		return err
	}

	client, err := a.Clients.GetNetworkClient()
	if err != nil {
		return fmt.Errorf("failed to get network client: %w", err)
	}
	n := &neutron{client: client}

	serverPorts, err := n.serverPorts(ctx, serverID, "")
	if err != nil {
		return err
	}

	for _, port := range serverPorts {
		fips, err := n.floatingIPs(ctx, floatingips.ListOpts{PortID: port.ID})
		if err != nil {
			return err
		}
		for _, fip := range fips {
			if accessConfigNameOf(fip) != accessConfigName {
				continue
			}
			empty := ""
			opts := floatingips.UpdateOpts{PortID: &empty}
			if _, err := floatingips.Update(ctx, client, fip.ID, opts).Extract(); err != nil {
				return fmt.Errorf("failed to disassociate floating IP %s from %s: %w", fip.FloatingIP, instance, err)
			}
			return nil
		}
	}

	return &KeyError{Collection: "access config", Key: accessConfigName}
}

func accessConfigNameOf(fip floatingips.FloatingIP) string {
	if fip.Description == "" {
		return DefaultAccessConfigName
	}
	return fip.Description
}

// neutron wraps the listing calls shared by the address and instance APIs.
type neutron struct {
	client *gophercloud.ServiceClient
}

func (n *neutron) floatingIPs(ctx context.Context, opts floatingips.ListOpts) ([]floatingips.FloatingIP, error) {
	page, err := floatingips.List(n.client, opts).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list floating IPs: %w", err)
	}
	fips, err := floatingips.ExtractFloatingIPs(page)
	if err != nil {
		return nil, fmt.Errorf("failed to extract floating IPs: %w", err)
	}
	return fips, nil
}

// floatingIPByAddress returns the floating IP with address addr, or nil if
// there is none.
func (n *neutron) floatingIPByAddress(ctx context.Context, addr string) (*floatingips.FloatingIP, error) {
	fips, err := n.floatingIPs(ctx, floatingips.ListOpts{FloatingIP: addr})
	if err != nil {
		return nil, err
	}
	if len(fips) == 0 {
		return nil, nil
	}
	return &fips[0], nil
}

func (n *neutron) unassociatedFloatingIP(ctx context.Context) (*floatingips.FloatingIP, error) {
	fips, err := n.floatingIPs(ctx, floatingips.ListOpts{})
	if err != nil {
		return nil, err
	}
	for i := range fips {
		if fips[i].PortID == "" {
			return &fips[i], nil
		}
	}
	return nil, fmt.Errorf("no unassociated floating IP available")
}

func (n *neutron) networkByName(ctx context.Context, name string) (*networks.Network, error) {
	page, err := networks.List(n.client, networks.ListOpts{Name: name}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	nets, err := networks.ExtractNetworks(page)
	if err != nil {
		return nil, fmt.Errorf("failed to extract networks: %w", err)
	}
	for i := range nets {
		if nets[i].Name == name {
			return &nets[i], nil
		}
	}
	return nil, &KeyError{Collection: "network", Key: name}
}

func (n *neutron) serverPorts(ctx context.Context, serverID, networkID string) ([]ports.Port, error) {
	page, err := ports.List(n.client, ports.ListOpts{DeviceID: serverID, NetworkID: networkID}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ports of %s: %w", serverID, err)
	}
	result, err := ports.ExtractPorts(page)
	if err != nil {
		return nil, fmt.Errorf("failed to extract ports of %s: %w", serverID, err)
	}
	return result, nil
}
