package client

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
)

// serverRef is the part of a server listing needed to resolve a name.
type serverRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// serverID resolves the instance name to the ID of the Nova server carrying
// it. Nova filters names by regular expression, so the match is repeated
// exactly here. A name matching no server yields an IndexError.
func serverID(ctx context.Context, compute *gophercloud.ServiceClient, name string) (string, error) {
	opts := servers.ListOpts{Name: "^" + regexp.QuoteMeta(name) + "$"}
	page, err := servers.ListSimple(compute, opts).AllPages(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list servers named %s: %w", name, err)
	}

	var refs []serverRef
	if err := servers.ExtractServersInto(page, &refs); err != nil {
		return "", fmt.Errorf("failed to extract servers named %s: %w", name, err)
	}

	matches := make([]serverRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Name == name {
			matches = append(matches, ref)
		}
	}

	ref, err := first("instance", matches)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// resolveServer returns the compute client together with the server ID of
// the instance name.
func (c *Clients) resolveServer(ctx context.Context, name string) (*gophercloud.ServiceClient, string, error) {
	compute, err := c.GetComputeClient(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get compute client: %w", err)
	}

	id, err := serverID(ctx, compute, name)
	if err != nil {
		return nil, "", err
	}
	return compute, id, nil
}
