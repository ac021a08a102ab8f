package client

import (
	"context"
	"fmt"
	"path"

	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/volumeattach"
)

// DiskAPI attaches Cinder volumes to and detaches them from Nova servers.
type DiskAPI struct {
	Clients *Clients
}

// AddItem attaches the volume named by source to the server named
// instance. source may be a bare disk name or a disk self-link. An empty
// deviceName lets Nova pick the device.
func (a *DiskAPI) AddItem(ctx context.Context, instance, source, deviceName string) error {
	compute, serverID, err := a.Clients.resolveServer(ctx, instance)
	if err != nil {
		return err
	}

	blockStorage, err := a.Clients.GetBlockStorageClient()
	if err != nil {
		return fmt.Errorf("failed to get block storage client: %w", err)
	}

	name := path.Base(source)
	page, err := volumes.List(blockStorage, volumes.ListOpts{Name: name}).AllPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list volumes: %w", err)
	}
	vols, err := volumes.ExtractVolumes(page)
	if err != nil {
		return fmt.Errorf("failed to extract volumes: %w", err)
	}
	if len(vols) == 0 {
		return &KeyError{Collection: "disk", Key: name}
	}

	opts := volumeattach.CreateOpts{
		VolumeID: vols[0].ID,
		Device:   devicePath(deviceName),
	}
	if _, err := volumeattach.Create(ctx, compute, serverID, opts).Extract(); err != nil {
		return fmt.Errorf("failed to attach disk %s to %s: %w", name, instance, err)
	}
	return nil
}

// DeleteItem detaches the volume attached to the server named instance as
// deviceName.
func (a *DiskAPI) DeleteItem(ctx context.Context, instance, deviceName string) error {
	compute, serverID, err := a.Clients.resolveServer(ctx, instance)
	if err != nil {
		return err
	}

	page, err := volumeattach.List(compute, serverID).AllPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list volume attachments of %s: %w", instance, err)
	}
	attachments, err := volumeattach.ExtractVolumeAttachments(page)
	if err != nil {
		return fmt.Errorf("failed to extract volume attachments of %s: %w", instance, err)
	}

	for _, attachment := range attachments {
		if attachment.Device != devicePath(deviceName) {
			continue
		}
		if err := volumeattach.Delete(ctx, compute, serverID, attachment.VolumeID).ExtractErr(); err != nil {
			return fmt.Errorf("failed to detach %s from %s: %w", deviceName, instance, err)
		}
		return nil
	}

	return &KeyError{Collection: "device", Key: deviceName}
}
