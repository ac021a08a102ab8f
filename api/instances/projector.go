package instances

import (
	"sort"

	"github.com/appkins-org/gceapi/pkg/gce"
	"github.com/appkins-org/gceapi/pkg/nova"
	"github.com/rs/zerolog"
)

// Projector renders OpenStack instances in the GCE instance format.
type Projector struct {
	Qualifier gce.Qualifier
	Log       zerolog.Logger
}

// Project builds the GCE representation of instance in scope. It never
// fails: addresses with an unknown type tag are logged and skipped.
func (p *Projector) Project(instance *nova.Instance, scope gce.Scope) *gce.Instance {
	result := &gce.Instance{
		Kind:              gce.KindInstance,
		ID:                instance.ID,
		SelfLink:          p.Qualifier.Qualify(typeName, instance.Name, scope),
		Zone:              p.Qualifier.ScopeLink(scope),
		CreationTimestamp: formatDate(instance),
		Status:            instance.Status,
		StatusMessage:     instance.StatusMessage,
		Name:              instance.Name,
		Description:       instance.Description,
		MachineType:       p.Qualifier.Qualify("machineTypes", instance.Flavor.Name, scope),
		NetworkInterfaces: []gce.NetworkInterface{},
		Disks:             []gce.AttachedDisk{},
		Metadata: gce.Metadata{
			Kind:  gce.KindMetadata,
			Items: []gce.MetadataItem{},
		},
	}

	for _, key := range sortedKeys(instance.Metadata) {
		result.Metadata.Items = append(result.Metadata.Items, gce.MetadataItem{
			Key:   key,
			Value: instance.Metadata[key],
		})
	}

	for _, network := range sortedKeys(instance.Addresses) {
		result.NetworkInterfaces = append(result.NetworkInterfaces,
			p.networkInterface(instance, network, scope))
	}

	for index, volume := range instance.Volumes {
		result.Disks = append(result.Disks, p.attachedDisk(index, volume, scope))
	}

	return result
}

func (p *Projector) networkInterface(instance *nova.Instance, network string, scope gce.Scope) gce.NetworkInterface {
	ni := gce.NetworkInterface{
		// Networks are global resources even for zonal instances.
		Network: p.Qualifier.Qualify("networks", network, scope.Global()),
		// GCE names interfaces eth0, eth1, ...; OpenStack has no device
		// name, so the network name stands in for it.
		Name:          network,
		AccessConfigs: []gce.AccessConfig{},
	}

	hasNetworkIP := false
	for _, address := range instance.Addresses[network] {
		switch address.ExtType {
		case nova.AddressFixed:
			// Only the first fixed address is exposed.
			if !hasNetworkIP {
				ni.NetworkIP = address.Addr
				hasNetworkIP = true
			}
		case nova.AddressFloating:
			ni.AccessConfigs = append(ni.AccessConfigs, gce.AccessConfig{
				Kind:  gce.KindAccessConfig,
				Name:  address.Name,
				Type:  address.Type,
				NatIP: address.Addr,
			})
		default:
			p.Log.Warn().
				Str("instance", instance.Name).
				Str("network", network).
				Str("type", address.ExtType).
				Msg("Unexpected address for instance")
		}
	}

	return ni
}

// attachedDisk maps a volume to a disk. The readonly and bootable flags are
// compared against the exact strings Cinder reports ("True", "true").
func (p *Projector) attachedDisk(index int, volume nova.Volume, scope gce.Scope) gce.AttachedDisk {
	mode := gce.ModeReadWrite
	if volume.ReadOnly() == "True" {
		mode = gce.ModeReadOnly
	}

	return gce.AttachedDisk{
		Kind:       gce.KindAttachedDisk,
		Index:      index,
		Type:       gce.DiskTypePersistent,
		Mode:       mode,
		Source:     p.Qualifier.Qualify("disks", volume.DisplayName, scope),
		DeviceName: volume.DeviceName,
		Boot:       volume.Bootable == "true",
	}
}

func formatDate(instance *nova.Instance) string {
	if instance.Created.IsZero() {
		return ""
	}
	return instance.Created.Format(gce.TimestampLayout)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
