package instances

import (
	"context"

	"github.com/appkins-org/gceapi/pkg/gce"
	"github.com/appkins-org/gceapi/pkg/nova"
)

// typeName is the GCE resource collection served by this package.
const typeName = "instances"

// Operation types registered for instance mutations.
const (
	OperationReset              = "reset"
	OperationAddAccessConfig    = "addAccessConfig"
	OperationDeleteAccessConfig = "deleteAccessConfig"
	OperationAttachDisk         = "attachDisk"
	OperationDetachDisk         = "detachDisk"
)

// InstanceAPI reads and resets instances.
type InstanceAPI interface {
	Get(ctx context.Context, scope gce.Scope, id string) (*nova.Instance, error)
	Reset(ctx context.Context, scope gce.Scope, id string) error
}

// AddressAPI manages the access configs of an instance.
type AddressAPI interface {
	AddItem(ctx context.Context, id, networkInterface, natIP, accessType, name string) error
	DeleteItem(ctx context.Context, id, accessConfigName string) error
}

// DiskAPI manages the disks attached to an instance.
type DiskAPI interface {
	AddItem(ctx context.Context, id, source, deviceName string) error
	DeleteItem(ctx context.Context, id, deviceName string) error
}

// OperationRegister records the start of an asynchronous operation. The
// record must be durable by the time Init returns. An implementation that
// cannot record the operation cancels ctx.
type OperationRegister interface {
	Init(ctx context.Context, operationType, typeName, id string, scope gce.Scope)
}

// AccessConfigParams identifies the access config to add.
type AccessConfigParams struct {
	NetworkInterface string
	NatIP            string
	Type             string
	Name             string
}

// AttachDiskParams identifies the disk to attach.
type AttachDiskParams struct {
	Source     string
	DeviceName string
}

// Controller exposes OpenStack instances through the GCE instance API.
type Controller struct {
	Instances  InstanceAPI
	Addresses  AddressAPI
	Disks      DiskAPI
	Operations OperationRegister
	Projector  *Projector
}

// FormatItem renders instance in scope.
func (c *Controller) FormatItem(scope gce.Scope, instance *nova.Instance) *gce.Instance {
	return c.Projector.Project(instance, scope)
}

// register records the operation about to run against instance id. The
// mutation must not start when the registration canceled ctx.
func (c *Controller) register(ctx context.Context, operationType, id string, scope gce.Scope) error {
	c.Operations.Init(ctx, operationType, typeName, id, scope)
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// Get fetches instance id and renders it.
func (c *Controller) Get(ctx context.Context, scope gce.Scope, id string) (*gce.Instance, error) {
	instance, err := c.Instances.Get(ctx, scope, id)
	if err != nil {
		return nil, translateNotFound(id, err)
	}
	return c.FormatItem(scope, instance), nil
}

// ResetInstance hard resets instance id.
func (c *Controller) ResetInstance(ctx context.Context, scope gce.Scope, id string) error {
	if err := c.register(ctx, OperationReset, id, scope); err != nil {
		return err
	}
	return translateNotFound(id, c.Instances.Reset(ctx, scope, id))
}

// AddAccessConfig binds an external address to one interface of instance id.
func (c *Controller) AddAccessConfig(ctx context.Context, scope gce.Scope, id string, params AccessConfigParams) error {
	if err := c.register(ctx, OperationAddAccessConfig, id, scope); err != nil {
		return err
	}
	err := c.Addresses.AddItem(ctx, id, params.NetworkInterface, params.NatIP, params.Type, params.Name)
	return translateNotFound(id, err)
}

// DeleteAccessConfig removes the access config named accessConfig from
// instance id.
func (c *Controller) DeleteAccessConfig(ctx context.Context, scope gce.Scope, id, accessConfig string) error {
	if err := c.register(ctx, OperationDeleteAccessConfig, id, scope); err != nil {
		return err
	}
	return translateNotFound(id, c.Addresses.DeleteItem(ctx, id, accessConfig))
}

// AttachDisk attaches a disk to instance id.
func (c *Controller) AttachDisk(ctx context.Context, scope gce.Scope, id string, params AttachDiskParams) error {
	if err := c.register(ctx, OperationAttachDisk, id, scope); err != nil {
		return err
	}
	return translateNotFound(id, c.Disks.AddItem(ctx, id, params.Source, params.DeviceName))
}

// DetachDisk detaches the disk attached as deviceName from instance id.
func (c *Controller) DetachDisk(ctx context.Context, scope gce.Scope, id, deviceName string) error {
	if err := c.register(ctx, OperationDetachDisk, id, scope); err != nil {
		return err
	}
	return translateNotFound(id, c.Disks.DeleteItem(ctx, id, deviceName))
}
