package nova

import "time"

// Address type tags carried in the OS-EXT-IPS:type extension attribute.
const (
	AddressFixed    = "fixed"
	AddressFloating = "floating"
)

// Instance is the OpenStack view of a compute instance, assembled from the
// server record, its volume attachments and its floating IPs.
type Instance struct {
	ID            string
	Name          string
	Created       time.Time
	Status        string
	StatusMessage string
	Description   string
	Flavor        Flavor
	Metadata      map[string]string
	Addresses     map[string][]Address
	Volumes       []Volume
}

// Flavor identifies the flavor of an instance.
type Flavor struct {
	ID   string
	Name string
}

// Address is one entry of a server's per-network address list.
type Address struct {
	Addr    string `json:"addr"`
	Version int    `json:"version"`
	ExtType string `json:"OS-EXT-IPS:type"`
	MACAddr string `json:"OS-EXT-IPS-MAC:mac_addr"`

	// Name and Type are only set on floating addresses and describe the
	// access config the address is exposed as.
	Name string `json:"-"`
	Type string `json:"-"`
}

// Volume is a block storage volume attached to an instance. Bootable and the
// readonly metadata entry are kept as the strings Cinder reports.
type Volume struct {
	DisplayName string
	DeviceName  string
	Bootable    string
	Metadata    map[string]string
}

// ReadOnly returns the readonly metadata string, "False" when unset.
func (v Volume) ReadOnly() string {
	if readonly, ok := v.Metadata["readonly"]; ok {
		return readonly
	}
	return "False"
}
