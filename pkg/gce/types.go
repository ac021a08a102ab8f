package gce

// Resource kinds as they appear in the "kind" field of GCE responses.
const (
	KindInstance     = "compute#instance"
	KindMetadata     = "compute#metadata"
	KindAccessConfig = "compute#accessConfig"
	KindAttachedDisk = "compute#attachedDisk"
	KindOperation    = "compute#operation"
)

// Disk attachment modes.
const (
	ModeReadOnly  = "READ_ONLY"
	ModeReadWrite = "READ_WRITE"
)

// DiskTypePersistent is the only attached disk type exposed.
const DiskTypePersistent = "PERSISTENT"

// TimestampLayout is the RFC 3339 layout GCE uses for creationTimestamp and
// operation times.
const TimestampLayout = "2006-01-02T15:04:05.000-07:00"

// Instance represents a GCE compute instance as rendered on the wire.
type Instance struct {
	Kind              string             `json:"kind"`
	ID                string             `json:"id,omitempty"`
	SelfLink          string             `json:"selfLink,omitempty"`
	Zone              string             `json:"zone,omitempty"`
	CreationTimestamp string             `json:"creationTimestamp"`
	Status            string             `json:"status"`
	StatusMessage     string             `json:"statusMessage"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	MachineType       string             `json:"machineType"`
	NetworkInterfaces []NetworkInterface `json:"networkInterfaces"`
	Disks             []AttachedDisk     `json:"disks"`
	Metadata          Metadata           `json:"metadata"`
}

// NetworkInterface represents one network attachment of an instance.
type NetworkInterface struct {
	Network       string         `json:"network"`
	Name          string         `json:"name"`
	NetworkIP     string         `json:"networkIP,omitempty"`
	AccessConfigs []AccessConfig `json:"accessConfigs"`
}

// AccessConfig represents an external (NAT) address bound to an interface.
type AccessConfig struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	NatIP string `json:"natIP"`
}

// AttachedDisk represents a disk attached to an instance.
type AttachedDisk struct {
	Kind       string `json:"kind"`
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Mode       string `json:"mode"`
	Source     string `json:"source"`
	DeviceName string `json:"deviceName"`
	Boot       bool   `json:"boot"`
}

// Metadata holds the instance key/value metadata.
type Metadata struct {
	Kind  string         `json:"kind"`
	Items []MetadataItem `json:"items"`
}

// MetadataItem is a single metadata entry.
type MetadataItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ErrorResponse is the GCE error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the details of an ErrorResponse.
type ErrorBody struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Errors  []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail is one entry of ErrorBody.Errors.
type ErrorDetail struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
