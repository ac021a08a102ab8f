package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/appkins-org/gceapi/pkg/gce"
	"github.com/appkins-org/gceapi/pkg/nova"
	"github.com/gophercloud/gophercloud/v2"
)

const serverJSON = `{
  "server": {
    "id": "srv-1",
    "name": "vm1",
    "status": "ACTIVE",
    "description": "web frontend",
    "created": "2024-01-02T03:04:05Z",
    "flavor": {"original_name": "m1.small"},
    "metadata": {"role": "web"},
    "addresses": {
      "private": [
        {"addr": "10.0.0.5", "version": 4, "OS-EXT-IPS:type": "fixed"},
        {"addr": "172.24.4.10", "version": 4, "OS-EXT-IPS:type": "floating"}
      ]
    }
  }
}`

// newTestClients serves handler through a no-auth client set, the way
// standalone deployments reach OpenStack.
func newTestClients(t *testing.T, handler http.Handler) *Clients {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sc := &gophercloud.ServiceClient{
		ProviderClient: &gophercloud.ProviderClient{IdentityBase: srv.URL},
		Endpoint:       srv.URL + "/",
	}

	clients := &Clients{}
	clients.SetComputeClient(sc)
	clients.SetBlockStorageClient(sc)
	clients.SetNetworkClient(sc)
	return clients
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// handleServerList serves the Nova name lookup. servers is the JSON array
// of {"id", "name"} objects returned for every query.
func handleServerList(t *testing.T, mux *http.ServeMux, servers string) {
	t.Helper()
	mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("name"); !strings.HasPrefix(name, "^") || !strings.HasSuffix(name, "$") {
			t.Errorf("expected anchored name filter, got %q", name)
		}
		writeJSON(w, http.StatusOK, `{"servers": `+servers+`}`)
	})
}

const vm1List = `[{"id": "srv-1", "name": "vm1"}]`

func TestInstanceAPIGet(t *testing.T) {
	mux := http.NewServeMux()
	handleServerList(t, mux, vm1List)
	mux.HandleFunc("/servers/srv-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, serverJSON)
	})
	mux.HandleFunc("/servers/srv-1/os-volume_attachments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"volumeAttachments": [
			{"id": "vol-1", "device": "/dev/vda", "serverId": "srv-1", "volumeId": "vol-1"},
			{"id": "vol-2", "device": "/dev/vdb", "serverId": "srv-1", "volumeId": "vol-2"}
		]}`)
	})
	mux.HandleFunc("/volumes/vol-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"volume": {"id": "vol-1", "name": "boot", "bootable": "true", "metadata": {}}}`)
	})
	mux.HandleFunc("/volumes/vol-2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"volume": {"id": "vol-2", "name": "data", "bootable": "false", "metadata": {"readonly": "True"}}}`)
	})
	mux.HandleFunc("/floatingips", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("floating_ip_address") != "172.24.4.10" {
			t.Errorf("unexpected floating IP query %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, `{"floatingips": [{"id": "fip-1", "floating_ip_address": "172.24.4.10", "port_id": "port-1", "description": "nat1"}]}`)
	})

	api := &InstanceAPI{Clients: newTestClients(t, mux)}

	instance, err := api.Get(context.Background(), gce.Scope{Project: "demo", Zone: "nova"}, "vm1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if instance.ID != "srv-1" {
		t.Errorf("expected server srv-1, got %s", instance.ID)
	}
	if instance.Name != "vm1" {
		t.Errorf("expected name vm1, got %s", instance.Name)
	}
	if instance.Flavor.Name != "m1.small" {
		t.Errorf("expected flavor m1.small, got %s", instance.Flavor.Name)
	}
	if instance.Description != "web frontend" {
		t.Errorf("unexpected description %q", instance.Description)
	}
	if instance.Created.Year() != 2024 {
		t.Errorf("unexpected creation time %v", instance.Created)
	}

	addresses := instance.Addresses["private"]
	if len(addresses) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(addresses))
	}
	if addresses[0].ExtType != nova.AddressFixed {
		t.Errorf("expected fixed address first, got %s", addresses[0].ExtType)
	}
	if addresses[1].Name != "nat1" || addresses[1].Type != AccessConfigOneToOneNAT {
		t.Errorf("unexpected floating address %+v", addresses[1])
	}

	if len(instance.Volumes) != 2 {
		t.Fatalf("expected 2 volumes, got %d", len(instance.Volumes))
	}
	if instance.Volumes[0].DeviceName != "vda" || instance.Volumes[0].Bootable != "true" {
		t.Errorf("unexpected boot volume %+v", instance.Volumes[0])
	}
	if instance.Volumes[1].ReadOnly() != "True" {
		t.Errorf("expected readonly data volume, got %+v", instance.Volumes[1])
	}
}

func TestInstanceAPIGetNotFound(t *testing.T) {
	tests := []struct {
		name    string
		servers string
	}{
		{name: "no server", servers: `[]`},
		// Nova matches names by regular expression; only exact names count.
		{name: "prefix match only", servers: `[{"id": "srv-2", "name": "vm10"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			handleServerList(t, mux, tt.servers)
			mux.HandleFunc("/servers/", func(w http.ResponseWriter, r *http.Request) {
				t.Errorf("unexpected request %s", r.URL.Path)
			})

			api := &InstanceAPI{Clients: newTestClients(t, mux)}

			_, err := api.Get(context.Background(), gce.Scope{Project: "demo", Zone: "nova"}, "vm1")
			var indexErr *IndexError
			if !errors.As(err, &indexErr) {
				t.Fatalf("expected IndexError, got %v", err)
			}
			if indexErr.Collection != "instance" {
				t.Errorf("expected instance collection, got %s", indexErr.Collection)
			}
		})
	}
}

func TestInstanceAPIGetServerGone(t *testing.T) {
	mux := http.NewServeMux()
	handleServerList(t, mux, vm1List)
	mux.HandleFunc("/servers/srv-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"itemNotFound": {"code": 404, "message": "Instance srv-1 could not be found."}}`)
	})

	api := &InstanceAPI{Clients: newTestClients(t, mux)}

	_, err := api.Get(context.Background(), gce.Scope{Project: "demo", Zone: "nova"}, "vm1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		t.Errorf("expected 404 to be preserved, got %v", err)
	}
}

func TestInstanceAPIReset(t *testing.T) {
	var action string
	mux := http.NewServeMux()
	handleServerList(t, mux, vm1List)
	mux.HandleFunc("/servers/srv-1/action", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		action = string(body)
		w.WriteHeader(http.StatusAccepted)
	})

	api := &InstanceAPI{Clients: newTestClients(t, mux)}

	if err := api.Reset(context.Background(), gce.Scope{}, "vm1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != `{"reboot":{"type":"HARD"}}` {
		t.Errorf("unexpected reboot body %s", action)
	}
}

func TestDiskAPIDeleteItem(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	handleServerList(t, mux, vm1List)
	mux.HandleFunc("/servers/srv-1/os-volume_attachments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"volumeAttachments": [
			{"id": "vol-1", "device": "/dev/vda", "serverId": "srv-1", "volumeId": "vol-1"}
		]}`)
	})
	mux.HandleFunc("/servers/srv-1/os-volume_attachments/vol-1", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.Method
		w.WriteHeader(http.StatusAccepted)
	})

	api := &DiskAPI{Clients: newTestClients(t, mux)}

	if err := api.DeleteItem(context.Background(), "vm1", "vda"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != http.MethodDelete {
		t.Errorf("expected attachment to be deleted, got %q", deleted)
	}

	err := api.DeleteItem(context.Background(), "vm1", "vdz")
	var keyErr *KeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("expected KeyError, got %v", err)
	}
	if keyErr.Key != "vdz" {
		t.Errorf("expected key vdz, got %s", keyErr.Key)
	}
}

func TestAddressAPIDeleteItemUnknown(t *testing.T) {
	mux := http.NewServeMux()
	handleServerList(t, mux, vm1List)
	mux.HandleFunc("/ports", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("device_id") != "srv-1" {
			t.Errorf("expected ports of srv-1, got %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, `{"ports": [{"id": "port-1", "device_id": "srv-1"}]}`)
	})
	mux.HandleFunc("/floatingips", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"floatingips": [{"id": "fip-1", "floating_ip_address": "172.24.4.10", "port_id": "port-1", "description": "nat1"}]}`)
	})

	api := &AddressAPI{Clients: newTestClients(t, mux)}

	err := api.DeleteItem(context.Background(), "vm1", "nat2")
	var keyErr *KeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("expected KeyError, got %v", err)
	}
}

func TestAddressAPIAddItemNoPort(t *testing.T) {
	mux := http.NewServeMux()
	handleServerList(t, mux, vm1List)
	mux.HandleFunc("/networks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"networks": [{"id": "net-1", "name": "private"}]}`)
	})
	mux.HandleFunc("/ports", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"ports": []}`)
	})

	api := &AddressAPI{Clients: newTestClients(t, mux)}

	err := api.AddItem(context.Background(), "vm1", "private", "172.24.4.10", AccessConfigOneToOneNAT, "nat1")
	var indexErr *IndexError
	if !errors.As(err, &indexErr) {
		t.Fatalf("expected IndexError, got %v", err)
	}
}

func TestFirst(t *testing.T) {
	if _, err := first("port", []string{}); err == nil {
		t.Error("expected error for empty collection")
	}

	value, err := first("port", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "a" {
		t.Errorf("expected a, got %s", value)
	}
}

func TestDevicePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare", input: "vdb", expected: "/dev/vdb"},
		{name: "already a path", input: "/dev/vdb", expected: "/dev/vdb"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := devicePath(tt.input)
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
			if tt.input != "" && deviceName(result) != "vdb" {
				t.Errorf("expected round trip to vdb, got %s", deviceName(result))
			}
		})
	}
}

func TestDiskAPIAddItem(t *testing.T) {
	var attach string
	mux := http.NewServeMux()
	handleServerList(t, mux, vm1List)
	mux.HandleFunc("/volumes/detail", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "d1" {
			t.Errorf("expected lookup of d1, got %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, `{"volumes": [{"id": "vol-1", "name": "d1", "bootable": "true"}]}`)
	})
	mux.HandleFunc("/servers/srv-1/os-volume_attachments", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		attach = string(body)
		writeJSON(w, http.StatusOK, `{"volumeAttachment": {"id": "vol-1", "device": "/dev/vda", "serverId": "srv-1", "volumeId": "vol-1"}}`)
	})

	api := &DiskAPI{Clients: newTestClients(t, mux)}

	err := api.AddItem(context.Background(), "vm1", "http://gce.local/compute/v1/projects/demo/zones/nova/disks/d1", "vda")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attach != `{"volumeAttachment":{"device":"/dev/vda","volumeId":"vol-1"}}` {
		t.Errorf("unexpected attach body %s", attach)
	}
}

func TestGetComputeClientWait(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	mux.HandleFunc("/flavors/detail", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"flavors": []}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	clients := &Clients{
		compute: &gophercloud.ServiceClient{
			ProviderClient: &gophercloud.ProviderClient{IdentityBase: srv.URL},
			Endpoint:       srv.URL + "/",
		},
		timeout: 5,
	}

	// A caller that goes away does not poison later requests.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := clients.GetComputeClient(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation error, got %v", err)
	}
	if clients.computeFailed {
		t.Fatal("canceled caller marked the compute API as failed")
	}

	compute, err := clients.GetComputeClient(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if compute == nil || !clients.computeUp {
		t.Error("expected compute API to be marked up")
	}
}

func TestGetComputeClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	clients := &Clients{
		compute: &gophercloud.ServiceClient{
			ProviderClient: &gophercloud.ProviderClient{IdentityBase: srv.URL},
			Endpoint:       srv.URL + "/",
		},
		timeout: 1,
	}

	start := time.Now()
	if _, err := clients.GetComputeClient(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("wait outlived its timeout: %v", elapsed)
	}
	if !clients.computeFailed {
		t.Error("expected compute API to be marked failed")
	}

	if _, err := clients.GetComputeClient(context.Background()); err == nil {
		t.Error("expected the failure to be remembered")
	}
}
