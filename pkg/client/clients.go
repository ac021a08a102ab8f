package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/appkins-org/gceapi/pkg/config"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/rs/zerolog/log"
)

// computeMicroversion exposes flavor.original_name and server description.
const computeMicroversion = "2.47"

// Clients stores the service clients for Nova, Cinder and Neutron.
type Clients struct {
	compute      *gophercloud.ServiceClient
	blockStorage *gophercloud.ServiceClient
	network      *gophercloud.ServiceClient

	// Boolean that determines if the compute API was previously determined to be available, we don't need to try every time.
	computeUp bool

	// Boolean that determines we've already waited and the API never came up, we don't need to wait again.
	computeFailed bool

	// Mutex so that only one request checks at a time. There's no reason to have multiple
	// requests calling out to the API.
	computeMux sync.Mutex

	timeout int
}

// NewClients authenticates against Keystone and builds the service clients.
func NewClients(ctx context.Context, cfg config.OpenStackConfig) (*Clients, error) {
	authOpts := gophercloud.AuthOptions{
		IdentityEndpoint: cfg.AuthURL,
		Username:         cfg.Username,
		Password:         cfg.Password,
		TenantName:       cfg.ProjectName,
		DomainName:       cfg.DomainName,
		AllowReauth:      true,
	}

	provider, err := openstack.AuthenticatedClient(ctx, authOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	eo := gophercloud.EndpointOpts{Region: cfg.Region}

	compute, err := openstack.NewComputeV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}
	compute.Microversion = computeMicroversion

	blockStorage, err := openstack.NewBlockStorageV3(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("failed to create block storage client: %w", err)
	}

	network, err := openstack.NewNetworkV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("failed to create network client: %w", err)
	}

	return &Clients{
		compute:      compute,
		blockStorage: blockStorage,
		network:      network,
		timeout:      cfg.Timeout,
	}, nil
}

// GetComputeClient returns the API client for Nova, optionally retrying to reach the API if timeout is set.
func (c *Clients) GetComputeClient(ctx context.Context) (*gophercloud.ServiceClient, error) {
	// Concurrent requests can ask for the client before the API is known to be up. We
	// only need to check once, so the mutex restricts polling to one caller.
	// When it is released, the other callers will fall through to the check for computeUp.
	c.computeMux.Lock()
	defer c.computeMux.Unlock()

	if c.compute == nil {
		return nil, fmt.Errorf("compute client is not configured")
	}

	// Compute is UP, or user didn't ask us to check
	if c.computeUp || c.timeout == 0 {
		return c.compute, nil
	}

	// We previously tried and it failed.
	if c.computeFailed {
		return nil, fmt.Errorf("could not contact compute API: timeout reached")
	}

	// Let's poll the API until it's up, or times out. Only the timeout marks
	// the API as failed; a canceled caller just stops waiting.
	duration := time.Duration(c.timeout) * time.Second
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), duration)
	defer cancel()

	done := make(chan struct{})
	go func() {
		log.Info().Msg("Waiting for compute API...")
		waitForAPI(waitCtx, c.compute)
		log.Info().Msg("API successfully connected, waiting for flavors...")
		waitForFlavors(waitCtx, c.compute)
		close(done)
	}()

	// Wait for done or for the caller to give up
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("stopped waiting for compute API: %w", ctx.Err())
	case <-done:
	}

	if err := waitCtx.Err(); err != nil {
		c.computeFailed = true
		return nil, fmt.Errorf("could not contact compute API: %w", err)
	}

	c.computeUp = true
	return c.compute, nil
}

// GetBlockStorageClient returns the API client for Cinder.
func (c *Clients) GetBlockStorageClient() (*gophercloud.ServiceClient, error) {
	if c.blockStorage == nil {
		return nil, fmt.Errorf("block storage client is not configured")
	}
	return c.blockStorage, nil
}

// GetNetworkClient returns the API client for Neutron.
func (c *Clients) GetNetworkClient() (*gophercloud.ServiceClient, error) {
	if c.network == nil {
		return nil, fmt.Errorf("network client is not configured")
	}
	return c.network, nil
}

// SetComputeClient sets the Nova client
func (c *Clients) SetComputeClient(client *gophercloud.ServiceClient) {
	c.compute = client
	c.computeUp = true
}

// SetBlockStorageClient sets the Cinder client
func (c *Clients) SetBlockStorageClient(client *gophercloud.ServiceClient) {
	c.blockStorage = client
}

// SetNetworkClient sets the Neutron client
func (c *Clients) SetNetworkClient(client *gophercloud.ServiceClient) {
	c.network = client
}

// Retries an API until it responds or ctx is done.
func waitForAPI(ctx context.Context, client *gophercloud.ServiceClient) {
	httpClient := &http.Client{
		Timeout: 5 * time.Second,
	}

	endpoint := strings.TrimSuffix(client.Endpoint, "/")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			log.Debug().Str("endpoint", endpoint).Msg("Waiting for API to become available...")

			r, err := httpClient.Get(endpoint)
			if err == nil {
				statusCode := r.StatusCode
				r.Body.Close()
				// Nova answers the unversioned root with 200 and a bare
				// versioned root without a token with 401; both mean it is up.
				if statusCode == http.StatusOK || statusCode == http.StatusUnauthorized {
					return
				}
			}

			sleep(ctx, 5*time.Second)
		}
	}
}

// Compute can be considered up when the flavor listing succeeds.
func waitForFlavors(ctx context.Context, client *gophercloud.ServiceClient) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			log.Debug().Msg("Waiting for flavors to become available...")

			_, err := flavors.ListDetail(client, flavors.ListOpts{}).AllPages(ctx)
			if err == nil {
				return
			}

			sleep(ctx, 5*time.Second)
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
