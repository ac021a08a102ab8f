package instances

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"
)

// ShutdownTimeout bounds how long in-flight requests may run once serving
// has been asked to stop.
const ShutdownTimeout = 30 * time.Second

// ListenAndServe listens on the TCP address addr and serves h there until
// ctx is done.
func ListenAndServe(ctx context.Context, addr netip.AddrPort, h *http.Server) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr.String())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return Serve(ctx, ln, h)
}

// Serve accepts connections on ln and serves them with h. When ctx is done
// the server is shut down, letting in-flight requests finish within
// ShutdownTimeout, and http.ErrServerClosed is returned. Serve always closes
// ln.
func Serve(ctx context.Context, ln net.Listener, h *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	if err := h.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return <-errCh
}
