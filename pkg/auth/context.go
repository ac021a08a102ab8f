package auth

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

type contextKey struct{}

// RequestContext carries the caller identity of a request. It is not
// verified here; authentication happens in front of this service.
type RequestContext struct {
	ProjectID string
	UserID    string
	AuthToken string
}

// NewContext returns a copy of ctx carrying rc.
func NewContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the RequestContext stored in ctx, if any.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(RequestContext)
	return rc, ok
}

// Resolver builds the RequestContext of an inbound request.
type Resolver interface {
	Resolve(r *http.Request) RequestContext
}

// HeaderResolver reads the caller identity from the Keystone-style headers
// set by the authenticating proxy, falling back to the project path segment.
type HeaderResolver struct{}

// Resolve implements Resolver.
func (HeaderResolver) Resolve(r *http.Request) RequestContext {
	rc := RequestContext{
		ProjectID: r.Header.Get("X-Project-Id"),
		UserID:    r.Header.Get("X-User-Id"),
		AuthToken: r.Header.Get("X-Auth-Token"),
	}
	if rc.ProjectID == "" {
		rc.ProjectID = mux.Vars(r)["project"]
	}
	return rc
}

// Middleware stores the resolved RequestContext in the request context.
func Middleware(resolver Resolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := NewContext(r.Context(), resolver.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
