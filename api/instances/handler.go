package instances

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/appkins-org/gceapi/pkg/auth"
	"github.com/appkins-org/gceapi/pkg/gce"
	"github.com/appkins-org/gceapi/pkg/operations"
	"github.com/appkins-org/gceapi/pkg/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"google.golang.org/api/compute/v1"
)

var validate = validator.New()

// OperationTracker completes and reads the operations registered by the
// controller.
type OperationTracker interface {
	Finish(ctx context.Context, failure *operations.Failure) (*compute.Operation, error)
	Get(ctx context.Context, scope gce.Scope, name string) (*compute.Operation, error)
}

// ScopeResolver determines the scope addressed by a request.
type ScopeResolver interface {
	Resolve(r *http.Request) gce.Scope
}

// PathScopeResolver reads the scope from the {project} and {zone} path
// variables.
type PathScopeResolver struct{}

// Resolve implements ScopeResolver.
func (PathScopeResolver) Resolve(r *http.Request) gce.Scope {
	vars := mux.Vars(r)
	return gce.Scope{Project: vars["project"], Zone: vars["zone"]}
}

// Handler serves the GCE instances API.
type Handler struct {
	Controller *Controller
	Operations OperationTracker
	Metrics    *telemetry.Metrics
	Scopes     ScopeResolver
	Contexts   auth.Resolver
	Log        zerolog.Logger
}

type accessConfigBody struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Type  string `json:"type" validate:"omitempty,oneof=ONE_TO_ONE_NAT"`
	NatIP string `json:"natIP" validate:"omitempty,ip"`
}

type attachedDiskBody struct {
	Kind       string `json:"kind"`
	Source     string `json:"source" validate:"required"`
	DeviceName string `json:"deviceName"`
}

// Routes sets up the HTTP routes for the instances API
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()

	zone := r.PathPrefix("/compute/v1/projects/{project}/zones/{zone}").Subrouter()
	zone.HandleFunc("/instances/{instance}", h.handleGet).Methods("GET")
	zone.HandleFunc("/instances/{instance}/reset", h.handleReset).Methods("POST")
	zone.HandleFunc("/instances/{instance}/addAccessConfig", h.handleAddAccessConfig).Methods("POST")
	zone.HandleFunc("/instances/{instance}/deleteAccessConfig", h.handleDeleteAccessConfig).Methods("POST")
	zone.HandleFunc("/instances/{instance}/attachDisk", h.handleAttachDisk).Methods("POST")
	zone.HandleFunc("/instances/{instance}/detachDisk", h.handleDetachDisk).Methods("POST")
	zone.HandleFunc("/operations/{operation}", h.handleGetOperation).Methods("GET")

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler()).Methods("GET")
	}

	r.Use(h.loggingMiddleware)
	r.Use(auth.Middleware(h.contexts()))

	return r
}

func (h *Handler) scopes() ScopeResolver {
	if h.Scopes == nil {
		return PathScopeResolver{}
	}
	return h.Scopes
}

func (h *Handler) contexts() auth.Resolver {
	if h.Contexts == nil {
		return auth.HeaderResolver{}
	}
	return h.Contexts
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs incoming requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)
		h.Metrics.ObserveRequest(r.Method, rec.status, duration)
		h.Log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// handleGet handles GET .../instances/{instance}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["instance"]

	instance, err := h.Controller.Get(r.Context(), h.scopes().Resolve(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, instance)
}

// handleReset handles POST .../instances/{instance}/reset
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Controller.ResetInstance)
}

// handleAddAccessConfig handles POST .../instances/{instance}/addAccessConfig
func (h *Handler) handleAddAccessConfig(w http.ResponseWriter, r *http.Request) {
	var body accessConfigBody
	if !h.decodeBody(w, r, &body, false) {
		return
	}

	params := AccessConfigParams{
		NetworkInterface: r.URL.Query().Get("networkInterface"),
		NatIP:            body.NatIP,
		Type:             body.Type,
		Name:             body.Name,
	}
	h.mutate(w, r, func(ctx context.Context, scope gce.Scope, id string) error {
		return h.Controller.AddAccessConfig(ctx, scope, id, params)
	})
}

// handleDeleteAccessConfig handles POST .../instances/{instance}/deleteAccessConfig
func (h *Handler) handleDeleteAccessConfig(w http.ResponseWriter, r *http.Request) {
	accessConfig := r.URL.Query().Get("accessConfig")
	h.mutate(w, r, func(ctx context.Context, scope gce.Scope, id string) error {
		return h.Controller.DeleteAccessConfig(ctx, scope, id, accessConfig)
	})
}

// handleAttachDisk handles POST .../instances/{instance}/attachDisk
func (h *Handler) handleAttachDisk(w http.ResponseWriter, r *http.Request) {
	var body attachedDiskBody
	if !h.decodeBody(w, r, &body, true) {
		return
	}

	params := AttachDiskParams{
		Source:     body.Source,
		DeviceName: body.DeviceName,
	}
	h.mutate(w, r, func(ctx context.Context, scope gce.Scope, id string) error {
		return h.Controller.AttachDisk(ctx, scope, id, params)
	})
}

// handleDetachDisk handles POST .../instances/{instance}/detachDisk
func (h *Handler) handleDetachDisk(w http.ResponseWriter, r *http.Request) {
	deviceName := r.URL.Query().Get("deviceName")
	h.mutate(w, r, func(ctx context.Context, scope gce.Scope, id string) error {
		return h.Controller.DetachDisk(ctx, scope, id, deviceName)
	})
}

// handleGetOperation handles GET .../operations/{operation}
func (h *Handler) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["operation"]

	op, err := h.Operations.Get(r.Context(), h.scopes().Resolve(r), name)
	if errors.Is(err, operations.ErrNotFound) {
		h.writeErrorStatus(w, http.StatusNotFound, fmt.Sprintf("Operation %s could not be found", name))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, op)
}

// mutate runs a controller mutation with operation tracking and responds
// with the completed operation.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, scope gce.Scope, id string) error) {
	ctx, stop := operations.WithTracking(r.Context())
	defer stop()
	id := mux.Vars(r)["instance"]

	err := call(ctx, h.scopes().Resolve(r), id)

	var failure *operations.Failure
	if err != nil {
		failure = failureOf(err)
	}

	op, opErr := h.Operations.Finish(ctx, failure)
	if errors.Is(opErr, operations.ErrNotTracked) {
		h.Log.Error().Err(opErr).Str("instance", id).Msg("Instance operation could not be registered")
		h.writeErrorStatus(w, http.StatusServiceUnavailable, "Operation could not be registered")
		return
	}
	if err != nil {
		h.Log.Warn().Err(err).Str("instance", id).Msg("Instance operation failed")
		h.writeError(w, err)
		return
	}
	if opErr != nil {
		h.Log.Error().Err(opErr).Str("instance", id).Msg("Failed to complete operation")
		w.WriteHeader(http.StatusOK)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, op)
}

// decodeBody reads a JSON body into v and validates it. An empty body is
// accepted unless required is set.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any, required bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && !required {
		err = nil
	}
	if err != nil {
		h.writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}

	if err := validate.Struct(v); err != nil {
		h.writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func failureOf(err error) *operations.Failure {
	status := statusCode(err)
	code := "INTERNAL_ERROR"
	switch {
	case status == http.StatusNotFound:
		code = "RESOURCE_NOT_FOUND"
	case status < http.StatusInternalServerError:
		code = "INVALID_REQUEST"
	}
	return &operations.Failure{Code: code, Message: err.Error(), HTTPStatus: status}
}

// writeError writes err as a GCE error response.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeErrorStatus(w, statusCode(err), err.Error())
}

func (h *Handler) writeErrorStatus(w http.ResponseWriter, status int, message string) {
	h.writeJSONResponse(w, status, gce.ErrorResponse{
		Error: gce.ErrorBody{
			Code:    status,
			Message: message,
			Errors: []gce.ErrorDetail{{
				Domain:  "global",
				Reason:  reason(status),
				Message: message,
			}},
		},
	})
}

// writeJSONResponse writes a JSON response
func (h *Handler) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
