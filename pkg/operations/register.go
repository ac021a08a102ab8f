package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appkins-org/gceapi/pkg/auth"
	"github.com/appkins-org/gceapi/pkg/gce"
	"github.com/appkins-org/gceapi/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/compute/v1"
)

// ErrNotTracked is returned by Finish when no operation was registered on
// the context.
var ErrNotTracked = errors.New("no operation registered for request")

type trackerKey struct{}

type tracker struct {
	record *Record
	cancel context.CancelCauseFunc
}

// WithTracking returns a context on which Init records the registered
// operation so that Finish can complete it. If Init cannot store the
// operation it cancels the context with a cause wrapping ErrNotTracked, so
// that no mutation runs unrecorded. Callers must call the returned stop
// function once the request is done.
func WithTracking(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	ctx = context.WithValue(ctx, trackerKey{}, &tracker{cancel: cancel})
	return ctx, func() { cancel(nil) }
}

func trackerFrom(ctx context.Context) *tracker {
	t, _ := ctx.Value(trackerKey{}).(*tracker)
	return t
}

// Register records asynchronous operations in a Store.
type Register struct {
	store     *Store
	qualifier gce.Qualifier
	metrics   *telemetry.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// NewRegister creates a Register writing to store.
func NewRegister(store *Store, qualifier gce.Qualifier, metrics *telemetry.Metrics, log zerolog.Logger) *Register {
	return &Register{
		store:     store,
		qualifier: qualifier,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// Init records that an operation of operationType against the resource id of
// type typeName has started. The record is written before Init returns.
// Failures are logged and cancel a tracking context.
func (r *Register) Init(ctx context.Context, operationType, typeName, id string, scope gce.Scope) {
	now := r.now().Format(gce.TimestampLayout)
	rec := &Record{
		Name:          "operation-" + uuid.NewString(),
		OperationType: operationType,
		TargetLink:    r.qualifier.Qualify(typeName, id, scope),
		TargetID:      id,
		Scope:         scope,
		Status:        StatusRunning,
		InsertTime:    now,
		StartTime:     now,
	}
	if rc, ok := auth.FromContext(ctx); ok {
		rec.User = rc.UserID
	}

	if err := r.store.Create(ctx, rec); err != nil {
		r.log.Error().Err(err).
			Str("operation_type", operationType).
			Str("target", rec.TargetLink).
			Msg("Failed to register operation")
		if t := trackerFrom(ctx); t != nil {
			t.cancel(fmt.Errorf("%w: %v", ErrNotTracked, err))
		}
		return
	}
	r.metrics.OperationStarted(operationType)

	if t := trackerFrom(ctx); t != nil {
		t.record = rec
	}

	r.log.Debug().
		Str("operation", rec.Name).
		Str("operation_type", operationType).
		Str("target", rec.TargetLink).
		Msg("Operation registered")
}

// Finish completes the operation registered on ctx and returns it in the
// GCE wire format.
func (r *Register) Finish(ctx context.Context, failure *Failure) (*compute.Operation, error) {
	t := trackerFrom(ctx)
	if t == nil || t.record == nil {
		return nil, ErrNotTracked
	}
	rec := t.record

	// The record is completed even if the caller has gone away.
	endTime := r.now().Format(gce.TimestampLayout)
	if err := r.store.Complete(context.WithoutCancel(ctx), rec.Name, endTime, failure); err != nil {
		return nil, err
	}

	rec.Status = StatusDone
	rec.Progress = 100
	rec.EndTime = endTime
	rec.Failure = failure

	result := "done"
	if failure != nil {
		result = strings.ToLower(failure.Code)
	}
	r.metrics.OperationCompleted(rec.OperationType, result)

	return rec.Operation(r.qualifier), nil
}

// Get returns the operation name in scope.
func (r *Register) Get(ctx context.Context, scope gce.Scope, name string) (*compute.Operation, error) {
	rec, err := r.store.Get(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	return rec.Operation(r.qualifier), nil
}
