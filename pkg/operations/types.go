package operations

import (
	"net/http"

	"github.com/appkins-org/gceapi/pkg/gce"
	"google.golang.org/api/compute/v1"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
)

// Record is a stored operation.
type Record struct {
	Name          string
	OperationType string
	TargetLink    string
	TargetID      string
	Scope         gce.Scope
	Status        Status
	Progress      int
	User          string
	InsertTime    string
	StartTime     string
	EndTime       string
	Failure       *Failure
}

// Failure describes why an operation finished with an error.
type Failure struct {
	Code       string
	Message    string
	HTTPStatus int
}

// Operation renders the record in the GCE wire format.
func (r *Record) Operation(q gce.Qualifier) *compute.Operation {
	op := &compute.Operation{
		Kind:          gce.KindOperation,
		Name:          r.Name,
		OperationType: r.OperationType,
		TargetLink:    r.TargetLink,
		Status:        string(r.Status),
		Progress:      int64(r.Progress),
		User:          r.User,
		InsertTime:    r.InsertTime,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		SelfLink:      q.Qualify("operations", r.Name, r.Scope),
	}
	if !r.Scope.IsGlobal() {
		op.Zone = q.ScopeLink(r.Scope)
	}

	if r.Failure != nil {
		op.Error = &compute.OperationError{
			Errors: []*compute.OperationErrorErrors{{
				Code:    r.Failure.Code,
				Message: r.Failure.Message,
			}},
		}
		if r.Failure.HTTPStatus != 0 {
			op.HttpErrorStatusCode = int64(r.Failure.HTTPStatus)
			op.HttpErrorMessage = http.StatusText(r.Failure.HTTPStatus)
		}
	}

	return op
}
