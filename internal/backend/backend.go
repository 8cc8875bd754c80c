package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tuberip/tuberip/internal/model"
)

// SubmitSingleRequest submits a single item download.
type SubmitSingleRequest struct {
	URL       string
	FormatID  string
	SessionID string
}

// SubmitBatchRequest submits one download per URL.
type SubmitBatchRequest struct {
	URLs       []string
	QualityCap model.QualityCap
	SessionID  string
}

// Artifact is the stream of a produced file.
type Artifact struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.ReadCloser
}

// Backend is the remote job executor and media resolver.
type Backend interface {
	// Resolve returns a page of a collection or a single item.
	Resolve(ctx context.Context, req model.ResolveRequest) (*model.ResolveResult, error)
	// SubmitSingle starts a single download and returns the task ID.
	SubmitSingle(ctx context.Context, req SubmitSingleRequest) (string, error)
	// SubmitBatch starts one download per URL and returns the task IDs in the same order.
	SubmitBatch(ctx context.Context, req SubmitBatchRequest) ([]string, error)
	// ProbeFormats returns the maximum available resolution of each URL.
	ProbeFormats(ctx context.Context, urls []string) ([]model.FormatProbe, error)
	// TaskStatus returns the current state of the known tasks.
	TaskStatus(ctx context.Context, taskIDs []string) (map[string]model.TaskUpdate, error)
	// RetrieveArtifact opens the produced file of a finished task.
	RetrieveArtifact(ctx context.Context, filename string) (*Artifact, error)
}

//go:generate mockery --case underscore --output backendmock --outpkg backendmock --name Backend

// ErrNotSupported is returned when the backend doesn't implement an operation.
var ErrNotSupported = errors.New("operation not supported by backend")

// TransportError is a network or HTTP level failure.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is an error reported by the backend about the request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
