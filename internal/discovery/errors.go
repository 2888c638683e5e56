package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var (
	// ErrNoRegions aborts a scan; there is nothing to iterate over.
	ErrNoRegions = errors.New("no regions to scan")

	// ErrClientConstruction marks failures to build a provider client,
	// including credential acquisition.
	ErrClientConstruction = errors.New("client construction failed")

	// ErrListing marks a failed primary listing.
	ErrListing = errors.New("primary listing failed")

	// ErrEmit marks an envelope the sink refused.
	ErrEmit = errors.New("emit failed")
)

// ErrorKind buckets a unit failure for logs, metrics and reports.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindClientConstruction ErrorKind = "client_construction"
	KindService            ErrorKind = "service"
	KindClient             ErrorKind = "client"
	KindFault              ErrorKind = "fault"
	KindEmit               ErrorKind = "emit"
	KindCancelled          ErrorKind = "cancelled"
	KindUnknown            ErrorKind = "unknown"
)

// PanicError wraps a value recovered from a module or sub-lookup.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Classify maps err onto the failure taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		panicErr    *PanicError
		apiErr      smithy.APIError
		sendErr     *smithyhttp.RequestSendError
		cancelErr   *aws.RequestCanceledError
		responseErr *smithyhttp.ResponseError
	)

	switch {
	case errors.As(err, &panicErr):
		return KindFault
	case errors.Is(err, ErrClientConstruction):
		return KindClientConstruction
	case errors.Is(err, ErrEmit):
		return KindEmit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.As(err, &cancelErr):
		return KindCancelled
	case errors.As(err, &apiErr):
		return KindService
	case errors.As(err, &sendErr), errors.As(err, &responseErr):
		return KindClient
	default:
		return KindUnknown
	}
}

// ErrorCode returns the provider error code carried by err, if any.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
