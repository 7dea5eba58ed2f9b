package api

import (
	"errors"
	"net/http"

	"github.com/cuemby/gpubox/pkg/types"
)

// statusFor maps an error kind to its HTTP status. A partial failure is
// checked first because it wraps the cause of its failed half.
func statusFor(err error) int {
	var pf *types.PartialFailureError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &pf):
		return http.StatusInternalServerError
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrResourceExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrEngine):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// partialFailureDetail is returned as data for a partial failure so the
// caller can tell which half completed
type partialFailureDetail struct {
	Container string `json:"container"`
	Op        string `json:"op"`
	Succeeded string `json:"succeeded"`
	Failed    string `json:"failed"`
}

func errorDetail(err error) any {
	var pf *types.PartialFailureError
	if errors.As(err, &pf) {
		return partialFailureDetail{
			Container: pf.Container,
			Op:        pf.Op,
			Succeeded: pf.Succeeded,
			Failed:    pf.Failed,
		}
	}
	return nil
}
