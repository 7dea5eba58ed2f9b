package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/gpubox/pkg/types"
)

const maxBodyBytes = 1 << 20

// ApiResponse is the envelope of every API answer
type ApiResponse struct {
	Status  string `json:"status"` // success | fail
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func decodeRequestBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return types.Validationf("request body is required")
		}
		return fmt.Errorf("%w: invalid json: %v", types.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func respondSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, ApiResponse{
		Status:  "success",
		Code:    types.Code(nil),
		Message: message,
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ApiResponse{
		Status:  "fail",
		Code:    types.Code(err),
		Message: err.Error(),
		Data:    errorDetail(err),
	})
}
