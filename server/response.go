package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/pulse/schedule"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error    string                `json:"error"`
	Problems []schedule.FieldError `json:"problems,omitempty"`
	Details  []string              `json:"details,omitempty"`
	Hints    []string              `json:"hints,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, ErrorResponse{Error: message})
}

// writeWrappedError maps err to a status code, logs server-side failures
// and writes the error with its details, hints and validation problems.
func writeWrappedError(w http.ResponseWriter, log *zap.SugaredLogger, err error, context string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Errorw(context, "error", err)
	} else {
		log.Debugw(context, "error", err, "status", status)
	}

	resp := ErrorResponse{
		Error:   err.Error(),
		Details: errors.GetAllDetails(err),
		Hints:   errors.GetAllHints(err),
	}
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		resp.Problems = verr.Problems
	}
	_ = writeJSON(w, status, resp)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsAny(err, errors.ErrConflict, errors.ErrTerminalState):
		return http.StatusConflict
	case errors.IsAny(err, errors.ErrTransport, errors.ErrWarehouse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readJSON decodes a JSON request body, writing a 400 on failure. An empty
// body leaves v untouched.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewInvalidRequestError("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}
