package syncserver

import (
	"encoding/json"
	"net/http"

	"github.com/rcliao/hydrosync/internal/model"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Status: statusError, Message: msg})
}

// writeSuccess sends the success envelope: status, isMetric and the
// endpoint fields.
func writeSuccess(w http.ResponseWriter, unit model.UnitSystem, fields map[string]any) {
	body := map[string]any{
		"status":   statusSuccess,
		"isMetric": unit.IsMetric(),
	}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}
