package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"carousel/internal/processor"
)

// Submitter queues accepted requests for background processing.
type Submitter interface {
	Submit(req processor.Request) bool
}

// Functions serves the worker endpoints.
type Functions struct {
	Runner Submitter
	Logger zerolog.Logger
}

// GenerateImages accepts a job and processes it in the background. The
// caller learns about progress only through the job store.
func (f *Functions) GenerateImages(w http.ResponseWriter, r *http.Request) {
	var req processor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.JobID) == "" || req.NumVariants <= 0 {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "jobId and numVariants are required")
		return
	}
	if !req.DataType.Valid() {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "dataType must be csv, script or instructions")
		return
	}
	if !f.Runner.Submit(req) {
		writeJSONError(w, http.StatusServiceUnavailable, "shutting_down", "worker is shutting down")
		return
	}
	f.Logger.Info().Str("job_id", req.JobID).Int("variants", req.NumVariants).Msg("functions: job accepted")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"job_id": req.JobID, "status": "accepted"})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
