package server

import (
	"net/http"

	"github.com/vannputh/analytics/internal/batch"
	errordefs "github.com/vannputh/analytics/internal/errors"
	"github.com/vannputh/analytics/internal/model"
)

type batchRequest struct {
	IDs   []string          `json:"ids"`
	Patch model.RecordPatch `json:"patch"`
}

type batchData struct {
	batch.Summary
	Message string `json:"message"`
}

// handleBatchMetadata handles POST /v1/batch/metadata
func (m *Mux) handleBatchMetadata(w http.ResponseWriter, r *http.Request) {
	if m.deps.Fetcher == nil || m.deps.Batch == nil {
		m.fail(w, r, errordefs.New(errordefs.TRACKER_UNAVAILABLE, "metadata lookup is not configured", ""))
		return
	}
	var req batchRequest
	if !m.decodeBatch(w, r, &req) {
		return
	}
	sum, err := m.deps.Batch.RefreshMetadata(r.Context(), req.IDs)
	m.writeBatch(w, r, sum, err)
}

// handleBatchUpdate handles POST /v1/batch/update
func (m *Mux) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	if m.deps.Batch == nil {
		m.fail(w, r, errordefs.New(errordefs.TRACKER_UNAVAILABLE, "batch operations are not configured", ""))
		return
	}
	var req batchRequest
	if !m.decodeBatch(w, r, &req) {
		return
	}
	sum, err := m.deps.Batch.ApplyPatch(r.Context(), req.IDs, req.Patch)
	m.writeBatch(w, r, sum, err)
}

func (m *Mux) decodeBatch(w http.ResponseWriter, r *http.Request, req *batchRequest) bool {
	if err := decodeJSON(w, r, req, false); err != nil {
		m.fail(w, r, err)
		return false
	}
	if len(req.IDs) == 0 {
		m.fail(w, r, errordefs.Validation(map[string]string{"ids": "at least one id is required"}))
		return false
	}
	return true
}

// writeBatch reports the summary. Per-item failures are part of a
// successful response; only a batch that could not run is an error.
func (m *Mux) writeBatch(w http.ResponseWriter, r *http.Request, sum batch.Summary, err error) {
	if err != nil && !sum.Cancelled {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, batchData{Summary: sum, Message: sum.Message()})
}
