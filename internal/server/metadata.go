package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	errordefs "github.com/vannputh/analytics/internal/errors"
	"github.com/vannputh/analytics/internal/merge"
	"github.com/vannputh/analytics/internal/metadata"
	"github.com/vannputh/analytics/internal/model"
)

// metadataRequest is the body of the preview and apply routes. Metadata skips
// the provider lookup when the client already holds fetched values; otherwise
// Query is used, falling back to the record's own title, external id and
// medium. Decisions are the per-field overrides; omit them to merge with the
// fill-if-absent policy.
type metadataRequest struct {
	Query     *metadata.Query       `json:"query,omitempty"`
	Metadata  *model.Metadata       `json:"metadata,omitempty"`
	Decisions []merge.FieldDecision `json:"decisions,omitempty"`
}

// handleLookup handles POST /v1/metadata/lookup. Nothing is stored; the
// result prefills a new record.
func (m *Mux) handleLookup(w http.ResponseWriter, r *http.Request) {
	var q metadata.Query
	if err := decodeJSON(w, r, &q, false); err != nil {
		m.fail(w, r, err)
		return
	}
	md, err := m.fetch(r.Context(), q)
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, md)
}

// handlePreviewMetadata handles POST /v1/records/{id}/metadata/preview
func (m *Mux) handlePreviewMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, md, ok := m.resolveMetadata(w, r, id)
	if !ok {
		return
	}

	preview, err := m.deps.Catalog.PreviewMetadata(r.Context(), id, *md)
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, preview)
}

// handleApplyMetadata handles POST /v1/records/{id}/metadata/apply
func (m *Mux) handleApplyMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, md, ok := m.resolveMetadata(w, r, id)
	if !ok {
		return
	}

	rec, err := m.deps.Catalog.ApplyMetadata(r.Context(), id, *md, req.Decisions)
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, viewOf(*rec))
}

// resolveMetadata decodes a metadataRequest and returns the metadata to merge,
// fetching it when the body does not carry it. On failure the error response
// is already written and ok is false.
func (m *Mux) resolveMetadata(w http.ResponseWriter, r *http.Request, id string) (metadataRequest, *model.Metadata, bool) {
	var req metadataRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		m.fail(w, r, err)
		return req, nil, false
	}
	if req.Metadata != nil {
		return req, req.Metadata, true
	}

	var q metadata.Query
	if req.Query != nil {
		q = *req.Query
	}
	if q.Title == "" && q.ExternalID == "" {
		rec, err := m.deps.Catalog.Get(r.Context(), id)
		if err != nil {
			m.fail(w, r, err)
			return req, nil, false
		}
		q.Title = rec.Title
		q.ExternalID = model.StringValue(rec.IMDbID)
		if q.Medium == "" && rec.Medium != nil {
			q.Medium = *rec.Medium
		}
	}

	md, err := m.fetch(r.Context(), q)
	if err != nil {
		m.fail(w, r, err)
		return req, nil, false
	}
	return req, md, true
}

func (m *Mux) fetch(ctx context.Context, q metadata.Query) (*model.Metadata, error) {
	if m.deps.Fetcher == nil {
		return nil, errordefs.New(errordefs.TRACKER_UNAVAILABLE, "metadata lookup is not configured", "")
	}
	return m.deps.Fetcher.Fetch(ctx, q)
}
