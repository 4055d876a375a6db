package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vannputh/analytics/internal/analytics"
	"github.com/vannputh/analytics/internal/catalog"
	"github.com/vannputh/analytics/internal/filter"
	"github.com/vannputh/analytics/internal/model"
	"github.com/vannputh/analytics/internal/normalize"
)

// recordView is a record plus the values derived for display.
type recordView struct {
	model.Record
	TimeTaken       *string `json:"time_taken,omitempty"`
	LanguageDisplay string  `json:"language_display"`
}

func viewOf(r model.Record) recordView {
	v := recordView{Record: r, LanguageDisplay: normalize.DisplayLanguages(r.Language)}
	if t, ok := analytics.TimeTaken(model.StringValue(r.StartDate), model.StringValue(r.FinishDate)); ok {
		v.TimeTaken = &t
	}
	return v
}

type listRecordsData struct {
	Records []recordView `json:"records"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// handleListRecords handles GET /v1/records. The filter is read from the
// query string; limit and offset page through the matches.
func (m *Mux) handleListRecords(w http.ResponseWriter, r *http.Request) {
	f, err := filter.ParseQuery(r.URL.Query())
	if err != nil {
		m.fail(w, r, err)
		return
	}

	limit := DefaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil {
			if v > 0 && v <= MaxListLimit {
				limit = v
			} else if v > MaxListLimit {
				limit = MaxListLimit
			}
		}
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if v, err := strconv.Atoi(offsetStr); err == nil && v > 0 {
			offset = v
		}
	}

	records, err := m.deps.Catalog.List(r.Context(), f)
	if err != nil {
		m.fail(w, r, err)
		return
	}

	data := listRecordsData{Records: []recordView{}, Total: len(records), Limit: limit, Offset: offset}
	if offset < len(records) {
		end := min(offset+limit, len(records))
		for _, rec := range records[offset:end] {
			data.Records = append(data.Records, viewOf(rec))
		}
	}
	m.writeSuccess(w, http.StatusOK, data)
}

// handleCreateRecord handles POST /v1/records
func (m *Mux) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in catalog.RecordInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		m.fail(w, r, err)
		return
	}
	rec, err := m.deps.Catalog.Create(r.Context(), in)
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusCreated, viewOf(*rec))
}

// handleGetRecord handles GET /v1/records/{id}
func (m *Mux) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := m.deps.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, viewOf(*rec))
}

// handleUpdateRecord handles PATCH /v1/records/{id}
func (m *Mux) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var patch model.RecordPatch
	if err := decodeJSON(w, r, &patch, false); err != nil {
		m.fail(w, r, err)
		return
	}
	rec, err := m.deps.Catalog.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, viewOf(*rec))
}

// handleDeleteRecord handles DELETE /v1/records/{id}
func (m *Mux) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := m.deps.Catalog.Delete(r.Context(), id); err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, map[string]string{"id": id})
}

// handleHistory handles GET /v1/records/{id}/history
func (m *Mux) handleHistory(w http.ResponseWriter, r *http.Request) {
	changes, err := m.deps.Catalog.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, changes)
}

// handleFilterOptions handles GET /v1/filter-options
func (m *Mux) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := m.deps.Catalog.FilterOptions(r.Context())
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, opts)
}

// handleSummary handles GET /v1/analytics/summary
func (m *Mux) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := filter.ParseQuery(r.URL.Query())
	if err != nil {
		m.fail(w, r, err)
		return
	}
	sum, err := m.deps.Catalog.Summary(r.Context(), f)
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, sum)
}

// handleGetPreferences handles GET /v1/preferences
func (m *Mux) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := m.deps.Catalog.Preferences(r.Context(), userFrom(r.Context()))
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, prefs)
}

// handlePutPreferences handles PUT /v1/preferences. The user id always comes
// from the token, never from the body.
func (m *Mux) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs model.Preferences
	if err := decodeJSON(w, r, &prefs, false); err != nil {
		m.fail(w, r, err)
		return
	}
	prefs.UserID = userFrom(r.Context())
	saved, err := m.deps.Catalog.SavePreferences(r.Context(), prefs)
	if err != nil {
		m.fail(w, r, err)
		return
	}
	m.writeSuccess(w, http.StatusOK, saved)
}
