package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	errordefs "github.com/vannputh/analytics/internal/errors"
	"github.com/vannputh/analytics/internal/telemetry"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

// writeErrorDef writes an error response stamped with the request's
// correlation id.
func (m *Mux) writeErrorDef(w http.ResponseWriter, r *http.Request, err *errordefs.Error) {
	err = err.WithCorrelationID(telemetry.CorrelationID(r.Context()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": err})
}

// fail maps err onto the error taxonomy and writes it. Server-side failures
// are logged with the underlying error.
func (m *Mux) fail(w http.ResponseWriter, r *http.Request, err error) {
	def := toErrorDef(err)
	if def.HTTPStatus >= http.StatusInternalServerError {
		m.logger.Error("request failed", "path", r.URL.Path, "code", def.Code, "error", err,
			"correlation_id", telemetry.CorrelationID(r.Context()))
	}
	m.writeErrorDef(w, r, def)
}

// decodeJSON reads a JSON body into dst. An empty body is an error unless
// optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return errordefs.New(errordefs.TRACKER_BAD_REQUEST, "request body is required", "")
		}
		var maxed *http.MaxBytesError
		if errors.As(err, &maxed) {
			return err
		}
		return errordefs.New(errordefs.TRACKER_BAD_REQUEST, "invalid JSON", "")
	}
	return nil
}
