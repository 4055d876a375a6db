package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	errordefs "github.com/vannputh/analytics/internal/errors"
	"github.com/vannputh/analytics/internal/media"
)

// multipartOverhead is allowed on top of the cover size for form boundaries
// and the other fields.
const multipartOverhead = 64 << 10

type coverData struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// handleUploadCover handles POST /v1/covers. The multipart form carries the
// image in "file" and an optional "name" used to build a readable key.
// The content type is sniffed from the bytes, not taken from the client.
func (m *Mux) handleUploadCover(w http.ResponseWriter, r *http.Request) {
	if m.deps.Uploader == nil {
		m.fail(w, r, errordefs.New(errordefs.TRACKER_UNAVAILABLE, "cover upload is not configured", ""))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, m.deps.MaxCoverSize+multipartOverhead)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxed *http.MaxBytesError
		if errors.As(err, &maxed) {
			m.fail(w, r, m.tooLarge())
			return
		}
		m.fail(w, r, errordefs.New(errordefs.TRACKER_BAD_REQUEST, "expected a multipart form", ""))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		m.fail(w, r, errordefs.Validation(map[string]string{"file": "an image file is required"}))
		return
	}
	defer file.Close()

	if header.Size > m.deps.MaxCoverSize {
		m.fail(w, r, m.tooLarge())
		return
	}
	if header.Size == 0 {
		m.fail(w, r, errordefs.Validation(map[string]string{"file": "file is empty"}))
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		m.fail(w, r, errordefs.New(errordefs.TRACKER_BAD_REQUEST, "failed to read file", ""))
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !media.Allowed(contentType, m.deps.AllowedImageTypes) {
		m.fail(w, r, errordefs.New(errordefs.TRACKER_MEDIA_TYPE,
			fmt.Sprintf("media type %s is not allowed", contentType), ""))
		return
	}

	hint := strings.TrimSpace(r.FormValue("name"))
	if hint == "" {
		hint = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	key := media.CoverKey(hint, contentType)

	url, err := m.deps.Uploader.Upload(r.Context(), key, io.MultiReader(bytes.NewReader(head), file), header.Size, contentType)
	if err != nil {
		m.fail(w, r, errordefs.New(errordefs.TRACKER_PERSISTENCE, err.Error(), ""))
		return
	}
	m.logger.Info("cover uploaded", "key", key, "size", header.Size)
	m.writeSuccess(w, http.StatusCreated, coverData{URL: url, Key: key, ContentType: contentType, Size: header.Size})
}

func (m *Mux) tooLarge() *errordefs.Error {
	return errordefs.New(errordefs.TRACKER_MEDIA_SIZE,
		fmt.Sprintf("media size exceeds limit of %d bytes", m.deps.MaxCoverSize), "")
}
