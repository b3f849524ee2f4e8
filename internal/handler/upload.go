package handler

import (
	"net/http"

	"github.com/go-faster/errors"
)

// uploadField is the multipart form field carrying the file.
const uploadField = "file"

// Upload stores a proof-of-payment document of the signed-in customer.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	// Leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize+64<<10)
	f, hdr, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer func() { _ = f.Close() }()

	doc, err := h.uploads.Upload(r.Context(), signedIn(r).ID, hdr.Filename,
		hdr.Header.Get("Content-Type"), f, hdr.Size)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}
