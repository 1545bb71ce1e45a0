package handlers

import (
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// GetAudioFile handles GET /getaudiofile/{uuid}/{filename}. The file is sent
// as an attachment; range and conditional requests are honored.
func (h *Handler) GetAudioFile(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "uuid")
	filename := pathParam(r, "filename")

	audio, err := h.fetcher.Fetch(r.Context(), id, filename)
	if err != nil {
		writeError(w, h.logger, "GetAudioFile", err)
		return
	}
	defer audio.Body.Close()

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": audio.Name}))
	h.logger.Debug("serving audio", "id", id, "file", audio.Name, "size", audio.Size)
	http.ServeContent(w, r, audio.Name, audio.ModTime, audio.Body)
}

// pathParam returns the decoded chi URL parameter. chi matches on the raw
// path when the request carries escapes, leaving them in the value.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}
