package backend

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxUploadBytes = 20 << 20

// uploadRoutes stores media attachments under dir. The returned URL is
// what a client puts in a message's attachment field.
func uploadRoutes(dir string, log *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Expects multipart/form-data with the file in field "file".
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "failed to parse multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "missing file")
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext == "" {
			writeErrorMessage(w, http.StatusBadRequest, "file must have an extension")
			return
		}

		filename := uuid.NewString() + ext
		out, err := os.Create(filepath.Join(dir, filename))
		if err != nil {
			log.Error("create upload", "error", err)
			writeErrorMessage(w, http.StatusInternalServerError, "could not store file")
			return
		}
		defer out.Close()

		if _, err := io.Copy(out, file); err != nil {
			log.Error("write upload", "error", err)
			writeErrorMessage(w, http.StatusInternalServerError, "could not store file")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"url":        "/api/uploads/" + filename,
			"media_type": mime.TypeByExtension(ext),
			"filename":   filename,
		})
	})

	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		// Only bare names: no separators, no traversal.
		if filename == "" || filepath.Base(filename) != filename || strings.HasPrefix(filename, ".") {
			writeErrorMessage(w, http.StatusBadRequest, "invalid filename")
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, filename))
	})

	return r
}
