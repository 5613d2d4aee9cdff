package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

const filesField = "files"

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart reads a multipart form capped at maxBytes and returns the
// files posted under "files".
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]models.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, models.NewValidationError("invalid upload", models.FieldError{Field: filesField, Error: err.Error()})
	}

	headers := r.MultipartForm.File[filesField]
	uploads := make([]models.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %q: %w", fh.Filename, err)
		}
		uploads = append(uploads, models.Upload{Filename: fh.Filename, Content: content})
	}
	return uploads, nil
}
