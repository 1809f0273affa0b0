package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/Tutortoise/rice-leaf-service/models"
)

var errNotImage = errors.New("please upload an image file")

// readImage extracts the image bytes from a multipart upload (field "file"), a JSON
// body {"image": "<base64>"} or a raw body. At most maxBytes are read.
func readImage(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var data []byte
	var err error
	switch mediaType {
	case "application/json":
		data, err = handleJSONRequest(r)
	case "multipart/form-data":
		data, err = handleMultipartRequest(r, maxBytes)
	default:
		data, err = handleRawRequest(r)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, models.Input(fmt.Sprintf("image exceeds %d bytes", maxBytes), err)
		}
		return nil, models.Input("invalid request body", err)
	}
	if len(data) == 0 {
		return nil, models.Input("empty file uploaded", models.ErrEmptyImage)
	}
	return data, nil
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if i := strings.Index(req.Image, ";base64,"); strings.HasPrefix(req.Image, "data:") && i >= 0 {
		req.Image = req.Image[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleMultipartRequest(r *http.Request, maxBytes int64) ([]byte, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		return nil, errNotImage
	}
	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}
