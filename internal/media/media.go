// Package media turns uploaded image bytes into references that can be
// stored on an entry and embedded in a merged document.
package media

import (
	"context"
	"net/http"
	"path"
	"strings"
)

// Uploader stores one image and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// extension picks a file extension from the original name, falling back to
// the sniffed content type.
func extension(name string, data []byte) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
