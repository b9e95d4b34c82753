package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FileUploader is satisfied by *github.Client.
type FileUploader interface {
	UploadFile(ctx context.Context, path string, content []byte, message string) (string, error)
}

// Repository stores images as files in the site repository under
// Dir/YYYY/MM/DD/ and returns a site-root-relative path, which keeps the
// reference valid wherever the generated article ends up.
type Repository struct {
	Files    FileUploader
	Dir      string
	Location *time.Location
	Now      func() time.Time
}

func (r *Repository) Upload(ctx context.Context, name string, data []byte) (string, error) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	if r.Location != nil {
		now = now.In(r.Location)
	}
	dir := r.Dir
	if dir == "" {
		dir = "content/images"
	}

	id := uuid.NewString()[:8]
	filename := fmt.Sprintf("photo_%s_%s%s", now.Format("150405"), id, extension(name, data))
	p := fmt.Sprintf("%s/%s/%s", dir, now.Format("2006/01/02"), filename)

	if _, err := r.Files.UploadFile(ctx, p, data, "Add image "+filename); err != nil {
		return "", err
	}
	return "/" + p, nil
}
