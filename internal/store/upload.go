package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dmorgan81/hfimage/internal/log"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// FileUploader writes artifacts byte for byte into Dir.
type FileUploader struct {
	Dir string
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	path := filepath.Join(u.Dir, filepath.Base(params.Name))
	log := log.FromContextOrDiscard(ctx).WithGroup("file")
	log.Info("writing", "file", path, "bytes", len(params.Data))
	return os.WriteFile(path, params.Data, 0600)
}
