package voice

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lukasbauer/voicetransfer/internal/workspace"
)

// UploadResolver stores the caller's file unmodified.
type UploadResolver struct {
	maxBytes int64
}

// NewUploadResolver creates an UploadResolver. maxBytes <= 0 disables the limit.
func NewUploadResolver(maxBytes int64) *UploadResolver {
	return &UploadResolver{maxBytes: maxBytes}
}

func (r *UploadResolver) Mode() Mode { return ModeUpload }

func (r *UploadResolver) Resolve(_ context.Context, ws *workspace.Workspace, src Source) (*Sample, error) {
	if src.Upload == nil || src.Upload.Body == nil {
		return nil, &InputError{Message: "No voice file part"}
	}
	if src.Upload.Filename == "" {
		return nil, &InputError{Message: "No selected file"}
	}

	path := ws.Path(src.Upload.Filename)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	body := src.Upload.Body
	if r.maxBytes > 0 {
		body = io.LimitReader(body, r.maxBytes+1)
	}
	n, err := io.Copy(f, body)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if r.maxBytes > 0 && n > r.maxBytes {
		return nil, &InputError{Message: "Voice file too large"}
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return &Sample{Path: path, OriginalFormat: format, TranscodedFormat: format}, nil
}
