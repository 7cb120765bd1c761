// Package voice resolves the reference voice sample of a request into a
// file inside the request workspace.
package voice

import (
	"context"
	"fmt"
	"io"

	"github.com/lukasbauer/voicetransfer/internal/workspace"
)

// Mode selects how reference audio reaches the service.
type Mode string

const (
	// ModeUpload reads the sample from the multipart field voice_file.
	ModeUpload Mode = "upload"
	// ModeCID downloads the sample from an IPFS gateway by content identifier.
	ModeCID Mode = "cid"
)

// ParseMode parses a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUpload, ModeCID:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown voice source %q (want %q or %q)", s, ModeUpload, ModeCID)
}

// Upload is a file posted by the caller.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Source carries every audio field a request may provide. Which one is read
// depends on the resolver.
type Source struct {
	CID    string
	Upload *Upload
}

// Sample is a reference sample ready to be sent to the synthesis backend.
type Sample struct {
	Path             string
	OriginalFormat   string
	TranscodedFormat string

	// DownloadedBytes is how much was fetched over the network; 0 for uploads.
	DownloadedBytes int64
}

// Resolver turns a Source into a Sample stored in ws.
type Resolver interface {
	Mode() Mode
	Resolve(ctx context.Context, ws *workspace.Workspace, src Source) (*Sample, error)
}

// InputError reports a missing or malformed audio field.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// FetchError reports a failed gateway download.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TranscodeError reports that the downloaded container could not be decoded.
type TranscodeError struct {
	Input  string
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transcode %s: %v: %s", e.Input, e.Err, e.Stderr)
	}
	return fmt.Sprintf("transcode %s: %v", e.Input, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }
