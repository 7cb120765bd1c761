package tts

import (
	"context"
	"io"
)

// DefaultReferenceText is sent alongside reference audio when the caller
// does not know what the sample says.
const DefaultReferenceText = "This is a reference audio for voice cloning."

// Job is a single voice-cloning synthesis request.
type Job struct {
	Text           string
	ReferenceAudio []byte
	ReferenceText  string
}

// Client defines the interface for voice-cloning text-to-speech providers.
type Client interface {
	// Synthesize renders job and writes the audio to w as it arrives.
	// It returns the number of bytes written.
	Synthesize(ctx context.Context, job Job, w io.Writer) (int64, error)
}
