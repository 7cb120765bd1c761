package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Transcoder converts an audio file from one container to another.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
}

// FFmpegTranscoder shells out to ffmpeg and produces 16-bit mono WAV at
// 44.1kHz, a format the synthesis backend accepts as a reference.
type FFmpegTranscoder struct {
	binary  string
	timeout time.Duration
}

// NewFFmpegTranscoder creates a transcoder using binary, or "ffmpeg" from
// PATH when binary is empty.
func NewFFmpegTranscoder(binary string, timeout time.Duration) *FFmpegTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FFmpegTranscoder{binary: binary, timeout: timeout}
}

// maxStderr bounds the ffmpeg output kept for error messages.
const maxStderr = 2048

func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "1",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdin = strings.NewReader("")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("ffmpeg timed out after %s: %w", t.timeout, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		return &TranscodeError{Input: inputPath, Stderr: msg, Err: err}
	}
	return nil
}
