package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const defaultFishAudioBaseURL = "https://api.fish.audio"

// ErrMissingAPIKey is returned when no Fish Audio credential is configured.
var ErrMissingAPIKey = errors.New("FISH_AUDIO_API_KEY environment variable not set")

// FishAudioClient implements the Client interface using Fish Audio's TTS API.
type FishAudioClient struct {
	apiKey     string
	baseURL    string
	backend    string
	chunkLen   int
	bitrate    int
	httpClient *http.Client
}

// FishAudioConfig holds configuration for the Fish Audio client.
type FishAudioConfig struct {
	APIKey     string
	BaseURL    string // defaults to https://api.fish.audio
	Backend    string // model header, e.g. "s1"
	ChunkLen   int    // characters per synthesis chunk
	MP3Bitrate int    // 64, 128 or 192
	HTTPClient *http.Client
}

// NewFishAudioClient creates a new Fish Audio client.
func NewFishAudioClient(cfg FishAudioConfig) *FishAudioClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultFishAudioBaseURL
	}
	backend := cfg.Backend
	if backend == "" {
		backend = "s1"
	}
	chunkLen := cfg.ChunkLen
	if chunkLen <= 0 {
		chunkLen = 200
	}
	bitrate := cfg.MP3Bitrate
	if bitrate != 64 && bitrate != 128 && bitrate != 192 {
		bitrate = 128
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &FishAudioClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		backend:    backend,
		chunkLen:   chunkLen,
		bitrate:    bitrate,
		httpClient: httpClient,
	}
}

// fishTTSRequest is the msgpack body of POST /v1/tts.
type fishTTSRequest struct {
	Text        string               `msgpack:"text"`
	ChunkLength int                  `msgpack:"chunk_length"`
	Format      string               `msgpack:"format"`
	MP3Bitrate  int                  `msgpack:"mp3_bitrate"`
	References  []fishReferenceAudio `msgpack:"references"`
	ReferenceID *string              `msgpack:"reference_id"`
	Normalize   bool                 `msgpack:"normalize"`
	Latency     string               `msgpack:"latency"`
}

type fishReferenceAudio struct {
	Audio []byte `msgpack:"audio"`
	Text  string `msgpack:"text"`
}

// Synthesize sends the job to Fish Audio and streams the MP3 response to w.
func (c *FishAudioClient) Synthesize(ctx context.Context, job Job, w io.Writer) (int64, error) {
	if c.apiKey == "" {
		return 0, ErrMissingAPIKey
	}

	refText := job.ReferenceText
	if refText == "" {
		refText = DefaultReferenceText
	}

	req := fishTTSRequest{
		Text:        job.Text,
		ChunkLength: c.chunkLen,
		Format:      "mp3",
		MP3Bitrate:  c.bitrate,
		References: []fishReferenceAudio{{
			Audio: job.ReferenceAudio,
			Text:  refText,
		}},
		Normalize: true,
		Latency:   "normal",
	}

	body, err := msgpack.Marshal(&req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tts", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/msgpack")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("model", c.backend)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("Fish Audio API error: %s - %s", resp.Status, string(respBody))
	}

	// Copy in small chunks so streaming consumers see audio as it arrives.
	buf := make([]byte, 4096)
	var written int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, fmt.Errorf("failed to write audio: %w", werr)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("failed to read audio stream: %w", rerr)
		}
	}
}
