package tts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestNewFishAudioClient_DefaultValues(t *testing.T) {
	client := NewFishAudioClient(FishAudioConfig{APIKey: "test-key"})

	if client.baseURL != "https://api.fish.audio" {
		t.Errorf("baseURL = %q, want %q", client.baseURL, "https://api.fish.audio")
	}
	if client.backend != "s1" {
		t.Errorf("backend = %q, want %q", client.backend, "s1")
	}
	if client.chunkLen != 200 {
		t.Errorf("chunkLen = %d, want %d", client.chunkLen, 200)
	}
	if client.bitrate != 128 {
		t.Errorf("bitrate = %d, want %d", client.bitrate, 128)
	}
}

func TestNewFishAudioClient_CustomValues(t *testing.T) {
	client := NewFishAudioClient(FishAudioConfig{
		APIKey:     "test-key",
		BaseURL:    "http://localhost:9000/",
		Backend:    "speech-1.6",
		ChunkLen:   300,
		MP3Bitrate: 192,
	})

	if client.baseURL != "http://localhost:9000" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
	}
	if client.backend != "speech-1.6" {
		t.Errorf("backend = %q, want %q", client.backend, "speech-1.6")
	}
	if client.chunkLen != 300 {
		t.Errorf("chunkLen = %d, want %d", client.chunkLen, 300)
	}
	if client.bitrate != 192 {
		t.Errorf("bitrate = %d, want %d", client.bitrate, 192)
	}
}

func TestNewFishAudioClient_InvalidBitrateUsesDefault(t *testing.T) {
	client := NewFishAudioClient(FishAudioConfig{MP3Bitrate: 100})
	if client.bitrate != 128 {
		t.Errorf("bitrate = %d, want %d", client.bitrate, 128)
	}
}

func TestSynthesize_MissingAPIKey(t *testing.T) {
	client := NewFishAudioClient(FishAudioConfig{})

	_, err := client.Synthesize(context.Background(), Job{Text: "hi"}, io.Discard)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Synthesize() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestSynthesize_SendsMsgpackAndStreamsAudio(t *testing.T) {
	var got fishTTSRequest
	var headers http.Header
	audio := bytes.Repeat([]byte{0xff, 0xfb}, 5000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tts" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s, want POST /v1/tts", r.Method, r.URL.Path)
		}
		headers = r.Header.Clone()
		if err := msgpack.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode msgpack body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	client := NewFishAudioClient(FishAudioConfig{
		APIKey:     "secret",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})

	var out bytes.Buffer
	n, err := client.Synthesize(context.Background(), Job{
		Text:           "Hello world.",
		ReferenceAudio: []byte("ref-audio"),
	}, &out)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if n != int64(len(audio)) || !bytes.Equal(out.Bytes(), audio) {
		t.Errorf("wrote %d bytes, want %d identical bytes", n, len(audio))
	}
	if headers.Get("Authorization") != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", headers.Get("Authorization"), "Bearer secret")
	}
	if headers.Get("Content-Type") != "application/msgpack" {
		t.Errorf("Content-Type = %q, want application/msgpack", headers.Get("Content-Type"))
	}
	if headers.Get("model") != "s1" {
		t.Errorf("model header = %q, want %q", headers.Get("model"), "s1")
	}
	if got.Text != "Hello world." {
		t.Errorf("text = %q, want %q", got.Text, "Hello world.")
	}
	if got.Format != "mp3" {
		t.Errorf("format = %q, want mp3", got.Format)
	}
	if len(got.References) != 1 {
		t.Fatalf("references = %d, want 1", len(got.References))
	}
	if string(got.References[0].Audio) != "ref-audio" {
		t.Errorf("reference audio = %q, want %q", got.References[0].Audio, "ref-audio")
	}
	if got.References[0].Text != DefaultReferenceText {
		t.Errorf("reference text = %q, want default", got.References[0].Text)
	}
}

func TestSynthesize_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"message":"insufficient balance"}`))
	}))
	defer srv.Close()

	client := NewFishAudioClient(FishAudioConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})

	var out bytes.Buffer
	_, err := client.Synthesize(context.Background(), Job{Text: "x"}, &out)
	if err == nil {
		t.Fatal("Synthesize() expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "402") || !strings.Contains(err.Error(), "insufficient balance") {
		t.Errorf("error = %q, should include status and body", err)
	}
	if out.Len() != 0 {
		t.Errorf("wrote %d bytes on error, want 0", out.Len())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSynthesize_WriteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	client := NewFishAudioClient(FishAudioConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})

	if _, err := client.Synthesize(context.Background(), Job{Text: "x"}, failingWriter{}); err == nil {
		t.Error("Synthesize() expected error when writer fails")
	}
}
