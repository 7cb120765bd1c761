package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/lukasbauer/voicetransfer/internal/costs"
	"github.com/lukasbauer/voicetransfer/internal/sanitize"
	"github.com/lukasbauer/voicetransfer/internal/tts"
	"github.com/lukasbauer/voicetransfer/internal/voice"
	"github.com/lukasbauer/voicetransfer/internal/workspace"
)

type fakeResolver struct {
	err        error
	downloaded int64
}

func (f *fakeResolver) Mode() voice.Mode { return voice.ModeCID }

func (f *fakeResolver) Resolve(_ context.Context, ws *workspace.Workspace, src voice.Source) (*voice.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	if src.CID == "" {
		return nil, &voice.InputError{Message: "No cid provided"}
	}
	path := ws.Path("voice.wav")
	if err := os.WriteFile(path, []byte("reference"), 0o600); err != nil {
		return nil, err
	}
	return &voice.Sample{Path: path, OriginalFormat: "webm", TranscodedFormat: "wav", DownloadedBytes: f.downloaded}, nil
}

type fakeFetcher struct {
	text  string
	err   error
	calls int
}

func (f *fakeFetcher) FetchText(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeSynth struct {
	audio []byte
	err   error
	got   tts.Job
	panic bool
}

func (f *fakeSynth) Synthesize(_ context.Context, job tts.Job, w io.Writer) (int64, error) {
	if f.panic {
		panic("synth exploded")
	}
	f.got = job
	if f.err != nil {
		return 0, f.err
	}
	n, err := w.Write(f.audio)
	return int64(n), err
}

type harness struct {
	root     string
	resolver *fakeResolver
	fetcher  *fakeFetcher
	synth    *fakeSynth
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		root:     t.TempDir(),
		resolver: &fakeResolver{},
		fetcher:  &fakeFetcher{},
		synth:    &fakeSynth{audio: []byte("ID3-mp3-bytes")},
	}
	h.svc = NewService(Config{
		Resolver:      h.resolver,
		Fetcher:       h.fetcher,
		Synthesizer:   h.synth,
		Policy:        sanitize.DefaultPolicy(),
		WorkspaceRoot: h.root,
		Logger:        log.New(io.Discard, "", 0),
	})
	return h
}

func (h *harness) assertWorkspaceRemoved(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	if err != nil {
		t.Fatalf("read workspace root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace root has %d entries after Run, want 0", len(entries))
	}
}

func TestRunLiteralText(t *testing.T) {
	h := newHarness(t)

	var delivered []byte
	var res *Result
	err := h.svc.Run(context.Background(), Request{
		Text:  "Hello world.",
		Audio: voice.Source{CID: "cid"},
	}, func(r *Result) error {
		res = r
		var rerr error
		delivered, rerr = os.ReadFile(r.Path)
		return rerr
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if string(delivered) != "ID3-mp3-bytes" {
		t.Errorf("delivered = %q, want synthesized audio", delivered)
	}
	if !regexp.MustCompile(`^output_cloned_[0-9a-f]{32}\.mp3$`).MatchString(res.Filename) {
		t.Errorf("Filename = %q, want output_cloned_<hex>.mp3", res.Filename)
	}
	if res.ContentType != "audio/mpeg" {
		t.Errorf("ContentType = %q, want audio/mpeg", res.ContentType)
	}
	if res.Size != int64(len("ID3-mp3-bytes")) {
		t.Errorf("Size = %d, want %d", res.Size, len("ID3-mp3-bytes"))
	}
	if h.synth.got.Text != "Hello world." {
		t.Errorf("synth text = %q, want %q", h.synth.got.Text, "Hello world.")
	}
	if string(h.synth.got.ReferenceAudio) != "reference" {
		t.Errorf("synth reference audio = %q", h.synth.got.ReferenceAudio)
	}
	if h.synth.got.ReferenceText != tts.DefaultReferenceText {
		t.Errorf("synth reference text = %q, want default", h.synth.got.ReferenceText)
	}
	if h.fetcher.calls != 0 {
		t.Error("fetcher should not be called for literal text")
	}
	h.assertWorkspaceRemoved(t)
}

func TestRunURLText(t *testing.T) {
	h := newHarness(t)
	h.fetcher.text = "Fetched __Gutenberg__ text."

	err := h.svc.Run(context.Background(), Request{
		Text:  "https://example.com/book.epub",
		Audio: voice.Source{CID: "cid"},
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want 1", h.fetcher.calls)
	}
	if h.synth.got.Text != "Fetched text." {
		t.Errorf("synth text = %q, want markup stripped", h.synth.got.Text)
	}
	h.assertWorkspaceRemoved(t)
}

func TestRunStreamReceivesAudio(t *testing.T) {
	h := newHarness(t)

	var stream bytes.Buffer
	err := h.svc.Run(context.Background(), Request{
		Text:   "Hi.",
		Audio:  voice.Source{CID: "cid"},
		Stream: &stream,
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stream.String() != "ID3-mp3-bytes" {
		t.Errorf("stream = %q, want synthesized audio", stream.String())
	}
}

func TestRunCostsIncludeGatewayDownload(t *testing.T) {
	oldGateway, oldSynth := costs.GatewayCentsPerGB, costs.FishAudioCentsPerMillionBytes
	costs.GatewayCentsPerGB, costs.FishAudioCentsPerMillionBytes = 10, 1_000_000
	defer func() { costs.GatewayCentsPerGB, costs.FishAudioCentsPerMillionBytes = oldGateway, oldSynth }()

	h := newHarness(t)
	h.resolver.downloaded = 1 << 30

	var res *Result
	err := h.svc.Run(context.Background(), Request{Text: "Hi.", Audio: voice.Source{CID: "cid"}}, func(r *Result) error {
		res = r
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// 1 GiB at 10 cents/GB, 3 bytes at 1 cent/byte
	if res.Costs.GatewayMilliCents != 10_000 {
		t.Errorf("GatewayMilliCents = %d, want 10000", res.Costs.GatewayMilliCents)
	}
	if res.Costs.SynthesisMilliCents != 3_000 {
		t.Errorf("SynthesisMilliCents = %d, want 3000", res.Costs.SynthesisMilliCents)
	}
	if res.Costs.TotalMilliCents != 13_000 {
		t.Errorf("TotalMilliCents = %d, want 13000", res.Costs.TotalMilliCents)
	}
}

func TestRunEmptySanitizedTextStillSynthesizes(t *testing.T) {
	h := newHarness(t)
	long := strings.Repeat("A sentence that is long enough. ", 5)

	if err := h.svc.Run(context.Background(), Request{Text: long, Audio: voice.Source{CID: "cid"}}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.synth.got.Text != "" {
		t.Errorf("synth text = %q, want empty", h.synth.got.Text)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		req       Request
		wantKind  Kind
		wantStage Stage
		wantMsg   string
	}{
		{
			name:      "missing audio",
			req:       Request{Text: "Hello."},
			wantKind:  KindMissingInput,
			wantStage: StageResolvingAudio,
			wantMsg:   "No cid provided",
		},
		{
			name:      "missing text",
			req:       Request{Audio: voice.Source{CID: "cid"}},
			wantKind:  KindMissingInput,
			wantStage: StageResolvingText,
			wantMsg:   MsgMissingText,
		},
		{
			name: "gateway failure",
			setup: func(h *harness) {
				h.resolver.err = &voice.FetchError{URL: "http://gw/ipfs/x", StatusCode: 404}
			},
			req:       Request{Text: "Hello.", Audio: voice.Source{CID: "cid"}},
			wantKind:  KindUpstreamFetchFailed,
			wantStage: StageResolvingAudio,
			wantMsg:   MsgAudioFetchFailed,
		},
		{
			name: "transcode failure",
			setup: func(h *harness) {
				h.resolver.err = &voice.TranscodeError{Input: "voice.webm", Err: errors.New("exit status 1")}
			},
			req:       Request{Text: "Hello.", Audio: voice.Source{CID: "cid"}},
			wantKind:  KindTranscodeFailed,
			wantStage: StageResolvingAudio,
			wantMsg:   MsgTranscodeFailed,
		},
		{
			name: "unexpected resolver failure",
			setup: func(h *harness) {
				h.resolver.err = errors.New("disk full")
			},
			req:       Request{Text: "Hello.", Audio: voice.Source{CID: "cid"}},
			wantKind:  KindInternal,
			wantStage: StageResolvingAudio,
			wantMsg:   MsgInternalError,
		},
		{
			name: "text fetch failure",
			setup: func(h *harness) {
				h.fetcher.err = errors.New("connection refused")
			},
			req:       Request{Text: "https://example.com/a.html", Audio: voice.Source{CID: "cid"}},
			wantKind:  KindUpstreamFetchFailed,
			wantStage: StageResolvingText,
			wantMsg:   MsgTextFetchFailed,
		},
		{
			name: "synthesis failure",
			setup: func(h *harness) {
				h.synth.err = errors.New("Fish Audio API error: 401")
			},
			req:       Request{Text: "Hello.", Audio: voice.Source{CID: "cid"}},
			wantKind:  KindSynthesisFailed,
			wantStage: StageSynthesizing,
			wantMsg:   MsgSynthesisFailed,
		},
		{
			name: "missing credential",
			setup: func(h *harness) {
				h.synth.err = tts.ErrMissingAPIKey
			},
			req:       Request{Text: "Hello.", Audio: voice.Source{CID: "cid"}},
			wantKind:  KindConfiguration,
			wantStage: StageSynthesizing,
			wantMsg:   MsgSynthesisFailed,
		},
		{
			name: "panic during synthesis",
			setup: func(h *harness) {
				h.synth.panic = true
			},
			req:       Request{Text: "Hello.", Audio: voice.Source{CID: "cid"}},
			wantKind:  KindInternal,
			wantStage: StageSynthesizing,
			wantMsg:   MsgInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}

			delivered := false
			err := h.svc.Run(context.Background(), tt.req, func(*Result) error {
				delivered = true
				return nil
			})

			var te *Error
			if !errors.As(err, &te) {
				t.Fatalf("Run() error = %v, want *Error", err)
			}
			if te.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", te.Kind, tt.wantKind)
			}
			if te.Stage != tt.wantStage {
				t.Errorf("Stage = %s, want %s", te.Stage, tt.wantStage)
			}
			if te.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", te.Message, tt.wantMsg)
			}
			if te.RequestID == "" {
				t.Error("RequestID should be set")
			}
			if delivered {
				t.Error("deliver should not be called on failure")
			}
			h.assertWorkspaceRemoved(t)
		})
	}
}

func TestRunDeliverError(t *testing.T) {
	h := newHarness(t)

	err := h.svc.Run(context.Background(), Request{Text: "Hi.", Audio: voice.Source{CID: "cid"}}, func(*Result) error {
		return errors.New("client went away")
	})
	te := AsError(err)
	if te == nil || te.Kind != KindInternal || te.Stage != StageResponding {
		t.Errorf("Run() error = %v, want internal error at responding", err)
	}
	h.assertWorkspaceRemoved(t)
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}

	plain := AsError(errors.New("boom"))
	if plain.Kind != KindInternal || plain.Message != MsgInternalError {
		t.Errorf("AsError(plain) = %+v, want internal error", plain)
	}

	orig := &Error{Kind: KindMissingInput, Message: "x"}
	if AsError(orig) != orig {
		t.Error("AsError should return the same *Error")
	}
}

func TestKindAndStageStrings(t *testing.T) {
	kinds := map[Kind]string{
		KindInternal:            "internal_error",
		KindMissingInput:        "missing_input",
		KindUpstreamFetchFailed: "upstream_fetch_failed",
		KindTranscodeFailed:     "transcode_failed",
		KindConfiguration:       "configuration_error",
		KindSynthesisFailed:     "synthesis_failed",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), k.String(), want)
		}
	}
	if StageSynthesizing.String() != "synthesizing" || Stage(99).String() != "unknown" {
		t.Error("unexpected Stage strings")
	}
}
