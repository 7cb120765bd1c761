// Package transfer runs a voice transfer request end to end: resolve the
// reference sample and the text, sanitize, synthesize, deliver, clean up.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lukasbauer/voicetransfer/internal/costs"
	"github.com/lukasbauer/voicetransfer/internal/eventlog"
	"github.com/lukasbauer/voicetransfer/internal/sanitize"
	"github.com/lukasbauer/voicetransfer/internal/textsource"
	"github.com/lukasbauer/voicetransfer/internal/tts"
	"github.com/lukasbauer/voicetransfer/internal/voice"
	"github.com/lukasbauer/voicetransfer/internal/workspace"
)

// ContentType is the media type of every synthesized result.
const ContentType = "audio/mpeg"

// TextFetcher downloads a document and returns its plain text.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Request is one voice transfer.
type Request struct {
	Text  string
	Audio voice.Source

	// Stream, if set, receives synthesized audio as it arrives in addition to
	// the output file.
	Stream io.Writer
}

// Result describes the synthesized file. Path is only valid inside the
// deliver callback passed to Run.
type Result struct {
	RequestID   string
	Filename    string
	Path        string
	Size        int64
	ContentType string
	Costs       costs.TransferCosts
}

// Config holds the collaborators of a Service.
type Config struct {
	Resolver      voice.Resolver
	Fetcher       TextFetcher
	Synthesizer   tts.Client
	Policy        sanitize.Policy
	ReferenceText string
	WorkspaceRoot string
	EventLog      *eventlog.Logger
	Logger        *log.Logger
}

// Service runs transfers. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	resolver      voice.Resolver
	fetcher       TextFetcher
	synth         tts.Client
	policy        sanitize.Policy
	referenceText string
	workspaceRoot string
	events        *eventlog.Logger
	logger        *log.Logger
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	refText := cfg.ReferenceText
	if refText == "" {
		refText = tts.DefaultReferenceText
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		resolver:      cfg.Resolver,
		fetcher:       cfg.Fetcher,
		synth:         cfg.Synthesizer,
		policy:        cfg.Policy,
		referenceText: refText,
		workspaceRoot: cfg.WorkspaceRoot,
		events:        cfg.EventLog,
		logger:        logger,
	}
}

// Mode returns the audio source mode of the configured resolver.
func (s *Service) Mode() voice.Mode {
	return s.resolver.Mode()
}

// OutputFilename returns a fresh output_cloned_<hex>.mp3 name.
func OutputFilename() string {
	return "output_cloned_" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".mp3"
}

// Run executes req. deliver is called with the finished result while the
// workspace still exists; the workspace is removed when Run returns, whatever
// the outcome. Any returned error is an *Error.
func (s *Service) Run(ctx context.Context, req Request, deliver func(*Result) error) (err error) {
	requestID := uuid.NewString()
	stage := StageInit
	start := time.Now()

	ws, werr := workspace.New(s.workspaceRoot)
	if werr != nil {
		return s.fail(requestID, internalError(stage, werr))
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			s.logger.Printf("transfer[%s]: failed to remove workspace: %v", requestID, cerr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = s.fail(requestID, internalError(stage, fmt.Errorf("panic: %v", r)))
		}
	}()

	s.events.LogAsync(requestID, eventlog.EventTransferStarted, map[string]any{
		"mode": string(s.resolver.Mode()),
	})

	stage = StageResolvingAudio
	sample, terr := s.resolveAudio(ctx, ws, req.Audio)
	if terr != nil {
		return s.fail(requestID, terr)
	}
	s.events.LogAsync(requestID, eventlog.EventAudioResolved, map[string]any{
		"original_format":   sample.OriginalFormat,
		"transcoded_format": sample.TranscodedFormat,
		"downloaded_bytes":  sample.DownloadedBytes,
	})

	stage = StageResolvingText
	text, fromURL, terr := s.resolveText(ctx, req.Text)
	if terr != nil {
		return s.fail(requestID, terr)
	}
	s.events.LogAsync(requestID, eventlog.EventTextResolved, map[string]any{
		"from_url": fromURL,
		"length":   len(text),
	})

	stage = StageSanitizing
	clean := s.policy.Apply(text)
	if clean == "" {
		s.logger.Printf("transfer[%s]: warning: sanitized text is empty (input %d bytes)", requestID, len(text))
	}
	s.logger.Printf("transfer[%s]: text for TTS: %q", requestID, clean)
	s.events.LogAsync(requestID, eventlog.EventTextSanitized, map[string]any{
		"input_length":  len(text),
		"output_length": len(clean),
	})

	stage = StageSynthesizing
	result, terr := s.synthesize(ctx, ws, requestID, clean, sample, req.Stream)
	if terr != nil {
		return s.fail(requestID, terr)
	}

	result.Costs = costs.CalculateTransferCosts(costs.TransferMetrics{
		TextBytes:       len(clean),
		DownloadedBytes: sample.DownloadedBytes,
	})

	stage = StageResponding
	if deliver != nil {
		if derr := deliver(result); derr != nil {
			return s.fail(requestID, internalError(stage, fmt.Errorf("deliver: %w", derr)))
		}
	}

	s.events.LogAsync(requestID, eventlog.EventTransferCompleted, map[string]any{
		"bytes":                     result.Size,
		"duration_ms":               time.Since(start).Milliseconds(),
		"synthesis_cost_millicents": result.Costs.SynthesisMilliCents,
		"gateway_cost_millicents":   result.Costs.GatewayMilliCents,
		"cost_millicents":           result.Costs.TotalMilliCents,
		"output_file_name":          result.Filename,
	})
	s.logger.Printf("transfer[%s]: completed %s (%d bytes) in %s", requestID, result.Filename, result.Size, time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *Service) resolveAudio(ctx context.Context, ws *workspace.Workspace, src voice.Source) (*voice.Sample, *Error) {
	sample, err := s.resolver.Resolve(ctx, ws, src)
	if err == nil {
		return sample, nil
	}

	var ie *voice.InputError
	var fe *voice.FetchError
	var te *voice.TranscodeError
	switch {
	case errors.As(err, &ie):
		return nil, &Error{Kind: KindMissingInput, Stage: StageResolvingAudio, Message: ie.Message, Err: err}
	case errors.As(err, &fe):
		return nil, &Error{Kind: KindUpstreamFetchFailed, Stage: StageResolvingAudio, Message: MsgAudioFetchFailed, Err: err}
	case errors.As(err, &te):
		return nil, &Error{Kind: KindTranscodeFailed, Stage: StageResolvingAudio, Message: MsgTranscodeFailed, Err: err}
	default:
		return nil, internalError(StageResolvingAudio, err)
	}
}

func (s *Service) resolveText(ctx context.Context, input string) (string, bool, *Error) {
	if input == "" {
		return "", false, &Error{Kind: KindMissingInput, Stage: StageResolvingText, Message: MsgMissingText}
	}
	if !textsource.IsURL(input) {
		return input, false, nil
	}

	text, err := s.fetcher.FetchText(ctx, input)
	if err != nil {
		return "", true, &Error{Kind: KindUpstreamFetchFailed, Stage: StageResolvingText, Message: MsgTextFetchFailed, Err: err}
	}
	return text, true, nil
}

func (s *Service) synthesize(ctx context.Context, ws *workspace.Workspace, requestID, text string, sample *voice.Sample, stream io.Writer) (*Result, *Error) {
	refAudio, err := os.ReadFile(sample.Path)
	if err != nil {
		return nil, internalError(StageSynthesizing, fmt.Errorf("read reference audio: %w", err))
	}

	filename := OutputFilename()
	outPath := ws.Path(filename)
	out, err := os.Create(outPath)
	if err != nil {
		return nil, internalError(StageSynthesizing, fmt.Errorf("create output file: %w", err))
	}
	defer out.Close()

	var w io.Writer = out
	if stream != nil {
		w = io.MultiWriter(out, stream)
	}

	s.events.LogAsync(requestID, eventlog.EventSynthesisStarted, map[string]any{
		"text_length":      len(text),
		"reference_length": len(refAudio),
	})

	job := tts.Job{Text: text, ReferenceAudio: refAudio, ReferenceText: s.referenceText}
	n, err := s.synth.Synthesize(ctx, job, w)
	if err != nil {
		kind := KindSynthesisFailed
		if errors.Is(err, tts.ErrMissingAPIKey) {
			kind = KindConfiguration
		}
		return nil, &Error{Kind: kind, Stage: StageSynthesizing, Message: MsgSynthesisFailed, Err: err}
	}
	if err := out.Close(); err != nil {
		return nil, internalError(StageSynthesizing, fmt.Errorf("close output file: %w", err))
	}

	s.events.LogAsync(requestID, eventlog.EventSynthesisCompleted, map[string]any{"bytes": n})

	return &Result{
		RequestID:   requestID,
		Filename:    filename,
		Path:        outPath,
		Size:        n,
		ContentType: ContentType,
	}, nil
}

func (s *Service) fail(requestID string, e *Error) *Error {
	e.RequestID = requestID
	if e.Err != nil {
		s.logger.Printf("transfer[%s]: %s failed: %s: %v", requestID, e.Stage, e.Kind, e.Err)
	} else {
		s.logger.Printf("transfer[%s]: %s failed: %s: %s", requestID, e.Stage, e.Kind, e.Message)
	}
	s.events.LogAsync(requestID, eventlog.EventTransferFailed, map[string]any{
		"stage":   e.Stage.String(),
		"kind":    e.Kind.String(),
		"message": e.Message,
	})
	return e
}
