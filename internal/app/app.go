package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/voicetransfer/internal/eventlog"
	"github.com/lukasbauer/voicetransfer/internal/httpapi"
	"github.com/lukasbauer/voicetransfer/internal/jobs"
	"github.com/lukasbauer/voicetransfer/internal/sanitize"
	"github.com/lukasbauer/voicetransfer/internal/textsource"
	"github.com/lukasbauer/voicetransfer/internal/transfer"
	"github.com/lukasbauer/voicetransfer/internal/tts"
	"github.com/lukasbauer/voicetransfer/internal/voice"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	eventLog   *eventlog.Logger
	transfers  *transfer.Service
	sweeper    *jobs.WorkspaceSweeperJob
	httpClient *http.Client // Shared HTTP client with connection pooling for outbound calls
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	mode, err := voice.ParseMode(cfg.VoiceSource)
	if err != nil {
		return nil, err
	}

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		logger.Printf("DATABASE_URL not set, event log disabled")
	}
	el := eventlog.New(db)

	// Migrations are applied externally. No automatic migration runner at startup.

	// Shared HTTP client for the gateway, text URLs and Fish Audio. No overall
	// timeout: synthesis responses stream for as long as the audio takes.
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 2 * time.Minute,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	var resolver voice.Resolver
	switch mode {
	case voice.ModeUpload:
		resolver = voice.NewUploadResolver(cfg.MaxUploadBytes)
	case voice.ModeCID:
		resolver = voice.NewCIDResolver(voice.CIDConfig{
			Gateway:    cfg.IPFSGateway,
			HTTPClient: httpClient,
			Transcoder: voice.NewFFmpegTranscoder(cfg.FFmpegPath, 2*time.Minute),
			MaxBytes:   cfg.MaxUploadBytes,
		})
	default:
		return nil, fmt.Errorf("unsupported voice source %q", mode)
	}

	if cfg.FishAudioAPIKey == "" {
		logger.Printf("Warning: FISH_AUDIO_API_KEY not set, synthesis requests will fail")
	}

	svc := transfer.NewService(transfer.Config{
		Resolver: resolver,
		Fetcher:  textsource.NewFetcher(httpClient),
		Synthesizer: tts.NewFishAudioClient(tts.FishAudioConfig{
			APIKey:     cfg.FishAudioAPIKey,
			BaseURL:    cfg.FishAudioBaseURL,
			Backend:    cfg.FishAudioBackend,
			HTTPClient: httpClient,
		}),
		Policy: sanitize.Policy{
			Threshold:     cfg.SanitizeThreshold,
			SentenceIndex: cfg.SanitizeSentenceIndex,
			MaxChars:      cfg.SanitizeMaxChars,
		},
		ReferenceText: cfg.ReferenceText,
		WorkspaceRoot: cfg.WorkspaceRoot,
		EventLog:      el,
		Logger:        logger,
	})

	logger.Printf("voice source: %s", mode)

	return &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		eventLog:   el,
		transfers:  svc,
		sweeper:    jobs.NewWorkspaceSweeperJob(cfg.WorkspaceRoot, cfg.WorkspaceMaxAge, logger, cfg.WorkspaceSweepInterval),
		httpClient: httpClient,
	}, nil
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		JWTSecret: a.cfg.JWTSecret,
		// Leave room for the text field and multipart framing.
		MaxRequestBytes:   a.cfg.MaxUploadBytes + 1<<20,
		DiscordWebhookURL: a.cfg.DiscordWebhookURL,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.transfers)
}

// StartJobs starts background jobs. Close stops them.
func (a *App) StartJobs() {
	a.sweeper.Start()
}

func (a *App) Close() error {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	a.httpClient.CloseIdleConnections()
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
