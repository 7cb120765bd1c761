package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	SentryDSN   string
	LogLevel    string

	// Fish Audio
	FishAudioAPIKey  string
	FishAudioBaseURL string
	FishAudioBackend string
	ReferenceText    string

	// Voice sample source: "upload" or "cid"
	VoiceSource string
	IPFSGateway string
	FFmpegPath  string

	// Per-request workspaces
	WorkspaceRoot          string
	WorkspaceMaxAge        time.Duration
	WorkspaceSweepInterval time.Duration

	// Text sanitization
	SanitizeThreshold     int
	SanitizeSentenceIndex int
	SanitizeMaxChars      int

	MaxUploadBytes int64

	// JWT Authentication (optional)
	JWTSecret string

	// Notifications
	DiscordWebhookURL string
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		SentryDSN:   getenv("SENTRY_DSN", ""),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		// Fish Audio
		FishAudioAPIKey:  getenv("FISH_AUDIO_API_KEY", ""),
		FishAudioBaseURL: getenv("FISH_AUDIO_BASE_URL", "https://api.fish.audio"),
		FishAudioBackend: getenv("FISH_AUDIO_BACKEND", "s1"),
		ReferenceText:    getenv("REFERENCE_TEXT", "This is a reference audio for voice cloning."),

		VoiceSource: getenv("VOICE_SOURCE", "cid"),
		IPFSGateway: getenv("IPFS_GATEWAY", "ipfs.io"),
		FFmpegPath:  getenv("FFMPEG_PATH", "ffmpeg"),

		WorkspaceRoot:          getenv("WORKSPACE_ROOT", os.TempDir()),
		WorkspaceMaxAge:        getenvDuration("WORKSPACE_MAX_AGE", time.Hour),
		WorkspaceSweepInterval: getenvDuration("WORKSPACE_SWEEP_INTERVAL", 15*time.Minute),

		SanitizeThreshold:     getenvIntClamped("SANITIZE_THRESHOLD", 100, 1, 1_000_000),
		SanitizeSentenceIndex: getenvIntClamped("SANITIZE_SENTENCE_INDEX", 15, 0, 10_000),
		SanitizeMaxChars:      getenvIntClamped("SANITIZE_MAX_CHARS", 100, 1, 1_000_000),

		MaxUploadBytes: getenvInt64("MAX_UPLOAD_BYTES", 25<<20),

		// JWT Authentication
		JWTSecret: os.Getenv("JWT_SECRET"), // Empty disables auth

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntClamped parses an int env var, falling back to def when unset or
// invalid and clamping the result to [min, max].
func getenvIntClamped(k string, def, min, max int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func getenvInt64(k string, def int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(k), 10, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
