package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lukasbauer/voicetransfer/internal/notifications"
	"github.com/lukasbauer/voicetransfer/internal/transfer"
)

type RouterConfig struct {
	// JWT Authentication. Empty disables auth on the transfer endpoints.
	JWTSecret string

	// Upper bound for a whole multipart request or websocket message.
	MaxRequestBytes int64

	// Notifications
	DiscordWebhookURL string
}

type Router struct {
	cfg       RouterConfig
	logger    *log.Logger
	transfers *transfer.Service
	discord   *notifications.Discord
	mux       *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, transfers *transfer.Service) http.Handler {
	r := &Router{
		cfg:       cfg,
		logger:    logger,
		transfers: transfers,
		discord:   notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		mux:       http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Voice transfer
	r.mux.HandleFunc("POST /api/voice-transfer", r.withAuth(r.handleVoiceTransfer))
	r.mux.HandleFunc("GET /api/voice-transfer/stream", r.withAuth(r.handleVoiceTransferStream))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": transfer.MsgInternalError})
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition,X-Request-ID")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
