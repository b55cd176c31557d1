package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, verifier TokenVerifier, logger *slog.Logger, cfg Config) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	authed := RequireAuth(verifier, logger)

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /rpc/status", h.RPCStatus)
	mux.HandleFunc("POST /previews", h.CreatePreview)

	mux.Handle("POST /beats", authed(http.HandlerFunc(h.CreateBeat)))
	mux.Handle("POST /beats/{id}/upload", authed(http.HandlerFunc(h.UploadBeat)))
	mux.HandleFunc("GET /beats", h.ListBeats)
	mux.HandleFunc("GET /beats/{id}", h.GetBeat)
	mux.Handle("DELETE /beats/{id}", authed(http.HandlerFunc(h.DeleteBeat)))
	mux.HandleFunc("GET /beats/{id}/preview", h.GetPreview)

	mux.HandleFunc("POST /cart/quote", h.QuoteCart)

	mux.Handle("POST /notifications", authed(http.HandlerFunc(h.PublishNotification)))
	mux.Handle("GET /ws/notifications", authed(http.HandlerFunc(h.Notifications)))

	mux.HandleFunc("GET /files/{key...}", h.ServeFile)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
