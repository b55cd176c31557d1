package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/beatstore-api/internal/auth"
	"github.com/maauso/beatstore-api/internal/beat"
	"github.com/maauso/beatstore-api/internal/notify"
	"github.com/maauso/beatstore-api/internal/preview"
	"github.com/maauso/beatstore-api/internal/pricing"
	"github.com/maauso/beatstore-api/internal/rpchealth"
	"github.com/maauso/beatstore-api/internal/storage"
)

const (
	// DefaultMaxUploadBytes caps multipart uploads.
	DefaultMaxUploadBytes int64 = 50 << 20
	// multipartMemory is how much of a multipart body is kept in memory.
	multipartMemory int64 = 32 << 20
)

// StatusReporter exposes the RPC connection state.
type StatusReporter interface {
	Status() rpchealth.Status
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	beats              *beat.Service
	previews           beat.PreviewEncoder
	hub                *notify.Hub
	rpc                StatusReporter
	files              storage.Storage
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	maxUploadBytes     int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, UploadBeat encodes the preview before responding.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMaxUploadBytes sets the largest accepted upload.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithNotificationHub enables the notification endpoints.
func WithNotificationHub(hub *notify.Hub) HandlerOption {
	return func(h *Handlers) {
		h.hub = hub
	}
}

// WithRPCStatus enables GET /rpc/status.
func WithRPCStatus(r StatusReporter) HandlerOption {
	return func(h *Handlers) {
		h.rpc = r
	}
}

// WithFileServer serves stored objects under /files. Only set for local storage.
func WithFileServer(store storage.Storage) HandlerOption {
	return func(h *Handlers) {
		h.files = store
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(beats *beat.Service, previews beat.PreviewEncoder, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		beats:              beats,
		previews:           previews,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
		maxUploadBytes:     DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// RPCStatus handles GET /rpc/status requests.
func (h *Handlers) RPCStatus(w http.ResponseWriter, r *http.Request) {
	if h.rpc == nil {
		writeError(w, http.StatusServiceUnavailable, "rpc monitor is not configured", "RPC_MONITOR_DISABLED")
		return
	}
	writeJSON(w, http.StatusOK, h.rpc.Status())
}

// CreatePreview handles POST /previews requests. It returns the MP3 preview
// of the uploaded file without storing anything.
func (h *Handlers) CreatePreview(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	asset, err := h.previews.Encode(data)
	if err != nil {
		h.writeServiceError(w, err, "failed to encode preview")
		return
	}

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(asset.Data)))
	w.Header().Set("X-Preview-Samples", strconv.Itoa(asset.Samples))
	w.Header().Set("X-Sample-Rate", strconv.Itoa(asset.SampleRate))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(asset.Data); err != nil {
		h.logger.Warn("failed to write preview", slog.String("error", err.Error()))
	}
}

// CreateBeat handles POST /beats requests.
func (h *Handlers) CreateBeat(w http.ResponseWriter, r *http.Request) {
	producerID, _ := auth.UserIDFromContext(r.Context())

	var req CreateBeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	created, err := h.beats.CreateBeat(r.Context(), beat.CreateInput{
		ProducerID: producerID,
		Title:      req.Title,
		Genre:      req.Genre,
		BPM:        req.BPM,
		Tiers: pricing.Tiers{
			Base:      req.Prices.Base,
			Basic:     req.Prices.Basic,
			Premium:   req.Prices.Premium,
			Exclusive: req.Prices.Exclusive,
		},
	})
	if err != nil {
		h.logger.Error("failed to create beat",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create beat", "BEAT_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, newBeatResponse(created))
}

// UploadBeat handles POST /beats/{id}/upload requests.
func (h *Handlers) UploadBeat(w http.ResponseWriter, r *http.Request) {
	beatID := r.PathValue("id")
	producerID, _ := auth.UserIDFromContext(r.Context())

	filename, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	// Claim the beat synchronously so concurrent uploads get a 409.
	b, err := h.beats.StartUpload(r.Context(), beatID, producerID, filename)
	if err != nil {
		h.writeServiceError(w, err, "failed to start upload")
		return
	}

	h.logger.Info("beat upload accepted",
		slog.String("beat_id", beatID),
		slog.String("filename", filename),
		slog.Int("bytes", len(data)),
		slog.Bool("async", h.enableAsyncProcess),
	)

	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		accepted := newBeatResponse(b)
		go func(ctx context.Context) {
			if _, processErr := h.beats.CompleteUpload(ctx, b, data); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("beat_id", beatID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()))

		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	if _, err := h.beats.CompleteUpload(r.Context(), b, data); err != nil {
		h.writeServiceError(w, err, "failed to process upload")
		return
	}
	writeJSON(w, http.StatusOK, newBeatResponse(b))
}

// ListBeats handles GET /beats requests.
func (h *Handlers) ListBeats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := beat.Filter{
		ProducerID: q.Get("producer_id"),
		Genre:      q.Get("genre"),
	}

	if s := q.Get("status"); s != "" {
		st := beat.Status(s)
		switch st {
		case beat.StatusPending, beat.StatusProcessing, beat.StatusReady, beat.StatusFailed:
			f.Status = st
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", s), "VALIDATION_ERROR")
			return
		}
	}

	var err error
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "VALIDATION_ERROR")
		return
	}
	if f.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer", "VALIDATION_ERROR")
		return
	}

	beats, err := h.beats.ListBeats(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err, "failed to list beats")
		return
	}

	resp := ListBeatsResponse{Beats: make([]BeatResponse, 0, len(beats)), Count: len(beats)}
	for _, b := range beats {
		resp.Beats = append(resp.Beats, newBeatResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBeat handles GET /beats/{id} requests.
func (h *Handlers) GetBeat(w http.ResponseWriter, r *http.Request) {
	beatID := r.PathValue("id")

	found, err := h.beats.GetBeat(r.Context(), beatID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get beat")
		return
	}
	writeJSON(w, http.StatusOK, newBeatResponse(found))
}

// DeleteBeat handles DELETE /beats/{id} requests.
func (h *Handlers) DeleteBeat(w http.ResponseWriter, r *http.Request) {
	beatID := r.PathValue("id")
	producerID, _ := auth.UserIDFromContext(r.Context())

	if err := h.beats.DeleteBeat(r.Context(), beatID, producerID); err != nil {
		h.writeServiceError(w, err, "failed to delete beat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPreview handles GET /beats/{id}/preview requests. Signed URLs are
// redirected to; otherwise the preview is streamed.
func (h *Handlers) GetPreview(w http.ResponseWriter, r *http.Request) {
	beatID := r.PathValue("id")

	url, signed, err := h.beats.PreviewURL(r.Context(), beatID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get preview")
		return
	}
	if signed {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.beats.OpenPreview(r.Context(), beatID)
	if err != nil {
		h.writeServiceError(w, err, "failed to open preview")
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", preview.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream preview",
			slog.String("beat_id", beatID),
			slog.String("error", err.Error()),
		)
	}
}

// QuoteCart handles POST /cart/quote requests.
func (h *Handlers) QuoteCart(w http.ResponseWriter, r *http.Request) {
	var req QuoteCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	lines := make([]beat.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		license, err := pricing.ParseLicense(item.License)
		if err != nil {
			h.writeServiceError(w, err, "invalid license")
			return
		}
		lines = append(lines, beat.CartLine{BeatID: item.BeatID, License: license})
	}

	quote, err := h.beats.QuoteCart(r.Context(), lines)
	if err != nil {
		h.writeServiceError(w, err, "failed to quote cart")
		return
	}
	writeJSON(w, http.StatusOK, newQuoteCartResponse(quote))
}

// PublishNotification handles POST /notifications requests.
func (h *Handlers) PublishNotification(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are not configured", "NOTIFICATIONS_DISABLED")
		return
	}

	var req PublishNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	n := notify.Notification{
		UserID:  req.UserID,
		Kind:    notify.Kind(req.Kind),
		Message: req.Message,
	}
	if err := n.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	delivered := h.hub.Publish(r.Context(), n)
	writeJSON(w, http.StatusAccepted, PublishNotificationResponse{Delivered: delivered})
}

// Notifications handles GET /ws/notifications requests.
func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are not configured", "NOTIFICATIONS_DISABLED")
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	h.hub.ServeWS(w, r, userID)
}

// ServeFile handles GET /files/{key...} requests.
func (h *Handlers) ServeFile(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		writeError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
		return
	}

	key, err := storage.CleanKey(r.PathValue("key"))
	if err != nil || !beat.IsPreviewKey(key) {
		writeError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
		return
	}

	rc, contentType, err := h.files.Get(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, err, "failed to read file")
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// readUpload reads the "file" part of a multipart request. It writes the
// error response itself and reports false on failure.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large", "FILE_TOO_LARGE")
			return "", nil, false
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with a file field", "INVALID_MULTIPART")
		return "", nil, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required", "MISSING_FILE")
		return "", nil, false
	}
	defer func() { _ = file.Close() }()

	if header.Size > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large", "FILE_TOO_LARGE")
		return "", nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", "INVALID_MULTIPART")
		return "", nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, beat.ErrEmptyUpload.Error(), "EMPTY_UPLOAD")
		return "", nil, false
	}
	return header.Filename, data, true
}

// writeServiceError maps domain errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, msg string) {
	var decodeErr *preview.DecodeError
	var encodeErr *preview.EncodeError

	switch {
	case errors.As(err, &decodeErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "DECODE_ERROR")
	case errors.As(err, &encodeErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "ENCODE_ERROR")
	case errors.Is(err, beat.ErrBeatNotFound):
		writeError(w, http.StatusNotFound, "beat not found", "BEAT_NOT_FOUND")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
	case errors.Is(err, beat.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error(), "FORBIDDEN")
	case errors.Is(err, beat.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
	case errors.Is(err, beat.ErrPreviewNotReady):
		writeError(w, http.StatusConflict, err.Error(), "PREVIEW_NOT_READY")
	case errors.Is(err, beat.ErrEmptyUpload):
		writeError(w, http.StatusBadRequest, err.Error(), "EMPTY_UPLOAD")
	case errors.Is(err, pricing.ErrUnknownLicense), errors.Is(err, pricing.ErrDuplicateItem):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, pricing.ErrNoPrice):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "NO_PRICE")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msg, "INTERNAL_ERROR")
	}
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
