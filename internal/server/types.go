// Package server provides the HTTP server for the beatstore API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/beatstore-api/internal/beat"
	"github.com/maauso/beatstore-api/internal/pricing"
)

// PricesRequest carries license prices in cents. Zero means "not set".
type PricesRequest struct {
	Base      int64 `json:"base" validate:"min=0"`
	Basic     int64 `json:"basic" validate:"min=0"`
	Premium   int64 `json:"premium" validate:"min=0"`
	Exclusive int64 `json:"exclusive" validate:"min=0"`
}

// CreateBeatRequest is the HTTP request body for creating a beat.
type CreateBeatRequest struct {
	// Title is the display title of the beat.
	Title string `json:"title" validate:"required,max=200"`
	// Genre is a free-form genre tag.
	Genre string `json:"genre" validate:"max=64"`
	// BPM is the tempo in beats per minute.
	BPM int `json:"bpm" validate:"min=0,max=400"`
	// Prices are the license prices in cents.
	Prices PricesRequest `json:"prices"`
}

// PriceResponse is the price of one license.
type PriceResponse struct {
	License   string `json:"license"`
	Amount    int64  `json:"amount"`
	Formatted string `json:"formatted"`
	Estimated bool   `json:"estimated"`
}

// BeatResponse is the HTTP representation of a beat.
type BeatResponse struct {
	ID                string          `json:"id"`
	ProducerID        string          `json:"producer_id"`
	Title             string          `json:"title"`
	Genre             string          `json:"genre,omitempty"`
	BPM               int             `json:"bpm,omitempty"`
	Status            string          `json:"status"`
	Error             string          `json:"error,omitempty"`
	PreviewURL        string          `json:"preview_url,omitempty"`
	PreviewDurationMs int64           `json:"preview_duration_ms,omitempty"`
	Prices            []PriceResponse `json:"prices"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	ReadyAt           *time.Time      `json:"ready_at,omitempty"`
}

// ListBeatsResponse is the HTTP response for listing beats.
type ListBeatsResponse struct {
	Beats []BeatResponse `json:"beats"`
	Count int            `json:"count"`
}

// CartItemRequest is one beat license in a quote request.
type CartItemRequest struct {
	BeatID  string `json:"beat_id" validate:"required"`
	License string `json:"license" validate:"required,oneof=basic premium exclusive"`
}

// QuoteCartRequest is the HTTP request body for pricing a cart.
type QuoteCartRequest struct {
	Items []CartItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

// QuoteLineResponse is one priced cart line.
type QuoteLineResponse struct {
	BeatID   string `json:"beat_id"`
	Filename string `json:"filename"`
	PriceResponse
}

// QuoteCartResponse is the HTTP response for a cart quote.
type QuoteCartResponse struct {
	Lines          []QuoteLineResponse `json:"lines"`
	Total          int64               `json:"total"`
	TotalFormatted string              `json:"total_formatted"`
	Estimated      bool                `json:"estimated"`
}

// PublishNotificationRequest is the HTTP request body for publishing a notification.
type PublishNotificationRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Kind    string `json:"kind" validate:"required,oneof=follow favorite purchase system"`
	Message string `json:"message" validate:"required,max=1000"`
}

// PublishNotificationResponse reports whether the notification reached a client.
type PublishNotificationResponse struct {
	// Delivered is false when the notification was a duplicate or the user had no open connection.
	Delivered bool `json:"delivered"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func newPriceResponse(q pricing.Quote) PriceResponse {
	return PriceResponse{
		License:   string(q.License),
		Amount:    q.Amount,
		Formatted: pricing.FormatCents(q.Amount),
		Estimated: q.Estimated,
	}
}

func newBeatResponse(b *beat.Beat) BeatResponse {
	snap := b.Clone()

	quotes := pricing.PriceAll(snap.Tiers)
	prices := make([]PriceResponse, 0, len(quotes))
	for _, q := range quotes {
		prices = append(prices, newPriceResponse(q))
	}

	resp := BeatResponse{
		ID:                snap.ID,
		ProducerID:        snap.ProducerID,
		Title:             snap.Title,
		Genre:             snap.Genre,
		BPM:               snap.BPM,
		Status:            string(snap.Status),
		Error:             snap.Error,
		PreviewDurationMs: snap.PreviewDuration().Milliseconds(),
		Prices:            prices,
		CreatedAt:         snap.CreatedAt,
		UpdatedAt:         snap.UpdatedAt,
	}
	if snap.Status == beat.StatusReady {
		resp.PreviewURL = "/beats/" + snap.ID + "/preview"
		readyAt := snap.ReadyAt
		resp.ReadyAt = &readyAt
	}
	return resp
}

func newQuoteCartResponse(q pricing.CartQuote) QuoteCartResponse {
	lines := make([]QuoteLineResponse, 0, len(q.Lines))
	for _, l := range q.Lines {
		lines = append(lines, QuoteLineResponse{
			BeatID:        l.BeatID,
			Filename:      l.Filename,
			PriceResponse: newPriceResponse(l.Quote),
		})
	}
	return QuoteCartResponse{
		Lines:          lines,
		Total:          q.Total,
		TotalFormatted: pricing.FormatCents(q.Total),
		Estimated:      q.Estimated,
	}
}
