// Package handler implements HTTP request handlers
// Following Hexagonal Architecture: Adapters translate HTTP to domain logic
package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"messenger-bot/internal/adapters/dto"
	"messenger-bot/internal/config"
	"messenger-bot/internal/core/services"
	"messenger-bot/internal/metrics"
)

// Response bodies
const (
	HealthBody        = "Messenger bot running"
	EventReceivedBody = "EVENT_RECEIVED"

	signatureHeader = "X-Hub-Signature-256"
	maxBodySize     = 1 << 20
)

// EventDispatcher processes a decoded delivery payload
type EventDispatcher interface {
	Dispatch(ctx context.Context, payload *dto.FacebookWebhookRequest) (services.DispatchSummary, error)
}

// WebhookHandler handles Messenger webhook verification and events
type WebhookHandler struct {
	dispatcher  EventDispatcher
	verifyToken string // For webhook verification
	appSecret   string // For HMAC signature validation, optional
	logger      zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(dispatcher EventDispatcher, cfg config.MessengerConfig, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:  dispatcher,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		logger:      logger.With().Str("component", "webhook_handler").Logger(),
	}
}

// HandleHealth answers GET /
func (h *WebhookHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, HealthBody)
}

// ============================================================================
// GET /webhook - Webhook Verification
// ============================================================================

// HandleVerify handles the verification challenge from Facebook
// Ref: https://developers.facebook.com/docs/messenger-platform/webhooks#verification
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "" || token == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if mode != "subscribe" || token != h.verifyToken {
		h.logger.Warn().
			Str("mode", mode).
			Bool("token_matches", token == h.verifyToken).
			Msg("Webhook verification failed")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	h.logger.Info().Msg("WEBHOOK_VERIFIED")
	writeText(w, http.StatusOK, challenge)
}

// ============================================================================
// POST /webhook - Webhook Events
// ============================================================================

// HandleEvent handles incoming webhook deliveries.
// The response is written only after every reply send has settled.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	status := h.handleEvent(w, r)
	metrics.DeliveriesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (h *WebhookHandler) handleEvent(w http.ResponseWriter, r *http.Request) int {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read webhook body")
		w.WriteHeader(http.StatusBadRequest)
		return http.StatusBadRequest
	}

	if h.appSecret != "" && !h.validateSignature(body, r.Header.Get(signatureHeader)) {
		w.WriteHeader(http.StatusForbidden)
		return http.StatusForbidden
	}

	var payload dto.FacebookWebhookRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				h.logger.Warn().Err(err).Msg("Webhook body is not valid JSON")
				w.WriteHeader(http.StatusBadRequest)
				return http.StatusBadRequest
			}
			h.logger.Error().Err(err).Msg("Webhook POST error")
			w.WriteHeader(http.StatusInternalServerError)
			return http.StatusInternalServerError
		}
	}

	// Sends run to completion even if the platform hangs up
	ctx := context.WithoutCancel(r.Context())

	if _, err := h.dispatch(ctx, &payload); err != nil {
		if errors.Is(err, services.ErrNotPageSubscription) {
			h.logger.Debug().Str("object", payload.Object).Msg("Ignoring non-page webhook")
			w.WriteHeader(http.StatusNotFound)
			return http.StatusNotFound
		}
		h.logger.Error().Err(err).Msg("Webhook POST error")
		w.WriteHeader(http.StatusInternalServerError)
		return http.StatusInternalServerError
	}

	writeText(w, http.StatusOK, EventReceivedBody)
	return http.StatusOK
}

// dispatch converts a panic during processing into an error
func (h *WebhookHandler) dispatch(ctx context.Context, payload *dto.FacebookWebhookRequest) (summary services.DispatchSummary, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while processing webhook: %v", rec)
		}
	}()
	return h.dispatcher.Dispatch(ctx, payload)
}

// ============================================================================
// HMAC Signature Validation
// ============================================================================

// validateSignature validates the HMAC SHA256 signature from Facebook
// Ref: https://developers.facebook.com/docs/messenger-platform/webhooks#security
func (h *WebhookHandler) validateSignature(payload []byte, header string) bool {
	const prefix = "sha256="
	if header == "" {
		h.logger.Warn().Msg("Webhook received without signature header")
		return false
	}
	if !strings.HasPrefix(header, prefix) {
		h.logger.Warn().Msg("Invalid signature format - missing sha256= prefix")
		return false
	}

	expected, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Invalid signature encoding")
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(payload)

	if !hmac.Equal(mac.Sum(nil), expected) {
		h.logger.Warn().Msg("Webhook signature validation failed")
		return false
	}
	return true
}

// SignPayload returns the X-Hub-Signature-256 value for a body
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
