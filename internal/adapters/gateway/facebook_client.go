// Package gateway implements external API adapters
// Following Hexagonal Architecture: Outbound adapters for external services
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"messenger-bot/internal/config"
	"messenger-bot/internal/core/domain"
	"messenger-bot/internal/core/ports"
	"messenger-bot/internal/metrics"
)

// Ensure MessengerClient implements MessageSender
var _ ports.MessageSender = (*MessengerClient)(nil)

var (
	// ErrMissingAccessToken means no page access token is configured; nothing is sent
	ErrMissingAccessToken = errors.New("missing PAGE_ACCESS_TOKEN")

	// ErrTokenExpired indicates the page access token is expired or invalid (code 190)
	ErrTokenExpired = errors.New("facebook access token expired or invalid")

	// ErrRateLimited indicates Facebook rate limit exceeded (code 4, 17, 32, 613)
	ErrRateLimited = errors.New("facebook rate limit exceeded")

	// ErrPermissionDenied indicates missing permissions (code 10, 200, 299)
	ErrPermissionDenied = errors.New("facebook permission denied")
)

// Maximum response body size kept for error logging
const maxErrorBodySize = 4096

// FacebookError represents an error object from the Graph API
type FacebookError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

// APIError is returned when the Send API responds with a non-2xx status
type APIError struct {
	StatusCode int
	Facebook   FacebookError // Zero when the body is not a Graph error
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Facebook.Message != "" {
		return fmt.Sprintf("send api error %d (code %d): %s", e.StatusCode, e.Facebook.Code, e.Facebook.Message)
	}
	return fmt.Sprintf("send api error %d: %s", e.StatusCode, string(e.Body))
}

// Is maps Graph error codes onto the sentinel errors
func (e *APIError) Is(target error) bool {
	switch e.Facebook.Code {
	case 190:
		return target == ErrTokenExpired
	case 4, 17, 32, 613:
		return target == ErrRateLimited
	case 10, 200, 299:
		return target == ErrPermissionDenied
	}
	return false
}

// SendMessageResponse represents Facebook's success response
type SendMessageResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// MessengerClient posts replies to the Messenger Send API.
// It never retries and never returns an error to the caller.
type MessengerClient struct {
	httpClient  *http.Client
	baseURL     string
	apiVersion  string
	accessToken string
	logger      zerolog.Logger
}

// NewMessengerClient creates a Send API client from the Messenger settings
func NewMessengerClient(cfg config.MessengerConfig, logger zerolog.Logger) *MessengerClient {
	return &MessengerClient{
		httpClient: &http.Client{
			Timeout: cfg.SendTimeout,
		},
		baseURL:     cfg.GraphAPIURL,
		apiVersion:  cfg.GraphAPIVersion,
		accessToken: cfg.PageAccessToken,
		logger:      logger.With().Str("component", "messenger_client").Logger(),
	}
}

// SendMessage sends a text reply to a Messenger user.
// Missing credentials, HTTP errors and network errors all end up in the outcome.
func (c *MessengerClient) SendMessage(ctx context.Context, recipientID string, reply domain.ReplyMessage) domain.SendOutcome {
	outcome := domain.SendOutcome{RecipientID: recipientID}

	if c.accessToken == "" {
		outcome.Status = domain.SendStatusSkipped
		outcome.Err = ErrMissingAccessToken
		return outcome
	}

	start := time.Now()
	resp, err := c.post(ctx, domain.NewSendRequest(recipientID, reply))
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome.Status = domain.SendStatusFailed
		outcome.StatusCode = resp.statusCode
		outcome.Err = err
		return outcome
	}

	outcome.Status = domain.SendStatusSent
	outcome.StatusCode = resp.statusCode
	outcome.MessageID = resp.body.MessageID
	return outcome
}

type sendResult struct {
	statusCode int
	body       SendMessageResponse
}

func (c *MessengerClient) post(ctx context.Context, payload domain.SendRequest) (sendResult, error) {
	var result sendResult

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return result, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return result, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	// Token stays out of the log
	c.logger.Debug().
		Str("recipient_id", payload.Recipient.ID).
		Int("text_length", len(payload.Message.Text)).
		Msg("Sending message to Facebook")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error repeats the URL, which carries the access token
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return result, errors.Wrap(err, "send api request failed")
	}
	defer resp.Body.Close() // nolint:errcheck
	result.statusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: body}

		var fbError struct {
			Error FacebookError `json:"error"`
		}
		if json.Unmarshal(body, &fbError) == nil {
			apiErr.Facebook = fbError.Error
		}
		return result, apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(&result.body); err != nil {
		return result, errors.Wrap(err, "decode send api response")
	}
	return result, nil
}

// endpoint builds POST <host>/<version>/me/messages?access_token=<token>
func (c *MessengerClient) endpoint() string {
	query := url.Values{}
	query.Set("access_token", c.accessToken)
	return fmt.Sprintf("%s/%s/me/messages?%s", c.baseURL, c.apiVersion, query.Encode())
}
