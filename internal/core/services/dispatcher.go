// Package services contains core business logic
// Following Hexagonal Architecture: Services orchestrate domain logic using ports
package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"messenger-bot/internal/adapters/dto"
	"messenger-bot/internal/core/domain"
	"messenger-bot/internal/core/ports"
	"messenger-bot/internal/metrics"
)

var (
	// ErrNotPageSubscription is returned for payloads whose object is not "page"
	ErrNotPageSubscription = errors.New("webhook object is not a page subscription")

	// ErrMalformedPayload is returned when the entry/messaging structure cannot be traversed
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// DispatchSummary describes what one delivery triggered
type DispatchSummary struct {
	DeliveryID string
	Messages   int
	Postbacks  int
	Skipped    int
	Sent       int
	Failed     int
}

// Dispatcher walks a delivery payload and sends one reply per actionable event
type Dispatcher struct {
	sender ports.MessageSender
	logger zerolog.Logger
}

// NewDispatcher creates a new dispatcher instance with dependencies injected
func NewDispatcher(sender ports.MessageSender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch processes every messaging event of a page delivery.
// Events are visited in entry order, then array order. Sends may overlap,
// but Dispatch only returns once every started send has settled, including
// when traversal stops early on a malformed entry or event.
func (d *Dispatcher) Dispatch(ctx context.Context, payload *dto.FacebookWebhookRequest) (DispatchSummary, error) {
	summary := DispatchSummary{DeliveryID: uuid.NewString()}
	logger := d.logger.With().Str("delivery_id", summary.DeliveryID).Logger()

	if payload == nil {
		return summary, errors.Wrap(ErrMalformedPayload, "empty body")
	}
	if !payload.IsPage() {
		return summary, ErrNotPageSubscription
	}
	if payload.Entry == nil {
		return summary, errors.Wrap(ErrMalformedPayload, "entry is missing")
	}

	var (
		g      errgroup.Group
		sent   atomic.Int32
		failed atomic.Int32
	)

	send := func(recipientID string, reply domain.ReplyMessage) {
		g.Go(func() error {
			outcome := d.safeSend(ctx, recipientID, reply)
			d.logOutcome(logger, outcome)
			if outcome.OK() {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}

	traverseErr := func() error {
		for i, entry := range payload.Entry {
			if entry == nil {
				return errors.Wrapf(ErrMalformedPayload, "entry %d is null", i)
			}
			for j, event := range entry.Messaging {
				if event == nil {
					return errors.Wrapf(ErrMalformedPayload, "entry %d messaging %d is null", i, j)
				}

				senderID, ok := event.SenderID()
				if !ok || (event.Message == nil && event.Postback == nil) {
					summary.Skipped++
					metrics.EventsTotal.WithLabelValues(metrics.EventSkipped).Inc()
					continue
				}

				if event.Message != nil {
					summary.Messages++
					metrics.EventsTotal.WithLabelValues(metrics.EventMessage).Inc()
					logger.Debug().
						Str("sender_id", senderID).
						Str("mid", event.Message.MID).
						Int("attachments", len(event.Message.Attachments)).
						Msg("Received message")
					send(senderID, ComputeReply(event.Message))
				}
				if event.Postback != nil {
					summary.Postbacks++
					metrics.EventsTotal.WithLabelValues(metrics.EventPostback).Inc()
					logger.Debug().
						Str("sender_id", senderID).
						Str("payload", event.Postback.Payload).
						Msg("Received postback")
					send(senderID, PostbackReply(event.Postback))
				}
			}
		}
		return nil
	}()

	// Always join the sends already started, even when traversal failed
	_ = g.Wait()
	summary.Sent = int(sent.Load())
	summary.Failed = int(failed.Load())

	if traverseErr != nil {
		return summary, traverseErr
	}

	logger.Info().
		Int("messages", summary.Messages).
		Int("postbacks", summary.Postbacks).
		Int("skipped", summary.Skipped).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Msg("Webhook processing completed")

	return summary, nil
}

// safeSend turns a panicking sender into a failed outcome
func (d *Dispatcher) safeSend(ctx context.Context, recipientID string, reply domain.ReplyMessage) (outcome domain.SendOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.SendOutcome{
				RecipientID: recipientID,
				Status:      domain.SendStatusFailed,
				Err:         fmt.Errorf("panic in send: %v", r),
			}
		}
	}()
	return d.sender.SendMessage(ctx, recipientID, reply)
}

func (d *Dispatcher) logOutcome(logger zerolog.Logger, outcome domain.SendOutcome) {
	metrics.SendsTotal.WithLabelValues(outcome.Status).Inc()

	switch outcome.Status {
	case domain.SendStatusSent:
		logger.Info().
			Str("recipient_id", outcome.RecipientID).
			Str("message_id", outcome.MessageID).
			Msg("Message sent")
	case domain.SendStatusSkipped:
		logger.Error().
			Err(outcome.Err).
			Str("recipient_id", outcome.RecipientID).
			Msg("Send skipped")
	default:
		logger.Error().
			Err(outcome.Err).
			Str("recipient_id", outcome.RecipientID).
			Int("status_code", outcome.StatusCode).
			Msg("Send API error")
	}
}
