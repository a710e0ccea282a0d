// Package ports defines interfaces for dependency inversion
// Following Hexagonal Architecture: Core defines contracts, Adapters implement them
package ports

import (
	"context"

	"messenger-bot/internal/core/domain"
)

// MessageSender delivers a reply to a recipient through the platform Send API.
// Implementations never fail the caller: every error is reported in the outcome.
type MessageSender interface {
	SendMessage(ctx context.Context, recipientID string, reply domain.ReplyMessage) domain.SendOutcome
}
