// Package domain contains core business values
// All values are request-scoped: nothing here outlives one webhook delivery
package domain

// ReplyMessage is the only outbound message shape produced by the bot
type ReplyMessage struct {
	Text string `json:"text"`
}

// Recipient identifies who a reply is sent to (PSID)
type Recipient struct {
	ID string `json:"id"`
}

// SendRequest is the JSON body posted to the Send API
type SendRequest struct {
	Recipient Recipient    `json:"recipient"`
	Message   ReplyMessage `json:"message"`
}

// NewSendRequest wraps a recipient id and a reply
func NewSendRequest(recipientID string, reply ReplyMessage) SendRequest {
	return SendRequest{
		Recipient: Recipient{ID: recipientID},
		Message:   reply,
	}
}

// SendStatus constants for outbound send outcomes
const (
	SendStatusSent    = "sent"
	SendStatusFailed  = "failed"
	SendStatusSkipped = "skipped" // No access token configured
)

// SendOutcome is the result of one outbound send.
// Err is set for failed and skipped sends; it is logged, never propagated.
type SendOutcome struct {
	RecipientID string
	Status      string
	MessageID   string // Platform message id on success
	StatusCode  int    // HTTP status from the platform, 0 when no response
	Err         error
}

// OK reports whether the platform accepted the message
func (o SendOutcome) OK() bool {
	return o.Status == SendStatusSent
}
