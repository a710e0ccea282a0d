// Package dto contains data transfer objects for external APIs
// Separating DTOs from handlers prevents import cycles
package dto

import "encoding/json"

// ObjectPage is the only webhook object type the bot accepts
const ObjectPage = "page"

// FacebookWebhookRequest is the top-level webhook payload from Facebook
// Ref: https://developers.facebook.com/docs/messenger-platform/webhooks
type FacebookWebhookRequest struct {
	Object string           `json:"object"` // "page" for Messenger
	Entry  []*FacebookEntry `json:"entry"`  // nil when the field is absent or null
}

// FacebookEntry represents a single page's webhook events
type FacebookEntry struct {
	ID        string               `json:"id"`        // Page ID
	Time      int64                `json:"time"`      // Unix milliseconds
	Messaging []*FacebookMessaging `json:"messaging"` // Missing is treated as empty
}

// FacebookMessaging represents a single messaging event.
// It carries at most one of Message or Postback.
type FacebookMessaging struct {
	Sender    *FacebookUser     `json:"sender,omitempty"`
	Recipient *FacebookUser     `json:"recipient,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Message   *FacebookMessage  `json:"message,omitempty"`
	Postback  *FacebookPostback `json:"postback,omitempty"`
}

// FacebookUser represents a sender or recipient (PSID)
type FacebookUser struct {
	ID string `json:"id"`
}

// FacebookMessage represents the actual message content
type FacebookMessage struct {
	MID  string `json:"mid"`
	Text string `json:"text,omitempty"`

	// Attachments are only length-checked, never inspected
	Attachments []json.RawMessage `json:"attachments,omitempty"`
}

// FacebookPostback is a button click carrying a fixed payload token
type FacebookPostback struct {
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload"`
}

// IsPage reports whether the payload comes from a page subscription
func (r *FacebookWebhookRequest) IsPage() bool {
	return r.Object == ObjectPage
}

// SenderID returns the PSID to reply to, or false when the event has no sender
func (m *FacebookMessaging) SenderID() (string, bool) {
	if m.Sender == nil {
		return "", false
	}
	return m.Sender.ID, true
}

// HasAttachments reports whether the message carries at least one attachment
func (m *FacebookMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}
