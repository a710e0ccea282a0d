package services

import (
	"fmt"
	"strings"

	"messenger-bot/internal/adapters/dto"
	"messenger-bot/internal/core/domain"
)

// Reply texts
const (
	ReplyGreeting   = "Hello! 👋 How can I help you today?"
	ReplyHelp       = "Available commands: hi, help, echo <text>"
	ReplyAttachment = "Thanks for the attachment!"
	ReplyFallback   = "I didn't understand that. Try typing 'hi'."

	echoPrefix = "echo "
)

// ComputeReply picks the reply for an inbound message.
// Text wins over attachments; keyword commands win over the generic echo.
// Matching uses the trimmed, lower-cased text; replies use the original text.
func ComputeReply(msg *dto.FacebookMessage) domain.ReplyMessage {
	reply := domain.ReplyMessage{Text: ReplyFallback}
	if msg == nil {
		return reply
	}

	switch {
	case msg.Text != "":
		reply.Text = replyForText(msg.Text)
	case msg.HasAttachments():
		reply.Text = ReplyAttachment
	}

	return reply
}

func replyForText(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))

	switch {
	case normalized == "hi" || normalized == "hello":
		return ReplyGreeting
	case normalized == "help":
		return ReplyHelp
	case strings.HasPrefix(normalized, echoPrefix):
		// Strip from the original so the remainder keeps its casing
		runes := []rune(text)
		return string(runes[len(echoPrefix):])
	default:
		return fmt.Sprintf(`You said: "%s" (this bot echoes)`, text)
	}
}

// PostbackReply acknowledges a button click with its payload token
func PostbackReply(pb *dto.FacebookPostback) domain.ReplyMessage {
	return domain.ReplyMessage{Text: "Postback received: " + pb.Payload}
}
