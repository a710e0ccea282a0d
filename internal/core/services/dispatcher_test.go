package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-bot/internal/adapters/dto"
	"messenger-bot/internal/core/domain"
)

// ============================================================================
// Mock Sender
// ============================================================================

// MockSender mocks the MessageSender port
type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendMessage(ctx context.Context, recipientID string, reply domain.ReplyMessage) domain.SendOutcome {
	args := m.Called(ctx, recipientID, reply)
	return args.Get(0).(domain.SendOutcome)
}

func sentOutcome(recipientID string) domain.SendOutcome {
	return domain.SendOutcome{RecipientID: recipientID, Status: domain.SendStatusSent, MessageID: "m_" + recipientID}
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func createTestDispatcher() (*Dispatcher, *MockSender) {
	sender := new(MockSender)
	return NewDispatcher(sender, zerolog.Nop()), sender
}

// parsePayload decodes a JSON literal the same way the HTTP handler does
func parsePayload(t *testing.T, body string) *dto.FacebookWebhookRequest {
	t.Helper()
	var payload dto.FacebookWebhookRequest
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	return &payload
}

// ============================================================================
// Unit Tests
// ============================================================================

func TestDispatch_HelpMessage(t *testing.T) {
	dispatcher, sender := createTestDispatcher()
	payload := parsePayload(t, `{"object":"page","entry":[{"messaging":[{"sender":{"id":"U1"},"message":{"text":"help"}}]}]}`)

	sender.On("SendMessage", mock.Anything, "U1", domain.ReplyMessage{Text: ReplyHelp}).
		Return(sentOutcome("U1")).Once()

	summary, err := dispatcher.Dispatch(context.Background(), payload)
	require.NoError(t, err)

	sender.AssertExpectations(t)
	sender.AssertNumberOfCalls(t, "SendMessage", 1)
	assert.Equal(t, 1, summary.Messages)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 0, summary.Failed)
	assert.NotEmpty(t, summary.DeliveryID)
}

func TestDispatch_Postback(t *testing.T) {
	dispatcher, sender := createTestDispatcher()
	payload := parsePayload(t, `{"object":"page","entry":[{"messaging":[{"sender":{"id":"U2"},"postback":{"title":"Buy","payload":"BUY_NOW"}}]}]}`)

	sender.On("SendMessage", mock.Anything, "U2", domain.ReplyMessage{Text: "Postback received: BUY_NOW"}).
		Return(sentOutcome("U2")).Once()

	summary, err := dispatcher.Dispatch(context.Background(), payload)
	require.NoError(t, err)

	sender.AssertExpectations(t)
	assert.Equal(t, 1, summary.Postbacks)
}

func TestDispatch_NotPage(t *testing.T) {
	dispatcher, sender := createTestDispatcher()
	payload := parsePayload(t, `{"object":"instagram","entry":[{"messaging":[{"sender":{"id":"U1"},"message":{"text":"hi"}}]}]}`)

	_, err := dispatcher.Dispatch(context.Background(), payload)

	assert.ErrorIs(t, err, ErrNotPageSubscription)
	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_SkipsUnprocessableEvents(t *testing.T) {
	dispatcher, sender := createTestDispatcher()
	payload := parsePayload(t, `{"object":"page","entry":[
		{"messaging":[
			{"message":{"text":"no sender"}},
			{"sender":{"id":"U1"},"read":{"watermark":1}},
			{"postback":{"payload":"NO_SENDER"}}
		]},
		{"id":"no-messaging"},
		{"messaging":[]}
	]}`)

	summary, err := dispatcher.Dispatch(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Skipped)
	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_EmptyEntryList(t *testing.T) {
	dispatcher, sender := createTestDispatcher()

	_, err := dispatcher.Dispatch(context.Background(), parsePayload(t, `{"object":"page","entry":[]}`))

	assert.NoError(t, err)
	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing entry", `{"object":"page"}`},
		{"null entry", `{"object":"page","entry":null}`},
		{"null entry element", `{"object":"page","entry":[null]}`},
		{"null messaging element", `{"object":"page","entry":[{"messaging":[null]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher, sender := createTestDispatcher()

			_, err := dispatcher.Dispatch(context.Background(), parsePayload(t, tt.body))

			assert.ErrorIs(t, err, ErrMalformedPayload)
			sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDispatch_NilPayload(t *testing.T) {
	dispatcher, _ := createTestDispatcher()
	_, err := dispatcher.Dispatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDispatch_MalformedAfterSendsStartedStillJoins(t *testing.T) {
	dispatcher, sender := createTestDispatcher()
	payload := parsePayload(t, `{"object":"page","entry":[
		{"messaging":[{"sender":{"id":"U1"},"message":{"text":"hi"}}]},
		null
	]}`)

	var finished atomic.Bool
	sender.On("SendMessage", mock.Anything, "U1", domain.ReplyMessage{Text: ReplyGreeting}).
		Run(func(mock.Arguments) {
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
		}).
		Return(sentOutcome("U1")).Once()

	summary, err := dispatcher.Dispatch(context.Background(), payload)

	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.True(t, finished.Load(), "dispatch must wait for started sends")
	assert.Equal(t, 1, summary.Sent)
}

func TestDispatch_WaitsForAllSends(t *testing.T) {
	dispatcher, sender := createTestDispatcher()
	payload := parsePayload(t, `{"object":"page","entry":[
		{"messaging":[
			{"sender":{"id":"A"},"message":{"text":"hi"}},
			{"sender":{"id":"B"},"message":{"text":"help"}}
		]},
		{"messaging":[
			{"sender":{"id":"C"},"postback":{"payload":"P"}}
		]}
	]}`)

	var (
		mu        sync.Mutex
		completed []string
	)
	record := func(args mock.Arguments) {
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		completed = append(completed, args.String(1))
		mu.Unlock()
	}

	sender.On("SendMessage", mock.Anything, "A", domain.ReplyMessage{Text: ReplyGreeting}).Run(record).Return(sentOutcome("A")).Once()
	sender.On("SendMessage", mock.Anything, "B", domain.ReplyMessage{Text: ReplyHelp}).Run(record).Return(sentOutcome("B")).Once()
	sender.On("SendMessage", mock.Anything, "C", domain.ReplyMessage{Text: "Postback received: P"}).Run(record).Return(sentOutcome("C")).Once()

	summary, err := dispatcher.Dispatch(context.Background(), payload)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"A", "B", "C"}, completed)
	assert.Equal(t, 3, summary.Sent)
	sender.AssertExpectations(t)
}

func TestDispatch_FailedSendsAreContained(t *testing.T) {
	dispatcher, sender := createTestDispatcher()
	payload := parsePayload(t, `{"object":"page","entry":[{"messaging":[
		{"sender":{"id":"U1"},"message":{"text":"hi"}},
		{"sender":{"id":"U2"},"message":{"text":"hi"}},
		{"sender":{"id":"U3"},"message":{"text":"hi"}}
	]}]}`)

	sender.On("SendMessage", mock.Anything, "U1", mock.Anything).Return(domain.SendOutcome{
		RecipientID: "U1", Status: domain.SendStatusFailed, StatusCode: 400, Err: errors.New("invalid recipient"),
	})
	sender.On("SendMessage", mock.Anything, "U2", mock.Anything).Return(domain.SendOutcome{
		RecipientID: "U2", Status: domain.SendStatusSkipped, Err: errors.New("missing token"),
	})
	sender.On("SendMessage", mock.Anything, "U3", mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(domain.SendOutcome{})

	var summary DispatchSummary
	var err error
	assert.NotPanics(t, func() {
		summary, err = dispatcher.Dispatch(context.Background(), payload)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 3, summary.Failed)
}

func TestDispatch_MessageAndPostbackInOneEvent(t *testing.T) {
	dispatcher, sender := createTestDispatcher()
	payload := parsePayload(t, `{"object":"page","entry":[{"messaging":[
		{"sender":{"id":"U1"},"message":{"text":"hello"},"postback":{"payload":"X"}}
	]}]}`)

	sender.On("SendMessage", mock.Anything, "U1", domain.ReplyMessage{Text: ReplyGreeting}).Return(sentOutcome("U1")).Once()
	sender.On("SendMessage", mock.Anything, "U1", domain.ReplyMessage{Text: "Postback received: X"}).Return(sentOutcome("U1")).Once()

	_, err := dispatcher.Dispatch(context.Background(), payload)
	require.NoError(t, err)
	sender.AssertExpectations(t)
}
