package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// TokenSource resolves a member's registered device tokens
type TokenSource interface {
	ListDeviceTokens(ctx context.Context, userID int64) ([]string, error)
}

// FCMPushSender delivers push notifications through Firebase Cloud
// Messaging.
type FCMPushSender struct {
	client *messaging.Client
	tokens TokenSource
}

// NewFCMPushSender builds the Firebase messaging client from a
// credentials file path or inline JSON, whichever is set.
func NewFCMPushSender(ctx context.Context, credentialsPath, credentialsJSON string, tokens TokenSource) (*FCMPushSender, error) {
	var opt option.ClientOption
	switch {
	case credentialsPath != "":
		opt = option.WithCredentialsFile(credentialsPath)
	case credentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(credentialsJSON))
	default:
		return nil, errors.New("firebase credentials path or JSON must be set")
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	return &FCMPushSender{client: client, tokens: tokens}, nil
}

func (s *FCMPushSender) Send(ctx context.Context, msg *PushMessage) error {
	tokens, err := s.tokens.ListDeviceTokens(ctx, msg.UserID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		log.Printf("push: member %d has no registered devices, skipping", msg.UserID)
		return nil
	}

	notification := &messaging.Notification{
		Title: msg.Title,
		Body:  msg.Body,
	}
	android := &messaging.AndroidConfig{
		Priority: fcmPriority(msg.Priority),
	}
	apns := &messaging.APNSConfig{
		Headers: map[string]string{
			"apns-priority": apnsPriority(msg.Priority),
		},
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Alert: &messaging.ApsAlert{Title: msg.Title, Body: msg.Body},
			},
		},
	}

	messages := make([]*messaging.Message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, &messaging.Message{
			Token:        token,
			Notification: notification,
			Data:         msg.Data,
			Android:      android,
			APNS:         apns,
		})
	}

	resp, err := s.client.SendAll(ctx, messages)
	if err != nil {
		pushDeliveries.WithLabelValues("error").Inc()
		return fmt.Errorf("fcm send for member %d: %w", msg.UserID, err)
	}
	if resp.FailureCount > 0 {
		for idx, r := range resp.Responses {
			if r.Error != nil {
				log.Printf("push: delivery to token %s failed: %v", tokens[idx], r.Error)
			}
		}
	}
	// At least one device reached counts as delivered; per-token
	// failures are mostly stale registrations.
	if resp.SuccessCount == 0 {
		pushDeliveries.WithLabelValues("error").Inc()
		return fmt.Errorf("fcm send for member %d: all %d tokens failed", msg.UserID, len(tokens))
	}
	pushDeliveries.WithLabelValues("ok").Inc()
	return nil
}

func fcmPriority(p Priority) string {
	if p == PriorityLow {
		return "normal"
	}
	return "high"
}

func apnsPriority(p Priority) string {
	if p == PriorityLow {
		return "5"
	}
	return "10"
}

// MockPushSender records sends for tests and local runs
type MockPushSender struct {
	mu   sync.Mutex
	Sent []*PushMessage
	Err  error
}

func NewMockPushSender() *MockPushSender {
	return &MockPushSender{}
}

func (m *MockPushSender) Send(ctx context.Context, msg *PushMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, msg)
	log.Printf("mock push: %q to member %d", msg.Title, msg.UserID)
	return nil
}

func (m *MockPushSender) SentTo(userID int64) []*PushMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PushMessage
	for _, msg := range m.Sent {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out
}
