// Package push delivers device notifications through Firebase Cloud Messaging.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var (
	// ErrPushDisabled signals that no FCM credentials are configured.
	ErrPushDisabled = errors.New("push: delivery disabled")
	// ErrMissingToken signals the recipient has no registered device.
	ErrMissingToken = errors.New("push: device token is required")
)

// Message is one device notification.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers a Message to a device.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type fcmSender struct {
	client messagingClient
	logger *zap.Logger
}

type disabledSender struct{}

func (disabledSender) Send(context.Context, Message) error {
	return ErrPushDisabled
}

// Disabled returns a Sender that refuses every message with ErrPushDisabled.
func Disabled() Sender {
	return disabledSender{}
}

// NewFCMSender builds an FCM-backed Sender from a service account file. An empty path yields
// the disabled sender so development setups run without credentials.
func NewFCMSender(ctx context.Context, credentialsFile string, logger *zap.Logger) (Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(credentialsFile) == "" {
		logger.Info("push notifications disabled: no credentials configured")
		return Disabled(), nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("push: initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: messaging client: %w", err)
	}

	logger.Info("push notifications enabled")
	return &fcmSender{client: client, logger: logger}, nil
}

func (s *fcmSender) Send(ctx context.Context, msg Message) error {
	token := strings.TrimSpace(msg.Token)
	if token == "" {
		return ErrMissingToken
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}
	if len(msg.Data) > 0 {
		message.Data = msg.Data
	}

	id, err := s.client.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("push: token unregistered: %w", err)
		}
		return fmt.Errorf("push: send: %w", err)
	}
	s.logger.Debug("push message sent", zap.String("message_id", id))
	return nil
}
