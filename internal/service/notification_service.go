package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/pharmacy-auth/internal/config"
	"github.com/spec-kit/pharmacy-auth/internal/events"
)

// Mailer delivers verification codes out of band.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string, expiresAt time.Time) error
}

// LogMailer records deliveries in the log without the code itself.
type LogMailer struct {
	logger *zap.Logger
	from   string
}

// NewLogMailer builds a stub mailer.
func NewLogMailer(logger *zap.Logger, cfg config.NotificationConfig) *LogMailer {
	return &LogMailer{logger: logger, from: cfg.EmailFrom}
}

func (m *LogMailer) SendVerificationCode(_ context.Context, to, _ string, expiresAt time.Time) error {
	if strings.TrimSpace(m.from) == "" {
		return fmt.Errorf("no sender configured")
	}
	m.logger.Info("verification code dispatched",
		zap.String("from", m.from),
		zap.String("to", to),
		zap.Time("expires_at", expiresAt))
	return nil
}

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	mailer     Mailer
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, mailer Mailer) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		mailer:     mailer,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventVerificationCodeIssued, n.handleCodeIssued)
	n.dispatcher.Subscribe(events.EventSessionStarted, n.audit)
	n.dispatcher.Subscribe(events.EventSessionEnded, n.audit)
	n.dispatcher.Subscribe(events.EventOperatorAction, n.audit)
}

func (n *NotificationService) handleCodeIssued(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.VerificationCodeIssuedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if n.mailer == nil {
		return fmt.Errorf("no mailer configured")
	}
	return n.mailer.SendVerificationCode(ctx, payload.Email, payload.Code, payload.ExpiresAt)
}

func (n *NotificationService) audit(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("account_id", event.AccountID),
		zap.Any("payload", event.Payload))
	return nil
}
