package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/memo-service/internal/config"
	"github.com/spec-kit/memo-service/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventMemoCreated, n.handleMemoCreated)
	n.dispatcher.Subscribe(events.EventMemoSent, n.handleMemoSent)
	n.dispatcher.Subscribe(events.EventMemoMinuteAdded, n.handleMemoMinuteAdded)
	n.dispatcher.Subscribe(events.EventMemoStatusChanged, n.handleMemoStatusChanged)
	n.dispatcher.Subscribe(events.EventMemoForwarded, n.handleMemoForwarded)
	n.dispatcher.Subscribe(events.EventMemoArchived, n.handleMemoArchived)
	n.dispatcher.Subscribe(events.EventMemoDeleted, n.handleMemoDeleted)
}

func (n *NotificationService) handleMemoCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("MemoCreated", zap.String("memo_id", event.MemoID), zap.String("actor", event.Actor))
	return nil
}

func (n *NotificationService) handleMemoSent(ctx context.Context, event events.Event) error {
	n.logger.Info("MemoSent", zap.String("memo_id", event.MemoID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.MemoSentPayload); ok {
		for _, addr := range append(append([]string{}, payload.Recipients...), payload.Chain...) {
			n.sendEmailNotificationStub(ctx, event, addr)
		}
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMemoMinuteAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("MemoMinuteAdded", zap.String("memo_id", event.MemoID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMemoStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("MemoStatusChanged", zap.String("memo_id", event.MemoID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMemoForwarded(ctx context.Context, event events.Event) error {
	n.logger.Info("MemoForwarded", zap.String("memo_id", event.MemoID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.MemoForwardedPayload); ok {
		for _, addr := range payload.Recipients {
			n.sendEmailNotificationStub(ctx, event, addr)
		}
	}
	return nil
}

func (n *NotificationService) handleMemoArchived(ctx context.Context, event events.Event) error {
	n.logger.Info("MemoArchived", zap.String("memo_id", event.MemoID), zap.String("actor", event.Actor))
	return nil
}

func (n *NotificationService) handleMemoDeleted(ctx context.Context, event events.Event) error {
	n.logger.Info("MemoDeleted", zap.String("memo_id", event.MemoID), zap.String("actor", event.Actor))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event, to string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("memo_id", event.MemoID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("memo_id", event.MemoID),
		zap.String("event_type", string(event.Type)))
}
