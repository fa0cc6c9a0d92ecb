package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	aws_pkg "github.com/AymanAbdiMohamed/Donation-Platform-backend/pkg/aws"
	"go.uber.org/zap"
)

// EventPublisher delivers donation lifecycle events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event models.DonationEvent) error
}

// MetricsRecorder records business counters. *aws.MetricsClient satisfies it.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// SNSEventPublisher publishes donation events to an SNS topic.
type SNSEventPublisher struct {
	client   aws_pkg.SNSPublisher
	topicArn string
}

func NewSNSEventPublisher(client aws_pkg.SNSPublisher, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{client: client, topicArn: topicArn}
}

func (p *SNSEventPublisher) Publish(ctx context.Context, event models.DonationEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.topicArn, b)
}

// notifier fans ledger changes out to events and metrics. Both are optional
// and failures never reach the caller.
type notifier struct {
	events  EventPublisher
	metrics MetricsRecorder
	logger  *zap.Logger
}

func (n notifier) publish(ctx context.Context, eventType string, d *models.Donation) {
	if n.events == nil {
		return
	}
	event := models.NewDonationEvent(eventType, d)
	if err := n.events.Publish(ctx, event); err != nil {
		n.logger.Error("Failed to publish donation event",
			zap.String("event_type", eventType),
			zap.String("donation_id", event.DonationID),
			zap.Error(err),
		)
		return
	}
	n.logger.Info("Donation event published",
		zap.String("event_type", eventType),
		zap.String("donation_id", event.DonationID),
	)
}

func (n notifier) count(metricName string) {
	if n.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.metrics.RecordCount(ctx, metricName, map[string]string{"Service": "donation-service"}); err != nil {
			n.logger.Debug("Metric not recorded", zap.String("metric", metricName), zap.Error(err))
		}
	}()
}
