package kafka

import (
	"context"
	"encoding/json"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DonationEventProducer publishes donation events to a Kafka topic, keyed
// by donation id so events for one donation stay ordered.
type DonationEventProducer struct {
	writer messageWriter
	logger *zap.Logger
}

func NewDonationEventProducer(brokers []string, topic string, logger *zap.Logger) *DonationEventProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info("Kafka donation producer initialized", zap.String("topic", topic), zap.Strings("brokers", brokers))
	return &DonationEventProducer{writer: w, logger: logger}
}

func (p *DonationEventProducer) Publish(ctx context.Context, event models.DonationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.DonationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *DonationEventProducer) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Warn("Kafka producer close failed", zap.Error(err))
		return
	}
	p.logger.Info("Kafka producer closed")
}
