package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks

import (
	"context"
	"fmt"

	"vfast/config"
	"vfast/infras/kafka"
	"vfast/infras/otel"
	"vfast/internal/domains/notification/model"
	"vfast/shared/constant"

	"github.com/rs/zerolog/log"
	kafkaGo "github.com/segmentio/kafka-go"
)

// Notification publishes workflow events for downstream mailers. Delivery is best effort:
// a committed transition is never undone because an event could not be sent.
type Notification interface {
	Publish(ctx context.Context, events ...model.Event) (err error)
	Listen(ctx context.Context, handler func(event model.Event))
}

type serviceImpl struct {
	client kafka.Client
	config *config.Config
	otel   otel.Otel
}

func New(client kafka.Client, config *config.Config, otel otel.Otel) Notification {
	return &serviceImpl{
		client: client,
		config: config,
		otel:   otel,
	}
}

func (s *serviceImpl) Publish(ctx context.Context, events ...model.Event) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelEventScopeName, constant.OtelEventScopeName+".Publish")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if len(events) == 0 {
		return nil
	}

	if !s.config.Kafka.Enable {
		for _, event := range events {
			log.Info().
				Str("event", string(event.Type)).
				Str("booking_id", event.BookingID).
				Str("status", event.Status).
				Msg("Notification publishing disabled, event dropped")
		}

		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		// keyed by booking so one booking's events stay ordered within a partition
		messages[i] = kafka.Message{
			Key:     event.BookingID,
			Value:   event,
			Headers: map[string]string{model.HeaderEventType: string(event.Type)},
		}
	}

	err = s.client.SendMessages(ctx, s.config.Kafka.Topic.Notification, messages...)
	if err != nil {
		log.Error().Err(err).Int("count", len(events)).Msg("Failed to publish notification events")

		return fmt.Errorf("failed to publish notification events: %w", err)
	}

	return nil
}

// Listen consumes the notification topic until ctx is done. Undecodable messages are skipped.
func (s *serviceImpl) Listen(ctx context.Context, handler func(event model.Event)) {
	if !s.config.Kafka.Enable {
		log.Info().Msg("Kafka disabled, notification listener not started")

		return
	}

	s.client.Consume(ctx, s.config.Kafka.ConsumerGroup, s.config.Kafka.Topic.Notification, func(message kafkaGo.Message) {
		event, err := kafka.DecodeKafkaMessage[model.Event](message)
		if err != nil {
			log.Warn().Err(err).Str("key", string(message.Key)).Msg("Skipping undecodable notification event")

			return
		}

		handler(event)
	})
}

// LogHandler is the default Listen handler; it records each event in the audit log.
func LogHandler(event model.Event) {
	log.Info().
		Str("event_id", event.ID).
		Str("event", string(event.Type)).
		Str("booking_id", event.BookingID).
		Str("user_id", event.UserID).
		Str("status", event.Status).
		Str("previous_status", event.PreviousStatus).
		Strs("room_numbers", event.RoomNumbers).
		Time("occurred_at", event.OccurredAt).
		Msg("Notification event")
}
