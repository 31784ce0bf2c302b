// Package kafkasink forwards every payload allowed for it to a Kafka topic.
package kafkasink

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"pulse/internal/config"
	"pulse/internal/constants"
	"pulse/internal/integration"
	"pulse/internal/logger"
	"pulse/pkg/errors"
	"pulse/pkg/jsoncodec"
	"pulse/pkg/metrics"
	"pulse/pkg/models"
	"pulse/pkg/tracing"
)

// Key is the integrations-map key of the sink.
const Key = "Kafka"

const headerEventType = "event-type"

// Writer is the part of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns an async writer. Messages carry their own topic so project
// settings can redirect them; payloads for the same user land on the same partition.
func NewWriter(cfg config.KafkaConfig, log logger.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        true,
		Completion:   completion(log),
		ErrorLogger:  kafka.LoggerFunc(log.Errorf),
	}
}

func completion(log logger.Logger) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		status := "success"
		if err != nil {
			status = "error"
			log.Errorw("Failed to write kafka messages", "count", len(messages), "error", err)
		}
		for _, m := range messages {
			metrics.IncKafkaMessagesWritten(m.Topic, status)
		}
	}
}

type factory struct {
	writer Writer
	topic  string
}

// NewFactory builds sinks sharing writer. The sink is created even when project
// settings do not list it; a "topic" setting overrides the configured topic.
func NewFactory(writer Writer, topic string) integration.Factory {
	return &factory{writer: writer, topic: topic}
}

func (f *factory) Key() string {
	return Key
}

func (f *factory) Local() bool {
	return true
}

func (f *factory) Create(settings models.ValueMap, log logger.Logger) (integration.Integration, error) {
	topic := f.topic
	if t := settings.GetString("topic"); t != "" {
		topic = t
	}
	if topic == "" {
		return nil, errors.InvalidArgument("kafka topic is required")
	}
	return &Sink{writer: f.writer, topic: topic, log: log}, nil
}

// Sink publishes payloads as JSON messages keyed by the payload's current id.
type Sink struct {
	integration.Base
	writer Writer
	topic  string
	log    logger.Logger
}

func (s *Sink) Identify(ctx context.Context, p models.Payload) error { return s.publish(ctx, p) }
func (s *Sink) Group(ctx context.Context, p models.Payload) error    { return s.publish(ctx, p) }
func (s *Sink) Alias(ctx context.Context, p models.Payload) error    { return s.publish(ctx, p) }
func (s *Sink) Track(ctx context.Context, p models.Payload) error    { return s.publish(ctx, p) }
func (s *Sink) Screen(ctx context.Context, p models.Payload) error   { return s.publish(ctx, p) }

func (s *Sink) publish(ctx context.Context, p models.Payload) error {
	body, err := jsoncodec.Marshal(p)
	if err != nil {
		return errors.ErrPermanentDelivery.WithCause(err)
	}

	headers := []kafka.Header{{Key: headerEventType, Value: []byte(p.Type)}}
	headers = tracing.InjectTraceContext(ctx, headers)

	key := p.UserID
	if key == "" {
		key = p.AnonymousID
	}

	start := time.Now()
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic:   s.topic,
		Key:     []byte(key),
		Value:   body,
		Headers: headers,
		Time:    start,
	})
	metrics.ObserveKafkaWriteDuration(s.topic, time.Since(start))
	if err != nil {
		metrics.IncKafkaMessagesWritten(s.topic, "error")
		return errors.ErrTransientDelivery.WithCause(err)
	}

	metrics.ObserveKafkaMessageSize(s.topic, len(body))
	s.log.DebugwCtx(ctx, "Payload written to kafka", "topic", s.topic, "type", p.Type)
	return nil
}

// Topic is where this sink writes.
func (s *Sink) Topic() string {
	return s.topic
}

func (s *Sink) Underlying() any {
	return s.writer
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
