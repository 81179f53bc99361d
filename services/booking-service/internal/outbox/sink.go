package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/salonbook/salonbook/libs/kafkax"
	otelx "github.com/salonbook/salonbook/libs/otel"
)

const contentTypeJSON = "application/json"

// Sink delivers a batch of outbox records to a broker. A batch is acknowledged only
// when Publish returns nil.
type Sink interface {
	Publish(ctx context.Context, records []Record) error
	Close() error
}

type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers configured")
	}
	return &KafkaSink{writer: kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.Hash{},
	})}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, records []Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, kafkaMessage(ctx, r))
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// kafkaMessage keys by aggregate so every event of one appointment lands on one partition.
func kafkaMessage(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	msg := kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.EventHeaders(r.EventID, r.EventType, contentTypeJSON),
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}

type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// DialAMQP connects to RabbitMQ and declares a durable topic exchange that receives
// every event with its event type as routing key.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("amqp sink: url is required")
	}
	if exchange == "" {
		exchange = "salonbook.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, records []Record) error {
	for _, r := range records {
		if err := s.ch.PublishWithContext(ctx,
			s.exchange,
			r.EventType, // routing key
			false,       // mandatory
			false,       // immediate
			amqpPublishing(ctx, r),
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *AMQPSink) Close() error {
	return errors.Join(s.ch.Close(), s.conn.Close())
}

func amqpPublishing(ctx context.Context, r Record) amqp.Publishing {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(msgCtx, carrier)

	headers := amqp.Table{
		"event_type":     r.EventType,
		"aggregate_type": r.AggregateType,
		"aggregate_id":   r.AggregateID,
	}
	for k, v := range carrier {
		headers[k] = v
	}
	return amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    r.EventID,
		Type:         r.EventType,
		Timestamp:    r.CreatedAt.UTC(),
		Headers:      headers,
		Body:         r.Payload,
	}
}
