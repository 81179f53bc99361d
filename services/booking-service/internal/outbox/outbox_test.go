package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/salonbook/salonbook/libs/kafkax"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

const testTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestAppointmentEvents(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	appt := model.Appointment{
		ID:              "appt-1",
		TenantID:        "tenant-1",
		ServiceID:       "svc-1",
		StaffID:         "staff-1",
		ClientName:      "Jane",
		Date:            day,
		StartTime:       day.Add(14 * time.Hour),
		DurationMinutes: 45,
		Status:          model.StatusPending,
		TotalPrice:      decimal.RequireFromString("45"),
		DepositAmount:   decimal.RequireFromString("20"),
	}

	evt, err := AppointmentBooked(appt, day)
	if err != nil {
		t.Fatalf("AppointmentBooked: %v", err)
	}
	if evt.EventType != EventAppointmentBooked || evt.AggregateID != "appt-1" || evt.AggregateType != AggregateAppointment {
		t.Fatalf("unexpected envelope: %+v", evt)
	}
	var p AppointmentPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Date != "2024-06-10" || p.TotalPrice != "45.00" || p.DepositAmount != "20.00" || p.Status != "pending" || p.PreviousStatus != "" {
		t.Fatalf("unexpected payload: %+v", p)
	}

	appt.Status = model.StatusCancelled
	evt, err = AppointmentCancelled(appt, model.StatusPending, day)
	if err != nil {
		t.Fatalf("AppointmentCancelled: %v", err)
	}
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if evt.EventType != EventAppointmentCancelled || p.Status != "cancelled" || p.PreviousStatus != "pending" {
		t.Fatalf("unexpected cancelled event: %s %+v", evt.EventType, p)
	}
}

func withTraceContextPropagator(t *testing.T) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
}

func TestKafkaMessage(t *testing.T) {
	withTraceContextPropagator(t)
	msg := kafkaMessage(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   EventAppointmentBooked,
		Payload:     []byte(`{}`),
		Traceparent: testTraceparent,
	})
	if msg.Topic != EventAppointmentBooked || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected topic/key: %s %s", msg.Topic, msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") != "evt-1" || kafkax.HeaderValue(msg.Headers, "content_type") != contentTypeJSON {
		t.Fatalf("missing metadata headers: %+v", msg.Headers)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != testTraceparent {
		t.Fatalf("expected stored trace context to be forwarded, got %q", got)
	}
}

func TestAMQPPublishing(t *testing.T) {
	withTraceContextPropagator(t)
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	pub := amqpPublishing(context.Background(), Record{
		EventID:       "evt-2",
		AggregateType: AggregateAppointment,
		AggregateID:   "appt-2",
		EventType:     EventAppointmentCancelled,
		Payload:       []byte(`{"a":1}`),
		Traceparent:   testTraceparent,
		CreatedAt:     created,
	})
	if pub.DeliveryMode != amqp.Persistent || pub.MessageId != "evt-2" || pub.Type != EventAppointmentCancelled {
		t.Fatalf("unexpected publishing: %+v", pub)
	}
	if !pub.Timestamp.Equal(created) || string(pub.Body) != `{"a":1}` {
		t.Fatalf("unexpected body/timestamp: %+v", pub)
	}
	if pub.Headers["traceparent"] != testTraceparent || pub.Headers["aggregate_id"] != "appt-2" {
		t.Fatalf("unexpected headers: %+v", pub.Headers)
	}
}

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeBeginner struct{ txs []*fakeTx }

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

type fakeRecords struct {
	pending []Record
	marked  []int64
}

func (f *fakeRecords) FetchUnpublished(_ context.Context, _ pgx.Tx, limit int) ([]Record, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeRecords) MarkPublished(_ context.Context, _ pgx.Tx, ids []int64) error {
	f.marked = append(f.marked, ids...)
	return nil
}

type fakeSink struct {
	err       error
	published []Record
}

func (s *fakeSink) Publish(_ context.Context, records []Record) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, records...)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func newTestPublisher(records *fakeRecords, sink *fakeSink, beginner *fakeBeginner) *Publisher {
	return &Publisher{
		pool:      beginner,
		repo:      records,
		sink:      sink,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		pollEvery: time.Millisecond,
		batchSize: 2,
	}
}

func TestPublishBatchMarksOnlyDeliveredRecords(t *testing.T) {
	records := &fakeRecords{pending: []Record{
		{ID: 1, EventType: EventAppointmentBooked},
		{ID: 2, EventType: EventAppointmentCancelled},
		{ID: 3, EventType: EventAppointmentBooked},
	}}
	sink := &fakeSink{}
	beginner := &fakeBeginner{}
	p := newTestPublisher(records, sink, beginner)

	n, err := p.publishBatch(context.Background())
	if err != nil {
		t.Fatalf("publishBatch: %v", err)
	}
	if n != 2 || len(sink.published) != 2 {
		t.Fatalf("expected a batch of 2, got n=%d published=%d", n, len(sink.published))
	}
	if len(records.marked) != 2 || records.marked[0] != 1 || records.marked[1] != 2 {
		t.Fatalf("unexpected marked ids: %v", records.marked)
	}
	if !beginner.txs[0].committed {
		t.Fatal("expected commit")
	}
}

func TestPublishBatchLeavesRecordsOnSinkFailure(t *testing.T) {
	records := &fakeRecords{pending: []Record{{ID: 7, EventType: EventAppointmentBooked}}}
	beginner := &fakeBeginner{}
	p := newTestPublisher(records, &fakeSink{err: errors.New("broker down")}, beginner)

	if _, err := p.publishBatch(context.Background()); err == nil {
		t.Fatal("expected sink error")
	}
	if len(records.marked) != 0 {
		t.Fatalf("nothing may be marked after a failed publish, got %v", records.marked)
	}
	if beginner.txs[0].committed || !beginner.txs[0].rolledBack {
		t.Fatal("expected rollback")
	}
}

func TestRunWithoutSinkReturns(t *testing.T) {
	p := NewPublisher(nil, NewRepository(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when no sink is configured")
	}
}
