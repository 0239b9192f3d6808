package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write context must carry a deadline")
	}
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesRunKeyedReport(t *testing.T) {
	writer := &recordingWriter{}
	publisher, err := NewKafkaPublisher(KafkaPublisherConfig{Writer: writer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run := diamonds.SyncRun{
		RunID:             "run-7",
		FeedURL:           "https://feed.example/diamonds.json",
		StartedAtSeconds:  100,
		FinishedAtSeconds: 105,
		Status:            diamonds.SyncStatusCompleted,
		Inserted:          3,
		Updated:           4,
		Errors:            1,
	}
	if err := publisher.NotifySync(context.Background(), run); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	message := writer.messages[0]
	if string(message.Key) != "run-7" {
		t.Fatalf("unexpected key %q", message.Key)
	}

	var got SyncReportMessage
	if err := json.Unmarshal(message.Value, &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	want := SyncReportMessage{
		RunID:       "run-7",
		FeedURL:     "https://feed.example/diamonds.json",
		Status:      "completed",
		Inserted:    3,
		Updated:     4,
		Errors:      1,
		StartedAtS:  100,
		FinishedAtS: 105,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestKafkaPublisherPropagatesWriteErrors(t *testing.T) {
	writeErr := errors.New("broker unavailable")
	publisher, err := NewKafkaPublisher(KafkaPublisherConfig{Writer: &recordingWriter{err: writeErr}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := publisher.NotifySync(context.Background(), diamonds.SyncRun{RunID: "r"}); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestNewKafkaPublisherRequiresBrokersAndTopic(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaPublisherConfig{Topic: "t"}); !errors.Is(err, errMissingBrokers) {
		t.Fatalf("expected missing brokers error, got %v", err)
	}
	if _, err := NewKafkaPublisher(KafkaPublisherConfig{Brokers: []string{"k:9092"}}); !errors.Is(err, errMissingTopic) {
		t.Fatalf("expected missing topic error, got %v", err)
	}
	publisher, err := NewKafkaPublisher(KafkaPublisherConfig{Brokers: []string{"k:9092"}, Topic: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := publisher.writer.(*kafka.Writer); !ok {
		t.Fatalf("expected a kafka writer, got %T", publisher.writer)
	}
}
