package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaNotifierPublishesJSON(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{writer: w}

	err := n.Send(context.Background(), Message{
		Kind:        KindFundingSettled,
		Destination: "42",
		Body:        "wallet 3 credited 30",
		Attributes:  map[string]string{"record_id": "abc"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "42" {
		t.Fatalf("unexpected key %q", w.msgs[0].Key)
	}

	var decoded Message
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindFundingSettled || decoded.Attributes["record_id"] != "abc" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if decoded.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be stamped")
	}
}

func TestKafkaNotifierWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	n := &KafkaNotifier{writer: &fakeWriter{err: boom}}
	if err := n.Send(context.Background(), Message{Kind: KindAuditGap}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
