package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/segmentio/kafka-go"

	"github.com/JonMunkholm/shiptrack/internal/core"
)

// fakeWriter records messages written.
type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvents() []core.ETAChangedEvent {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []core.ETAChangedEvent{
		{
			ManifestID: "m1", RunID: "r1", RecordID: 1,
			TrackingNumber: "MSCU1234567", Carrier: "MSC", Mode: core.ModeSea,
			SystemETA: "15/03/2023", LiveETA: "20/03/2023", Status: "In Transit", OccurredAt: at,
		},
		{
			ManifestID: "m1", RunID: "r1", RecordID: 3,
			TrackingNumber: "098-12345678", Carrier: "Unknown", Mode: core.ModeAir,
			SystemETA: "01/03/2024", LiveETA: "02/03/2024", Status: "Departed", OccurredAt: at,
		},
	}
}

func TestPublishETAChanged(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaWithWriter(fw, quietLogger())

	events := sampleEvents()
	if err := p.PublishETAChanged(context.Background(), events); err != nil {
		t.Fatalf("PublishETAChanged() error: %v", err)
	}
	if len(fw.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(fw.msgs))
	}

	for i, msg := range fw.msgs {
		if string(msg.Key) != events[i].TrackingNumber {
			t.Errorf("msg[%d].Key = %q, want %q", i, msg.Key, events[i].TrackingNumber)
		}
		if !msg.Time.Equal(events[i].OccurredAt) {
			t.Errorf("msg[%d].Time = %v", i, msg.Time)
		}

		var got core.ETAChangedEvent
		if err := json.Unmarshal(msg.Value, &got); err != nil {
			t.Fatalf("msg[%d] value is not JSON: %v", i, err)
		}
		if diff := cmp.Diff(events[i], got); diff != "" {
			t.Errorf("msg[%d] payload mismatch (-want +got):\n%s", i, diff)
		}

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		want := map[string]string{"event-type": EventETAChanged, "manifest-id": "m1"}
		if diff := cmp.Diff(want, headers); diff != "" {
			t.Errorf("msg[%d] headers mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestPublishETAChanged_Empty(t *testing.T) {
	fw := &fakeWriter{err: errors.New("must not be called")}
	p := NewKafkaWithWriter(fw, quietLogger())

	if err := p.PublishETAChanged(context.Background(), nil); err != nil {
		t.Errorf("PublishETAChanged(nil) error = %v, want nil", err)
	}
}

func TestPublishETAChanged_WriteError(t *testing.T) {
	broker := errors.New("broker unavailable")
	p := NewKafkaWithWriter(&fakeWriter{err: broker}, quietLogger())

	err := p.PublishETAChanged(context.Background(), sampleEvents())
	if !errors.Is(err, broker) {
		t.Errorf("PublishETAChanged() error = %v, want wrapped broker error", err)
	}
}

func TestKafka_Close(t *testing.T) {
	fw := &fakeWriter{}
	if err := NewKafkaWithWriter(fw, nil).Close(); err != nil {
		t.Fatal(err)
	}
	if !fw.closed {
		t.Error("Close() did not close the writer")
	}
}

func TestNop(t *testing.T) {
	var n Nop
	if err := n.PublishETAChanged(context.Background(), sampleEvents()); err != nil {
		t.Errorf("Nop.PublishETAChanged() error = %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("Nop.Close() error = %v", err)
	}
}
