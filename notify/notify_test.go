package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/leave-engine/leave"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, leave.Event) error { return f.err }

func sampleEvent() leave.Event {
	return leave.Event{
		Type:       leave.ApplicationEvent(leave.StatusApproved),
		EmployeeID: "emp-1",
		Payload:    map[string]any{"application_id": "app-1"},
		OccurredAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestLogNotifier_WritesEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), sampleEvent()))

	entries := logs.FilterMessage("leave event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "application.approved", fields["event"])
	assert.Equal(t, "emp-1", fields["employee_id"])
	assert.Equal(t, "app-1", fields["application_id"])
}

func TestKafkaNotifier_PublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifier(w, "leave-events")

	require.NoError(t, n.Notify(context.Background(), sampleEvent()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "leave-events", msg.Topic)
	assert.Equal(t, []byte("emp-1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "application.approved", string(msg.Headers[0].Value))

	var decoded message
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "application.approved", decoded.Type)
	assert.Equal(t, "emp-1", decoded.EmployeeID)
	assert.Equal(t, "app-1", decoded.Payload["application_id"])

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaWriter_DoesNotBlockCallers(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	w := NewKafkaWriter([]string{"localhost:9092"}, zap.New(core))
	t.Cleanup(func() { w.Close() })

	assert.True(t, w.Async)
	assert.Equal(t, kafkaBatchTimeout, w.BatchTimeout)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	require.NotNil(t, w.Completion)

	// A successful batch logs nothing; a failed one logs every message.
	w.Completion([]kafka.Message{{Topic: "leave-events", Key: []byte("emp-1")}}, nil)
	assert.Zero(t, logs.Len())

	w.Completion([]kafka.Message{
		{Topic: "leave-events", Key: []byte("emp-1")},
		{Topic: "leave-events", Key: []byte("emp-2")},
	}, errors.New("broker unreachable"))
	entries := logs.FilterMessage("leave event not delivered").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "emp-2", entries[1].ContextMap()["employee_id"])
	assert.Equal(t, "broker unreachable", entries[1].ContextMap()["error"])
}

func TestKafkaNotifier_WrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	n := NewKafkaNotifier(&fakeWriter{err: boom}, "leave-events")

	err := n.Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	w := &fakeWriter{}
	boom := errors.New("smtp down")
	m := Multi{failingNotifier{err: boom}, NewKafkaNotifier(w, "t")}

	err := m.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, w.messages, 1, "a failing notifier must not block the others")
}
