package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_Publishes(t *testing.T) {
	w := &fakeWriter{}
	n := newKafkaNotifier(w, nil)

	n.Notify(context.Background(), Event{
		Level:     LevelSuccess,
		Action:    ActionAdd,
		SessionID: "sess-1",
		ProductID: "p1",
		Variant:   "42",
		Quantity:  2,
	})

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "sess-1", string(msg.Key))
	assert.Equal(t, "cart.add", string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "p1", got.ProductID)
	assert.Equal(t, 2, got.Quantity)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := newKafkaNotifier(&fakeWriter{err: errors.New("broker down")}, logger)

	n.Notify(context.Background(), Event{Level: LevelError, Action: ActionRemove})

	assert.Contains(t, buf.String(), "failed to publish cart event")
	assert.Contains(t, buf.String(), "broker down")
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var buf bytes.Buffer
	m := Multi{a, b, NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))}

	m.Notify(context.Background(), Event{Level: LevelError, Action: ActionClear, Error: "remote down"})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), "remote down")
}
