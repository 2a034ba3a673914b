package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestNATSNotifierPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSNotifier(pub, "")

	ev := NewEvent(KindBatchFailed, "reindex batch failed", errors.New("disk full"))
	ev.Resources = []string{"http://example.org/a"}
	require.NoError(t, n.Notify(context.Background(), ev))

	assert.Equal(t, DefaultSubject, pub.subject)
	var got Event
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, KindBatchFailed, got.Kind)
	assert.Equal(t, "disk full", got.Error)
	assert.Equal(t, []string{"http://example.org/a"}, got.Resources)
}

func TestNATSNotifierPublishError(t *testing.T) {
	n := NewNATSNotifier(&fakePublisher{err: nats.ErrConnectionClosed}, "ops")
	err := n.Notify(context.Background(), NewEvent(KindOptimizeFailed, "x", nil))
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestConnectNATSFailure(t *testing.T) {
	old := natsConnect
	defer func() { natsConnect = old }()
	natsConnect = func(string, ...nats.Option) (*nats.Conn, error) {
		return nil, nats.ErrNoServers
	}

	_, _, err := ConnectNATS("", "")
	assert.ErrorIs(t, err, nats.ErrNoServers)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.Notify(context.Background(), NewEvent(KindReindexFailed, "full reindex failed", errors.New("boom"))))
	assert.Contains(t, buf.String(), "full reindex failed")
	assert.Contains(t, buf.String(), "kind=reindex_failed")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestMultiJoinsErrors(t *testing.T) {
	first := &fakePublisher{err: errors.New("first")}
	second := &fakePublisher{}
	m := Multi{NewNATSNotifier(first, "a"), NewNATSNotifier(second, "b")}

	err := m.Notify(context.Background(), NewEvent(KindBatchFailed, "x", nil))
	assert.ErrorContains(t, err, "first")
	assert.Equal(t, "b", second.subject, "later notifiers still run")
}
