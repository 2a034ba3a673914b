// Package notify reports background failures to operators.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Event kinds.
const (
	KindBatchFailed    = "batch_failed"
	KindReindexFailed  = "reindex_failed"
	KindOptimizeFailed = "optimize_failed"
)

// DefaultSubject is the NATS subject events are published on.
const DefaultSubject = "trindex.events"

// Event is one operator notification.
type Event struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Resources []string  `json:"resources,omitempty"`
	Time      time.Time `json:"time"`
}

// NewEvent builds an event for a failure.
func NewEvent(kind, message string, err error) Event {
	ev := Event{Kind: kind, Message: message, Time: time.Now().UTC()}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier logging at error level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	n.logger.ErrorContext(ctx, ev.Message,
		"kind", ev.Kind,
		"error", ev.Error,
		"resources", len(ev.Resources))
	return nil
}

// Publisher is the part of a NATS connection the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events as JSON on a subject.
type NATSNotifier struct {
	pub     Publisher
	subject string
}

// NewNATSNotifier creates a notifier publishing through pub.
func NewNATSNotifier(pub Publisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{pub: pub, subject: subject}
}

// natsConnect allows test injection
var natsConnect = nats.Connect

// ConnectNATS dials a NATS server and returns a notifier bound to the
// connection and a function closing it.
func ConnectNATS(url, subject string) (*NATSNotifier, func(), error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := natsConnect(url, nats.Name("trindex"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return NewNATSNotifier(nc, subject), nc.Close, nil
}

func (n *NATSNotifier) Notify(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
