// Package registry turns outbox rows into routed Pub/Sub messages. Each
// event type has one route naming its aggregate, its topic and its body.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/config"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox/payloads"
)

const orderingKeyPrefix = "sale:"

// Body is implemented by every event body the publisher can route.
type Body interface {
	Subject() (aggregateID, saleID uuid.UUID)
	Attributes() map[string]string
}

// Route says where an event type is published.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newBody       func() Body
}

// Message is a decoded row ready to publish.
type Message struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Body     Body
	SaleID   uuid.UUID
}

// OrderingKey groups every event of one sale so subscribers see them in
// the order they were written.
func (m *Message) OrderingKey() string {
	return OrderingKey(m.SaleID)
}

// OrderingKey is the Pub/Sub ordering key of a sale.
func OrderingKey(saleID uuid.UUID) string {
	return orderingKeyPrefix + saleID.String()
}

// RejectError marks a row that can never be published. Reason is the
// dead letter bucket it is filed under.
type RejectError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// Reject wraps err as a permanent failure filed under reason.
func Reject(reason enums.OutboxDLQErrorReason, err error) error {
	return &RejectError{Reason: reason, Err: err}
}

// RejectReason reports the dead letter reason carried by err, if any.
func RejectReason(err error) (enums.OutboxDLQErrorReason, bool) {
	var rejected *RejectError
	if errors.As(err, &rejected) {
		return rejected.Reason, true
	}
	return "", false
}

// Registry maps each event type to its route.
type Registry struct {
	routes map[enums.OutboxEventType]Route
}

// New routes sale lifecycle and reconciliation events. Reconciliation
// events go to their own topic when one is configured and share the sales
// topic otherwise.
func New(cfg config.PubSubConfig) (*Registry, error) {
	salesTopic := strings.TrimSpace(cfg.SalesTopic)
	if salesTopic == "" {
		return nil, errors.New("sales topic is required")
	}
	reconTopic := strings.TrimSpace(cfg.ReconciliationTopic)
	if reconTopic == "" {
		reconTopic = salesTopic
	}

	reg := &Registry{routes: map[enums.OutboxEventType]Route{}}
	reg.add(Route{
		EventType:     enums.EventSaleCreated,
		AggregateType: enums.AggregateSale,
		Topic:         salesTopic,
		newBody:       func() Body { return &payloads.SaleCreatedEvent{} },
	})
	reg.add(Route{
		EventType:     enums.EventStockReconcileFailed,
		AggregateType: enums.AggregateReconciliation,
		Topic:         reconTopic,
		newBody:       func() Body { return &payloads.StockReconcileFailedEvent{} },
	})
	reg.add(Route{
		EventType:     enums.EventReconciliationResolved,
		AggregateType: enums.AggregateReconciliation,
		Topic:         reconTopic,
		newBody:       func() Body { return &payloads.ReconciliationResolvedEvent{} },
	})
	return reg, nil
}

func (r *Registry) add(route Route) {
	r.routes[route.EventType] = route
}

// Resolve decodes a row and checks that its body describes the same
// aggregate as the row itself.
func (r *Registry) Resolve(event models.OutboxEvent) (*Message, error) {
	route, ok := r.routes[event.EventType]
	if !ok {
		return nil, Reject(enums.OutboxDLQReasonUnknownEvent, fmt.Errorf("no route for event type %q", event.EventType))
	}
	if route.AggregateType != event.AggregateType {
		return nil, malformed("%s rows must be %s aggregates, got %q", event.EventType, route.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, malformed("%s row has no aggregate id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, malformed("%s envelope carries no data", event.EventType)
	}

	body := route.newBody()
	if err := json.Unmarshal(data, body); err != nil {
		return nil, malformed("decode %s body: %v", event.EventType, err)
	}
	aggregateID, saleID := body.Subject()
	if aggregateID != event.AggregateID {
		return nil, malformed("%s body names %s, row names %s", event.EventType, aggregateID, event.AggregateID)
	}
	if saleID == uuid.Nil {
		return nil, malformed("%s body has no sale id", event.EventType)
	}

	return &Message{Route: route, Envelope: envelope, Body: body, SaleID: saleID}, nil
}

func malformed(format string, args ...any) error {
	return Reject(enums.OutboxDLQReasonMalformedPayload, fmt.Errorf(format, args...))
}
