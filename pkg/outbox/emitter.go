package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
)

const currentEnvelopeVersion = 1

// ErrInvalidEvent is returned for events the publisher could never route.
var ErrInvalidEvent = errors.New("invalid outbox event")

// aggregateOf pins each event type to the aggregate its rows belong to.
var aggregateOf = map[enums.OutboxEventType]enums.OutboxAggregateType{
	enums.EventSaleCreated:            enums.AggregateSale,
	enums.EventStockReconcileFailed:   enums.AggregateReconciliation,
	enums.EventReconciliationResolved: enums.AggregateReconciliation,
}

// DomainEvent is one sale or reconciliation change to announce. Data is
// the event body; bodies that report their subject are checked against
// AggregateID before the row is written.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type subject interface {
	Subject() (aggregateID, saleID uuid.UUID)
}

func (e DomainEvent) validate() error {
	want, ok := aggregateOf[e.EventType]
	if !ok {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.EventType)
	}
	if e.AggregateType != "" && e.AggregateType != want {
		return fmt.Errorf("%w: %s belongs to %s, not %s", ErrInvalidEvent, e.EventType, want, e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return fmt.Errorf("%w: aggregate id required", ErrInvalidEvent)
	}
	if s, ok := e.Data.(subject); ok {
		aggregateID, saleID := s.Subject()
		if aggregateID != e.AggregateID {
			return fmt.Errorf("%w: body names %s, event names %s", ErrInvalidEvent, aggregateID, e.AggregateID)
		}
		if saleID == uuid.Nil {
			return fmt.Errorf("%w: %s body has no sale id", ErrInvalidEvent, e.EventType)
		}
	}
	return nil
}

// Emitter queues domain events inside the caller's transaction, so an
// event exists exactly when the change it announces was committed.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	event.AggregateType = aggregateOf[event.EventType]

	row, envelope, err := event.row()
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}

	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

func (e DomainEvent) row() (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s body: %w", e.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    e.Version,
		EventID:    uuid.NewString(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if envelope.Version == 0 {
		envelope.Version = currentEnvelopeVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}, envelope, nil
}
