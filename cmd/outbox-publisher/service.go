package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/backoff"
	"github.com/angelmondragon/salesdesk-backend/pkg/config"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/metrics"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	publishTimeout      = 15 * time.Second
	maxFailureWait      = 10 * time.Second
)

type store interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicOpener interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.Message, error)
}

// topicPublisher is the part of a Pub/Sub publisher the service drives.
type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type ServiceParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         store
	PubSub     topicOpener
	Repository outboxRepository
	Registry   resolver
	Metrics    *metrics.OutboxMetrics

	// OpenPublisher replaces the Pub/Sub publisher; tests set it.
	OpenPublisher func(topic string) topicPublisher
}

// Service drains outbox_events to Pub/Sub. Events of one sale share an
// ordering key, and an event is never published ahead of an earlier event
// of its sale that is still waiting for a retry.
type Service struct {
	logg     *logger.Logger
	db       store
	pubsub   topicOpener
	repo     outboxRepository
	registry resolver
	metrics  *metrics.OutboxMetrics

	open       func(topic string) topicPublisher
	publishers map[string]topicPublisher

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		metrics:      params.Metrics,
		open:         params.OpenPublisher,
		publishers:   map[string]topicPublisher{},
		batchSize:    positiveOr(params.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(params.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.open == nil {
		s.open = s.openGCPPublisher
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run publishes until ctx ends. A batch that made progress is followed
// immediately by the next one; an idle batch waits one poll interval, and
// a failed batch backs off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}
	defer s.stopPublishers()

	failures := s.failureBackoff()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		progressed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox batch failed", err)
			wait, _ := failures.Next()
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		failures = s.failureBackoff()
		if progressed {
			continue
		}
		if err := sleep(ctx, s.pollInterval); err != nil {
			return err
		}
	}
}

func (s *Service) checkDependencies(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		s.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping: %w", err)
	}
	return nil
}

func (s *Service) failureBackoff() retry.Backoff {
	return backoff.Policy{
		MaxRetries:    math.MaxUint32,
		Base:          s.pollInterval,
		Cap:           maxFailureWait,
		JitterPercent: 20,
	}.Backoff()
}

// publisherFor opens one publisher per topic and keeps it for the life of
// the service.
func (s *Service) publisherFor(topic string) topicPublisher {
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.open(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

func (s *Service) stopPublishers() {
	for topic, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, topic)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
