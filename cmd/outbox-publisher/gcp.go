package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// gcpPublisher adapts *pubsub.Publisher, whose Publish returns a concrete
// result type.
type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

func (s *Service) openGCPPublisher(topic string) topicPublisher {
	pub := s.pubsub.Publisher(topic)
	if pub == nil {
		return nil
	}
	return gcpPublisher{Publisher: pub}
}
