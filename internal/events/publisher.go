package events

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
)

const (
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"
)

// NewPublisher builds the publisher selected by cfg.Events.Driver. An empty
// driver disables publishing.
func NewPublisher(cfg *config.Config, log logger.Logger) (transcode.EventPublisher, error) {
	switch cfg.Events.Driver {
	case "":
		return NewNoopPublisher(), nil
	case DriverKafka:
		log.Infof("Publishing job events to kafka topic %s", cfg.Events.Topic)
		return NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic), nil
	case DriverRabbitMQ:
		log.Infof("Publishing job events to rabbitmq exchange %s", cfg.Events.Exchange)
		return NewRabbitMQPublisher(cfg.Events.AmqpURL, cfg.Events.Exchange)
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
	}
}

type noopPublisher struct{}

func NewNoopPublisher() transcode.EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, *models.JobEvent) error {
	return nil
}

func (noopPublisher) Close() error {
	return nil
}
