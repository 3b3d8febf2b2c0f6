package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	"github.com/wolfman30/clinicdesk/internal/events"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const kafkaTopicPrefix = "clinicdesk."

// BuildEventPublisher returns the external transport for outbox events, or
// nil when EVENTS_TRANSPORT is none. The returned close func is never nil.
func BuildEventPublisher(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (events.DeliveryHandler, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EventsTransport {
	case "", "none":
		return nil, noop, nil
	case "sqs":
		queueURL := strings.TrimSpace(cfg.EventsQueueURL)
		if queueURL == "" {
			return nil, noop, fmt.Errorf("bootstrap: EVENTS_QUEUE_URL is required for sqs transport")
		}
		if awsCfg == nil {
			return nil, noop, fmt.Errorf("bootstrap: aws config is required for sqs transport")
		}
		logger.Info("outbox events publish to sqs", "queue_url", queueURL)
		return events.NewSQSPublisher(sqs.NewFromConfig(*awsCfg), queueURL), noop, nil
	case "kafka":
		brokers := events.SplitBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, noop, fmt.Errorf("bootstrap: KAFKA_BROKERS is required for kafka transport")
		}
		publisher := events.NewKafkaPublisher(events.NewKafkaWriter(brokers), kafkaTopicPrefix)
		logger.Info("outbox events publish to kafka", "brokers", brokers)
		return publisher, publisher.Close, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown events transport %q", cfg.EventsTransport)
	}
}

// ComposeDeliveryHandler fans an outbox entry out to every non-nil handler.
func ComposeDeliveryHandler(handlers ...events.DeliveryHandler) events.DeliveryHandler {
	var out events.Fanout
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
