package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/config"
	"github.com/temcen/rfpmatch/pkg/models"
)

const DefaultRecommendationsTopic = "rfp-recommendations"

// RecommendationEvent is the audit record of one recommend call. Long-term
// storage belongs to whoever consumes the topic.
type RecommendationEvent struct {
	RequestID    uuid.UUID          `json:"request_id"`
	RequesterID  string             `json:"requester_id,omitempty"`
	TextHash     string             `json:"text_hash"`
	Requirements int                `json:"requirements"`
	Weights      models.ScoreVector `json:"weights"`
	Results      []AuditResult      `json:"results"`
	CacheHit     bool               `json:"cache_hit"`
	LatencyMs    int64              `json:"latency_ms"`
	Timestamp    time.Time          `json:"timestamp"`
}

type AuditResult struct {
	ProductID uuid.UUID          `json:"product_id"`
	Rank      int                `json:"rank"`
	Scores    models.ScoreVector `json:"scores"`
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type AuditPublisher struct {
	writer MessageWriter
	topic  string
	logger *logrus.Logger
}

// NewAuditPublisher returns nil when no brokers are configured; callers treat
// a nil publisher as disabled.
func NewAuditPublisher(cfg *config.Config, logger *logrus.Logger) *AuditPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("No Kafka brokers configured, recommendation audit events disabled")
		return nil
	}

	topic := cfg.Kafka.Topics.Recommendations
	if topic == "" {
		topic = DefaultRecommendationsTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Key by requester so one buyer's events stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	return NewAuditPublisherWithWriter(writer, topic, logger)
}

func NewAuditPublisherWithWriter(writer MessageWriter, topic string, logger *logrus.Logger) *AuditPublisher {
	return &AuditPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

func (p *AuditPublisher) PublishRecommendation(ctx context.Context, event RecommendationEvent) error {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := event.RequesterID
	if key == "" {
		key = event.RequestID.String()
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: messageBytes,
		Headers: []kafka.Header{
			{Key: "request_id", Value: []byte(event.RequestID.String())},
			{Key: "event_type", Value: []byte("recommendation")},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write audit event to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"request_id": event.RequestID,
		"topic":      p.topic,
		"results":    len(event.Results),
	}).Debug("Audit event published")

	return nil
}

func (p *AuditPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close audit writer: %w", err)
	}
	return nil
}
