package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	errMissingBrokers = errors.New("kafka brokers are required")
	errMissingTopic   = errors.New("kafka topic is required")
)

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisherConfig configures KafkaPublisher.
type KafkaPublisherConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Writer       MessageWriter
	Logger       *zap.Logger
}

// KafkaPublisher emits one message per sync run, keyed by run id.
type KafkaPublisher struct {
	writer       MessageWriter
	writeTimeout time.Duration
	logger       *zap.Logger
}

// SyncReportMessage is the JSON payload written to the topic.
type SyncReportMessage struct {
	RunID       string `json:"run_id"`
	FeedURL     string `json:"feed_url"`
	Status      string `json:"status"`
	Inserted    int    `json:"inserted"`
	Updated     int    `json:"updated"`
	Errors      int    `json:"errors"`
	Failure     string `json:"failure,omitempty"`
	StartedAtS  int64  `json:"started_at_s"`
	FinishedAtS int64  `json:"finished_at_s"`
}

func NewKafkaPublisher(cfg KafkaPublisherConfig) (*KafkaPublisher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	writer := cfg.Writer
	if writer == nil {
		if len(cfg.Brokers) == 0 {
			return nil, errMissingBrokers
		}
		if cfg.Topic == "" {
			return nil, errMissingTopic
		}
		writer = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		}
	}
	return &KafkaPublisher{
		writer:       writer,
		writeTimeout: writeTimeout,
		logger:       logger,
	}, nil
}

func (p *KafkaPublisher) NotifySync(ctx context.Context, run diamonds.SyncRun) error {
	payload, err := json.Marshal(SyncReportMessage{
		RunID:       run.RunID,
		FeedURL:     run.FeedURL,
		Status:      string(run.Status),
		Inserted:    run.Inserted,
		Updated:     run.Updated,
		Errors:      run.Errors,
		Failure:     run.Failure,
		StartedAtS:  run.StartedAtSeconds,
		FinishedAtS: run.FinishedAtSeconds,
	})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(run.RunID),
		Value: payload,
		Time:  time.Unix(run.FinishedAtSeconds, 0).UTC(),
	}); err != nil {
		return err
	}
	p.logger.Debug("sync report published", zap.String("run_id", run.RunID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ diamonds.SyncNotifier = (*KafkaPublisher)(nil)
