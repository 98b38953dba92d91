package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jjudge-oj/problemgen/internal/mq"
	"go.uber.org/zap"
)

// Job identifies one asynchronous run on the queue.
type Job struct {
	ProblemID string `json:"problemId"`
	Owner     string `json:"owner"`
}

// Publisher hands a job to another process.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// QueuePublisher publishes jobs as JSON on a message queue channel.
type QueuePublisher struct {
	backend mq.Backend
	channel string
}

func NewQueuePublisher(backend mq.Backend, channel string) *QueuePublisher {
	return &QueuePublisher{backend: backend, channel: channel}
}

func (q *QueuePublisher) Publish(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.backend.Publish(ctx, q.channel, data, map[string]string{
		"content-type": "application/json",
		"problem-id":   job.ProblemID,
	})
	return err
}

// Consumer runs queued jobs in a worker process.
type Consumer struct {
	backend  mq.Backend
	channel  string
	pipeline *Pipeline
	logger   *zap.Logger
}

func NewConsumer(backend mq.Backend, channel string, pipeline *Pipeline, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{backend: backend, channel: channel, pipeline: pipeline, logger: logger}
}

// Run subscribes and blocks until ctx ends or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("enrichment consumer started", zap.String("channel", c.channel))
	err := c.backend.Subscribe(ctx, c.channel, c.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume %s: %w", c.channel, err)
	}
	return nil
}

// Handle processes one message. It never asks for redelivery: failures are
// recorded on the problem instead.
func (c *Consumer) Handle(ctx context.Context, msg mq.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.ProblemID == "" {
		c.logger.Warn("dropping malformed enrichment job",
			zap.String("message_id", msg.ID),
			zap.ByteString("body", msg.Data),
		)
		return nil
	}

	inflightRuns.Inc()
	defer inflightRuns.Dec()
	outcome := c.pipeline.Enrich(ctx, job)
	c.logger.Debug("enrichment job handled",
		zap.String("message_id", msg.ID),
		zap.String("problem_id", job.ProblemID),
		zap.String("outcome", string(outcome)),
	)
	return nil
}
