package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler processes one interview. Returning true acknowledges the message.
type Handler func(ctx context.Context, interviewID string, msg Message) bool

type ConsumerConfig struct {
	WaitTime          time.Duration
	HandlerVisibility time.Duration
	ErrorPause        time.Duration
}

var DefaultConsumerConfig = ConsumerConfig{
	WaitTime:          20 * time.Second,
	HandlerVisibility: 600 * time.Second,
	ErrorPause:        5 * time.Second,
}

type Consumer struct {
	queue Queue
	cfg   ConsumerConfig
	log   *logrus.Entry
}

func NewConsumer(q Queue, cfg ConsumerConfig, log *logrus.Entry) *Consumer {
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = DefaultConsumerConfig.WaitTime
	}
	if cfg.HandlerVisibility <= 0 {
		cfg.HandlerVisibility = DefaultConsumerConfig.HandlerVisibility
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = DefaultConsumerConfig.ErrorPause
	}
	return &Consumer{queue: q, cfg: cfg, log: log.WithField("component", "queue-consumer")}
}

// Run polls until ctx is cancelled. The handler sees the cancellation and is expected to
// stop at its next step boundary; queue calls about the message in hand still go out.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.log.Info("queue consumer started")
	defer c.log.Info("queue consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := c.queue.Poll(ctx, 1, c.cfg.WaitTime)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.WithField("error", err.Error()).Error("poll failed")
			if !sleep(ctx, c.cfg.ErrorPause) {
				return nil
			}
			continue
		}
		for _, msg := range msgs {
			c.dispatch(ctx, msg, handle)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg Message, handle Handler) {
	log := c.log.WithField("message_id", msg.ID)
	handleCtx := ctx
	ctx = context.WithoutCancel(ctx)

	interviewID, ok := ParseInterviewID(msg)
	if !ok {
		log.WithField("body", truncate(string(msg.Body), 256)).Warn("unparseable message, deleting")
		c.delete(ctx, log, msg)
		return
	}
	log = log.WithField("interview_id", interviewID)

	if err := c.queue.ExtendVisibility(ctx, msg, c.cfg.HandlerVisibility); err != nil {
		log.WithField("error", err.Error()).Warn("extend visibility failed")
	}

	if c.invoke(handleCtx, log, handle, interviewID, msg) {
		c.delete(ctx, log, msg)
		log.Info("message processed")
		return
	}

	log.Warn("processing failed, leaving message for redelivery")
	if r, ok := c.queue.(Releaser); ok {
		if err := r.Release(ctx, msg); err != nil {
			log.WithField("error", err.Error()).Warn("release failed")
		}
	}
}

func (c *Consumer) invoke(ctx context.Context, log *logrus.Entry, handle Handler, interviewID string, msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("handler panicked")
			ok = false
		}
	}()
	return handle(ctx, interviewID, msg)
}

func (c *Consumer) delete(ctx context.Context, log *logrus.Entry, msg Message) {
	if err := c.queue.Delete(ctx, msg); err != nil {
		log.WithField("error", err.Error()).Warn("delete message failed")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
