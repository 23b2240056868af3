// Package queue consumes interview processing requests from a message queue.
package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Message is one delivery. ReceiptHandle identifies the delivery for delete and
// visibility calls and is opaque to callers.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          []byte
}

type Queue interface {
	// Poll waits up to wait for at most max messages. An empty slice is not an error.
	Poll(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
	ExtendVisibility(ctx context.Context, msg Message, timeout time.Duration) error
}

// Releaser is implemented by brokers that must be told explicitly to redeliver a message
// the handler did not finish.
type Releaser interface {
	Release(ctx context.Context, msg Message) error
}

type request struct {
	InterviewID *string `json:"interview_id"`
}

// ParseInterviewID extracts interview_id from a JSON object body.
func ParseInterviewID(msg Message) (string, bool) {
	var req request
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		return "", false
	}
	if req.InterviewID == nil {
		return "", false
	}
	id := strings.TrimSpace(*req.InterviewID)
	if id == "" {
		return "", false
	}
	return id, true
}
