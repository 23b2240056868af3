package queue

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"interview-processor-go/internal/apperr"
)

// SQSAPI is the subset of the SQS client used by the queue.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type SQS struct {
	api               SQSAPI
	url               string
	receiveVisibility time.Duration
}

// NewSQS returns a queue over url. receiveVisibility is the visibility timeout applied at receive time.
func NewSQS(api SQSAPI, url string, receiveVisibility time.Duration) *SQS {
	return &SQS{api: api, url: url, receiveVisibility: receiveVisibility}
}

func (q *SQS) Poll(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
		VisibilityTimeout:   int32(q.receiveVisibility / time.Second),
	})
	if err != nil {
		return nil, apperr.Service("sqs", "ReceiveMessage", err)
	}
	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          []byte(aws.ToString(m.Body)),
		})
	}
	return msgs, nil
}

func (q *SQS) Delete(ctx context.Context, msg Message) error {
	_, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return apperr.Service("sqs", "DeleteMessage", err)
	}
	return nil
}

func (q *SQS) ExtendVisibility(ctx context.Context, msg Message, timeout time.Duration) error {
	_, err := q.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(msg.ReceiptHandle),
		VisibilityTimeout: int32(timeout / time.Second),
	})
	if err != nil {
		return apperr.Service("sqs", "ChangeMessageVisibility", err)
	}
	return nil
}
