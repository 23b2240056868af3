package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-processor-go/internal/apperr"
)

type fakeSQS struct {
	receive    *sqs.ReceiveMessageInput
	deleted    *sqs.DeleteMessageInput
	visibility *sqs.ChangeMessageVisibilityInput
	messages   []sqstypes.Message
	err        error
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receive = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = in
	return &sqs.DeleteMessageOutput{}, f.err
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.visibility = in
	return &sqs.ChangeMessageVisibilityOutput{}, f.err
}

func TestSQSPoll(t *testing.T) {
	api := &fakeSQS{messages: []sqstypes.Message{{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("rh-1"),
		Body:          aws.String(`{"interview_id":"abc"}`),
	}}}
	q := NewSQS(api, "https://sqs.local/q", 300*time.Second)

	msgs, err := q.Poll(context.Background(), 1, 20*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, Message{ID: "m-1", ReceiptHandle: "rh-1", Body: []byte(`{"interview_id":"abc"}`)}, msgs[0])

	assert.Equal(t, "https://sqs.local/q", aws.ToString(api.receive.QueueUrl))
	assert.EqualValues(t, 1, api.receive.MaxNumberOfMessages)
	assert.EqualValues(t, 20, api.receive.WaitTimeSeconds)
	assert.EqualValues(t, 300, api.receive.VisibilityTimeout)
}

func TestSQSDeleteAndExtend(t *testing.T) {
	api := &fakeSQS{}
	q := NewSQS(api, "u", 300*time.Second)
	m := Message{ID: "m", ReceiptHandle: "rh"}

	require.NoError(t, q.Delete(context.Background(), m))
	assert.Equal(t, "rh", aws.ToString(api.deleted.ReceiptHandle))

	require.NoError(t, q.ExtendVisibility(context.Background(), m, 30*time.Minute))
	assert.EqualValues(t, 1800, api.visibility.VisibilityTimeout)
}

func TestSQSErrorsAreServiceErrors(t *testing.T) {
	q := NewSQS(&fakeSQS{err: errors.New("network down")}, "u", time.Minute)
	_, err := q.Poll(context.Background(), 1, time.Second)
	assert.Equal(t, apperr.KindService, apperr.KindOf(err))
}

type fakeChannel struct {
	deliveries chan amqp.Delivery
	declared   string
	prefetch   int
	acked      []uint64
	nacked     []uint64
	requeued   bool
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.declared = name
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Ack(tag uint64, _ bool) error {
	c.acked = append(c.acked, tag)
	return nil
}

func (c *fakeChannel) Nack(tag uint64, _ bool, requeue bool) error {
	c.nacked = append(c.nacked, tag)
	c.requeued = requeue
	return nil
}

func TestRabbitMQRoundTrip(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 2)}
	q, err := NewRabbitMQ(ch, "interviews")
	require.NoError(t, err)
	assert.Equal(t, "interviews", ch.declared)
	assert.Equal(t, 1, ch.prefetch)

	ch.deliveries <- amqp.Delivery{DeliveryTag: 7, MessageId: "mid", Body: []byte(`{"interview_id":"a"}`)}
	msgs, err := q.Poll(context.Background(), 1, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "mid", msgs[0].ID)
	assert.Equal(t, "7", msgs[0].ReceiptHandle)

	require.NoError(t, q.ExtendVisibility(context.Background(), msgs[0], time.Hour))
	require.NoError(t, q.Delete(context.Background(), msgs[0]))
	assert.Equal(t, []uint64{7}, ch.acked)

	require.NoError(t, q.Release(context.Background(), Message{ReceiptHandle: "9"}))
	assert.Equal(t, []uint64{9}, ch.nacked)
	assert.True(t, ch.requeued)

	assert.Error(t, q.Delete(context.Background(), Message{ReceiptHandle: "nope"}))
}

func TestRabbitMQPollTimesOutEmpty(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	q, err := NewRabbitMQ(ch, "interviews")
	require.NoError(t, err)

	msgs, err := q.Poll(context.Background(), 1, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	close(ch.deliveries)
	_, err = q.Poll(context.Background(), 1, time.Second)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

var _ Releaser = (*RabbitMQ)(nil)
