package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/types"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type DynamoDBConfig struct {
	InterviewsTable string
	QuestionsTable  string
	// UnprocessedRetries bounds the re-submission of items DynamoDB left unprocessed.
	UnprocessedRetries int
	UnprocessedBackoff time.Duration
}

type DynamoDB struct {
	api DynamoDBAPI
	cfg DynamoDBConfig
	log *logrus.Entry
	now func() time.Time
}

func NewDynamoDB(api DynamoDBAPI, cfg DynamoDBConfig, log *logrus.Entry) *DynamoDB {
	if cfg.UnprocessedBackoff <= 0 {
		cfg.UnprocessedBackoff = 200 * time.Millisecond
	}
	return &DynamoDB{api: api, cfg: cfg, log: log.WithField("component", "dynamodb-store"), now: time.Now}
}

type interviewItem struct {
	ID                  string `dynamodbav:"id"`
	UserID              string `dynamodbav:"user_id"`
	VideoPath           string `dynamodbav:"video_path"`
	Type                string `dynamodbav:"type"`
	ProgrammingLanguage string `dynamodbav:"programming_language"`
	State               string `dynamodbav:"state"`
}

func (s *DynamoDB) GetInterview(ctx context.Context, id string) (*types.Interview, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.cfg.InterviewsTable),
		Key:       map[string]ddbtypes.AttributeValue{"id": &ddbtypes.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, apperr.Service("dynamodb", "GetItem", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrRecordNotFound
	}
	var item interviewItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode interview %s: %w", id, err)
	}
	return &types.Interview{
		ID:                  item.ID,
		UserID:              item.UserID,
		VideoPath:           item.VideoPath,
		Type:                item.Type,
		ProgrammingLanguage: item.ProgrammingLanguage,
		State:               types.InterviewState(item.State),
	}, nil
}

func (s *DynamoDB) UpdateInterviewState(ctx context.Context, id string, state types.InterviewState) error {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.cfg.InterviewsTable),
		Key:                 map[string]ddbtypes.AttributeValue{"id": &ddbtypes.AttributeValueMemberS{Value: id}},
		UpdateExpression:    aws.String("SET #state = :state, updated_at = :updated_at"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#state": "state",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":state":      &ddbtypes.AttributeValueMemberS{Value: string(state)},
			":updated_at": &ddbtypes.AttributeValueMemberS{Value: Timestamp(s.now())},
		},
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrRecordNotFound
		}
		s.log.WithFields(logrus.Fields{"interview_id": id, "state": state, "error": err.Error()}).Error("update interview state failed")
		return apperr.Service("dynamodb", "UpdateItem", err)
	}
	return nil
}

func (s *DynamoDB) SaveQuestionsBatch(ctx context.Context, batch QuestionBatch) (int, error) {
	records := batch.Records(s.now())
	log := s.log.WithField("interview_id", batch.InterviewID)

	saved := 0
	for i, part := range chunk(records, MaxBatchSize) {
		requests := make([]ddbtypes.WriteRequest, 0, len(part))
		for _, rec := range part {
			item, err := attributevalue.MarshalMap(rec)
			if err != nil {
				return saved, fmt.Errorf("encode question %s: %w", rec.ID, err)
			}
			requests = append(requests, ddbtypes.WriteRequest{PutRequest: &ddbtypes.PutRequest{Item: item}})
		}

		left, err := s.writeChunk(ctx, requests)
		if err != nil {
			log.WithFields(logrus.Fields{"chunk": i, "error": err.Error()}).Error("batch write failed")
			return saved, err
		}
		if left > 0 {
			log.WithFields(logrus.Fields{"chunk": i, "unprocessed": left}).Warn("some questions were not written")
		}
		saved += len(part) - left
	}
	log.WithField("saved", saved).Info("questions saved")
	return saved, nil
}

// writeChunk submits one chunk and re-submits unprocessed items a bounded number of times.
// It returns the number of items still unprocessed.
func (s *DynamoDB) writeChunk(ctx context.Context, requests []ddbtypes.WriteRequest) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.UnprocessedBackoff
	b.MaxElapsedTime = 0
	var bo backoff.BackOff = backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.cfg.UnprocessedRetries, 0))), ctx)
	bo.Reset()

	pending := requests
	for {
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]ddbtypes.WriteRequest{s.cfg.QuestionsTable: pending},
		})
		if err != nil {
			return len(pending), apperr.Service("dynamodb", "BatchWriteItem", err)
		}
		pending = out.UnprocessedItems[s.cfg.QuestionsTable]
		if len(pending) == 0 {
			return 0, nil
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return len(pending), nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return len(pending), nil
		case <-t.C:
		}
	}
}
