package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"interview-processor-go/internal/config"
	"interview-processor-go/internal/extractor"
	"interview-processor-go/internal/logger"
	"interview-processor-go/internal/media"
	"interview-processor-go/internal/metrics"
	"interview-processor-go/internal/processor"
	"interview-processor-go/internal/progress"
	"interview-processor-go/internal/queue"
	"interview-processor-go/internal/store"
	"interview-processor-go/internal/transcription"
	"interview-processor-go/internal/workflow"
)

// deps holds every client built at start-up. Nothing is created lazily.
type deps struct {
	cfg     *config.Config
	log     *logger.Logger
	aws     aws.Config
	closers []func() error
}

func newDeps(ctx context.Context, cfg *config.Config, log *logger.Logger) (*deps, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &deps{cfg: cfg, log: log, aws: awsCfg}, nil
}

func (d *deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

func (d *deps) buildProcessor() (*processor.Processor, error) {
	cfg := d.cfg
	objects, err := media.NewS3(media.S3Config{
		Endpoint:     cfg.AWS.S3Endpoint,
		AccessKey:    cfg.AWS.AccessKey,
		SecretKey:    cfg.AWS.SecretKey,
		SessionToken: cfg.AWS.SessionToken,
		Region:       cfg.AWS.Region,
		Secure:       cfg.AWS.S3Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	pipeline := media.NewPipeline(objects, media.Config{
		Bucket:     cfg.AWS.Bucket,
		FFmpegPath: cfg.Media.FFmpegPath,
		TempDir:    cfg.Media.TempDir,
	}, d.log.Entry)

	transcriber := transcription.NewClient(transcribe.NewFromConfig(d.aws), transcription.Config{
		JobPrefix:    cfg.Transcribe.JobPrefix,
		LanguageCode: cfg.Transcribe.LanguageCode,
		MaxSpeakers:  cfg.Transcribe.MaxSpeakers,
		PollInterval: cfg.Transcribe.PollInterval,
		MaxWait:      cfg.Transcribe.MaxWait,
	}, d.log.Entry)

	var completer extractor.Completer
	switch cfg.Extractor.Provider {
	case config.ProviderGateway:
		completer = extractor.NewGateway(extractor.GatewayConfig{
			URL:    cfg.Extractor.GatewayURL,
			APIKey: cfg.Extractor.APIKey,
			Model:  cfg.Extractor.Model,
		}, d.log.Entry)
	default:
		completer = extractor.NewBedrock(bedrockruntime.NewFromConfig(d.aws), cfg.Extractor.BedrockModelID)
	}
	llm := extractor.NewLLM(completer, cfg.Extractor.Role, d.log.Entry)

	var questions extractor.QuestionExtractor = llm
	if cfg.Extractor.Kind == config.ExtractorHeuristic {
		questions = extractor.Heuristic{}
	}
	return processor.New(pipeline, transcriber, questions, llm, processor.Config{Bucket: cfg.AWS.Bucket}, d.log.Entry), nil
}

func (d *deps) openStore() (store.Store, error) {
	cfg := d.cfg
	if cfg.Store.Backend == config.StoreSQL {
		db, err := store.InitDB(cfg.DB(), d.log.Logger)
		if err != nil {
			return nil, err
		}
		s := store.NewSQL(db, d.log.Entry)
		d.closers = append(d.closers, s.Close)
		if cfg.Store.AutoMigrate {
			if err := s.Migrate(); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return s, nil
	}
	return store.NewDynamoDB(dynamodb.NewFromConfig(d.aws), store.DynamoDBConfig{
		InterviewsTable:    cfg.Store.InterviewsTable,
		QuestionsTable:     cfg.Store.QuestionsTable,
		UnprocessedRetries: cfg.Store.UnprocessedRetries,
	}, d.log.Entry), nil
}

func (d *deps) openQueue() (queue.Queue, error) {
	cfg := d.cfg
	if cfg.Queue.Backend == config.QueueRabbitMQ {
		conn, err := amqp.Dial(cfg.Queue.RabbitMQURL)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		d.closers = append(d.closers, conn.Close)
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open channel: %w", err)
		}
		return queue.NewRabbitMQ(ch, cfg.Queue.RabbitMQQueue)
	}
	return queue.NewSQS(sqs.NewFromConfig(d.aws), cfg.Queue.SQSQueueURL, cfg.Queue.VisibilityTimeout), nil
}

func (d *deps) tracker() progress.Tracker {
	if d.cfg.Redis.Addr == "" {
		return progress.Noop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     d.cfg.Redis.Addr,
		Password: d.cfg.Redis.Password,
		DB:       d.cfg.Redis.DB,
	})
	d.closers = append(d.closers, client.Close)
	return progress.NewRedis(client, d.cfg.Redis.TTL)
}

// buildWorkflow builds the interview workflow. q may be nil.
func (d *deps) buildWorkflow(q workflow.VisibilityExtender) (*workflow.Workflow, error) {
	st, err := d.openStore()
	if err != nil {
		return nil, err
	}
	proc, err := d.buildProcessor()
	if err != nil {
		return nil, err
	}
	return workflow.New(st, q, proc, metrics.Prometheus{}, d.tracker(), workflow.Config{
		Policy:       d.cfg.RetryPolicy(),
		Visibility:   d.cfg.Queue.WorkflowVisibility,
		LanguageCode: d.cfg.Transcribe.LanguageCode,
	}, d.log), nil
}
