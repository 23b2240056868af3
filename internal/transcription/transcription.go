package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	tstypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/types"
)

var ErrTimeout = errors.New("transcription timeout")

// JobFailedError carries the failure reason reported by the transcription service.
type JobFailedError struct {
	Job    string
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("transcription job %s failed: %s", e.Job, e.Reason)
}

// TranscribeAPI is the subset of the AWS Transcribe client used here.
type TranscribeAPI interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

type Config struct {
	JobPrefix       string
	LanguageCode    string
	MaxSpeakers     int32
	PollInterval    time.Duration
	MaxWait         time.Duration
	DownloadTimeout time.Duration
}

var DefaultConfig = Config{
	JobPrefix:       "video-transcription-",
	LanguageCode:    "en-US",
	MaxSpeakers:     10,
	PollInterval:    30 * time.Second,
	MaxWait:         time.Hour,
	DownloadTimeout: 30 * time.Second,
}

type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Job is a snapshot of one transcription job.
type Job struct {
	Name          string
	Status        Status
	TranscriptURI string
	FailureReason string
}

type Client struct {
	api  TranscribeAPI
	http *http.Client
	cfg  Config
	log  *logrus.Entry
	now  func() time.Time
}

func NewClient(api TranscribeAPI, cfg Config, log *logrus.Entry) *Client {
	if cfg.JobPrefix == "" {
		cfg.JobPrefix = DefaultConfig.JobPrefix
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultConfig.LanguageCode
	}
	if cfg.MaxSpeakers <= 0 {
		cfg.MaxSpeakers = DefaultConfig.MaxSpeakers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig.PollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultConfig.MaxWait
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultConfig.DownloadTimeout
	}
	return &Client{
		api:  api,
		http: &http.Client{Timeout: cfg.DownloadTimeout},
		cfg:  cfg,
		log:  log.WithField("component", "transcription"),
		now:  time.Now,
	}
}

// Transcribe runs a job for audioURI to completion and returns the parsed transcript.
// An empty languageCode uses the configured default.
func (c *Client) Transcribe(ctx context.Context, audioURI, languageCode string) (*types.Transcript, error) {
	if languageCode == "" {
		languageCode = c.cfg.LanguageCode
	}
	name, err := c.Start(ctx, audioURI, languageCode)
	if err != nil {
		return nil, err
	}
	job, err := c.Wait(ctx, name)
	if err != nil {
		return nil, err
	}
	tr, err := c.Fetch(ctx, job.TranscriptURI)
	if err != nil {
		return nil, err
	}
	tr.JobName = name
	tr.LanguageCode = languageCode
	return tr, nil
}

func (c *Client) Start(ctx context.Context, audioURI, languageCode string) (string, error) {
	name := c.cfg.JobPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	_, err := c.api.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
		Media:                &tstypes.Media{MediaFileUri: aws.String(audioURI)},
		MediaFormat:          mediaFormat(audioURI),
		LanguageCode:         tstypes.LanguageCode(languageCode),
		Settings: &tstypes.Settings{
			ShowSpeakerLabels: aws.Bool(true),
			MaxSpeakerLabels:  aws.Int32(c.cfg.MaxSpeakers),
			ShowAlternatives:  aws.Bool(true),
			MaxAlternatives:   aws.Int32(2),
		},
	})
	if err != nil {
		return "", apperr.Service("transcribe", "StartTranscriptionJob", err)
	}
	c.log.WithFields(logrus.Fields{"job": name, "audio_uri": audioURI}).Info("transcription job started")
	return name, nil
}

func (c *Client) Status(ctx context.Context, name string) (Job, error) {
	out, err := c.api.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
	})
	if err != nil {
		return Job{}, apperr.Service("transcribe", "GetTranscriptionJob", err)
	}
	job := Job{Name: name}
	if tj := out.TranscriptionJob; tj != nil {
		job.Status = Status(tj.TranscriptionJobStatus)
		job.FailureReason = aws.ToString(tj.FailureReason)
		if tj.Transcript != nil {
			job.TranscriptURI = aws.ToString(tj.Transcript.TranscriptFileUri)
		}
	}
	return job, nil
}

// Wait polls the job every PollInterval until it completes, fails, or MaxWait elapses.
func (c *Client) Wait(ctx context.Context, name string) (Job, error) {
	log := c.log.WithField("job", name)
	deadline := c.now().Add(c.cfg.MaxWait)
	for {
		job, err := c.Status(ctx, name)
		if err != nil {
			return Job{}, err
		}
		switch job.Status {
		case StatusCompleted:
			log.Info("transcription completed")
			return job, nil
		case StatusFailed:
			reason := job.FailureReason
			if reason == "" {
				reason = "unknown error"
			}
			return Job{}, apperr.Service("transcribe", "Wait", &JobFailedError{Job: name, Reason: reason})
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return Job{}, apperr.Service("transcribe", "Wait", fmt.Errorf("%w after %s: job %s", ErrTimeout, c.cfg.MaxWait, name))
		}
		log.WithField("status", job.Status).Debug("transcription in progress")

		wait := min(c.cfg.PollInterval, remaining)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Job{}, ctx.Err()
		case <-t.C:
		}
	}
}

func mediaFormat(uri string) tstypes.MediaFormat {
	switch {
	case strings.HasSuffix(strings.ToLower(uri), ".mp3"):
		return tstypes.MediaFormatMp3
	case strings.HasSuffix(strings.ToLower(uri), ".flac"):
		return tstypes.MediaFormatFlac
	case strings.HasSuffix(strings.ToLower(uri), ".mp4"):
		return tstypes.MediaFormatMp4
	default:
		return tstypes.MediaFormatWav
	}
}
