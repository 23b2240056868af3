// Package processor turns one interview video into questions with generated answers.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/extractor"
	"interview-processor-go/internal/media"
	"interview-processor-go/internal/types"
)

type MediaPipeline interface {
	Process(ctx context.Context, videoRef string) (types.MediaResult, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioURI, languageCode string) (*types.Transcript, error)
}

// Result is everything produced for one video.
type Result struct {
	VideoRef   string                    `json:"video_ref"`
	VideoURI   string                    `json:"video_uri"`
	AudioURI   string                    `json:"audio_uri"`
	Transcript *types.Transcript         `json:"transcript"`
	Questions  []types.ExtractedQuestion `json:"interviewer_questions"`
	AICalls    int                       `json:"ai_calls_made"`
	DurationMs int64                     `json:"duration_ms"`
}

type Request struct {
	VideoRef     string
	LanguageCode string
	// OnStep, when set, is told about each completed stage.
	OnStep func(step types.Step)
}

type Config struct {
	Bucket string
}

type Processor struct {
	media       MediaPipeline
	transcriber Transcriber
	questions   extractor.QuestionExtractor
	answers     extractor.AnswerGenerator
	cfg         Config
	log         *logrus.Entry
}

func New(m MediaPipeline, t Transcriber, q extractor.QuestionExtractor, a extractor.AnswerGenerator, cfg Config, log *logrus.Entry) *Processor {
	return &Processor{
		media:       m,
		transcriber: t,
		questions:   q,
		answers:     a,
		cfg:         cfg,
		log:         log.WithField("component", "processor"),
	}
}

// NormalizeVideoRef expands a bucket-relative videos/ key into an s3:// URI.
func NormalizeVideoRef(ref, bucket string) string {
	if strings.HasPrefix(ref, "videos/") && bucket != "" {
		return media.S3URI(bucket, ref)
	}
	return ref
}

// Run executes media extraction, transcription, question extraction and answer generation
// in that order. An empty transcript is an error; finding no questions is not.
// Cancelling ctx stops the run at the next stage boundary.
func (p *Processor) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	notify := func(s types.Step) {
		if req.OnStep != nil {
			req.OnStep(s)
		}
	}
	ref := NormalizeVideoRef(req.VideoRef, p.cfg.Bucket)
	log := p.log.WithField("video_ref", ref)
	res := &Result{VideoRef: ref}

	mr, err := p.media.Process(ctx, ref)
	if err != nil {
		return nil, err
	}
	if mr.Status != types.MediaStatusSuccess || mr.AudioURI == "" {
		return nil, apperr.Media("process", fmt.Sprintf("media pipeline returned status %q", mr.Status), nil)
	}
	res.VideoURI, res.AudioURI = mr.VideoURI, mr.AudioURI
	notify(types.StepMediaExtracted)
	log.WithField("audio_uri", mr.AudioURI).Info("media extracted")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tr, err := p.transcriber.Transcribe(ctx, mr.AudioURI, req.LanguageCode)
	if err != nil {
		return nil, err
	}
	if tr == nil || strings.TrimSpace(tr.Text) == "" {
		return nil, apperr.Service("transcribe", "Transcribe", fmt.Errorf("empty transcript for %s", mr.AudioURI))
	}
	res.Transcript = tr
	notify(types.StepTranscribed)
	log.WithField("transcript_chars", len(tr.Text)).Info("transcription finished")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qs, err := p.questions.ExtractQuestions(ctx, tr.Text)
	if err != nil {
		return nil, err
	}
	res.AICalls = 1
	notify(types.StepQuestionsExtracted)
	log.WithField("questions", len(qs)).Info("questions extracted")

	res.Questions = p.answerAll(ctx, log, qs)
	if err := ctx.Err(); err != nil {
		// answers may have failed on the cancelled context
		return nil, err
	}
	res.AICalls += len(qs)
	res.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}

// answerAll fills in an answer per question. A failed answer is recorded with the failure
// marker and the question is kept.
func (p *Processor) answerAll(ctx context.Context, log *logrus.Entry, qs []types.ExtractedQuestion) []types.ExtractedQuestion {
	out := make([]types.ExtractedQuestion, 0, len(qs))
	for i, q := range qs {
		ans, err := p.answers.GenerateAnswer(ctx, q)
		switch {
		case err != nil:
			log.WithFields(logrus.Fields{"question_index": i, "error": err.Error()}).Warn("answer generation failed")
			q.ProfessionalAnswer = types.AnswerFailedMarker + ": " + err.Error()
		case strings.TrimSpace(ans) == "":
			log.WithField("question_index", i).Warn("empty answer")
			q.ProfessionalAnswer = types.AnswerFailedMarker
		default:
			q.ProfessionalAnswer = ans
		}
		out = append(out, q)
	}
	return out
}
