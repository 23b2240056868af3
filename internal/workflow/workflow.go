// Package workflow drives one interview from pending to completed or failed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/logger"
	"interview-processor-go/internal/processor"
	"interview-processor-go/internal/progress"
	"interview-processor-go/internal/queue"
	"interview-processor-go/internal/retry"
	"interview-processor-go/internal/store"
	"interview-processor-go/internal/types"
)

// DefaultVisibility is how long a message stays hidden once slow work begins.
const DefaultVisibility = 1800 * time.Second

// ErrStopped is returned when the caller's context ends before processing finished.
// The interview is marked failed like any other failure.
var ErrStopped = errors.New("processing stopped")

type Runner interface {
	Run(ctx context.Context, req processor.Request) (*processor.Result, error)
}

type VisibilityExtender interface {
	ExtendVisibility(ctx context.Context, msg queue.Message, timeout time.Duration) error
}

type Recorder interface {
	ObserveRun(status, kind string, d time.Duration)
	AddQuestions(saved, failedAnswers int)
	IncAttempts()
}

type Config struct {
	Policy       retry.Policy
	Visibility   time.Duration
	LanguageCode string
	// RetryOptions are appended to the options the workflow passes to retry.Do.
	RetryOptions []retry.Option
}

// Outcome describes a finished run.
type Outcome struct {
	Success   bool
	Step      types.Step
	Kind      apperr.Kind
	Err       error
	Questions int
	Attempts  int
	Duration  time.Duration
}

type Workflow struct {
	store    store.Store
	queue    VisibilityExtender
	runner   Runner
	metrics  Recorder
	progress progress.Tracker
	cfg      Config
	log      *logger.Logger
}

// New wires a workflow. queue may be nil when interviews are not queue driven.
func New(st store.Store, q VisibilityExtender, r Runner, m Recorder, p progress.Tracker, cfg Config, log *logger.Logger) *Workflow {
	if cfg.Visibility <= 0 {
		cfg.Visibility = DefaultVisibility
	}
	if p == nil {
		p = progress.Noop{}
	}
	return &Workflow{
		store:    st,
		queue:    q,
		runner:   r,
		metrics:  m,
		progress: p,
		cfg:      cfg,
		log:      log,
	}
}

// ProcessInterview reports whether the interview reached the completed state.
// The caller deletes msg only when it returns true.
func (w *Workflow) ProcessInterview(ctx context.Context, interviewID string, msg *queue.Message) bool {
	return w.Run(ctx, interviewID, msg).Success
}

// Run processes one interview. It never panics and never returns without either
// persisting completed or attempting to persist failed, except for malformed ids,
// which are rejected before the store is touched.
//
// Cancelling ctx stops the run at the next step boundary. Store and queue calls are
// made on a context without the cancellation so state changes still land.
func (w *Workflow) Run(ctx context.Context, interviewID string, msg *queue.Message) (out Outcome) {
	start := time.Now()
	log := w.log.WithInterview(interviewID)
	out.Step = types.StepReceived

	if _, err := uuid.Parse(interviewID); err != nil {
		out.Err = apperr.Validation("interview_id", interviewID, "not a valid UUID")
		out.Kind = apperr.KindValidation
		out.Duration = time.Since(start)
		log.WithField("error", out.Err.Error()).Error("rejected interview")
		w.metrics.ObserveRun("failure", string(out.Kind), out.Duration)
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Err = fmt.Errorf("panic: %v", r)
			out.Kind = apperr.KindUnexpected
			out.Duration = time.Since(start)
			w.fail(ctx, log, interviewID, &out)
		}
	}()

	err := w.process(ctx, log, interviewID, msg, &out)
	out.Duration = time.Since(start)
	if err != nil {
		out.Err = err
		out.Kind = apperr.KindOf(err)
		w.fail(ctx, log, interviewID, &out)
		return out
	}

	out.Success = true
	w.metrics.ObserveRun("success", "", out.Duration)
	log.WithFields(logrus.Fields{
		"questions":   out.Questions,
		"attempts":    out.Attempts,
		"duration_ms": out.Duration.Milliseconds(),
	}).Info("interview completed")
	return out
}

func (w *Workflow) process(ctx context.Context, log *logrus.Entry, id string, msg *queue.Message, out *Outcome) error {
	runCtx := ctx
	ctx = context.WithoutCancel(ctx)

	iv, err := w.store.GetInterview(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return apperr.Validation("interview_id", id, "interview not found")
	}
	if err != nil {
		return apperr.Service("store", "GetInterview", err)
	}
	if err := validateRecord(iv); err != nil {
		return err
	}
	w.step(ctx, log, id, out, types.StepLoaded)

	if err := w.store.UpdateInterviewState(ctx, id, types.StateProcessing); err != nil {
		return apperr.Service("store", "UpdateInterviewState", err)
	}
	w.step(ctx, log, id, out, types.StepProcessing)

	if msg != nil && w.queue != nil {
		if err := w.queue.ExtendVisibility(ctx, *msg, w.cfg.Visibility); err != nil {
			log.WithField("error", err.Error()).Warn("extend visibility failed")
		}
	}

	if err := runCtx.Err(); err != nil {
		return fmt.Errorf("%w before %s: %w", ErrStopped, out.Step, err)
	}
	res, err := w.runWithRetry(runCtx, log, id, iv.VideoPath, out)
	if err != nil {
		if runCtx.Err() != nil {
			return fmt.Errorf("%w after %s: %w", ErrStopped, out.Step, err)
		}
		return err
	}

	failed := 0
	for _, q := range res.Questions {
		if q.AnswerFailed() {
			failed++
		}
	}
	saved, err := w.store.SaveQuestionsBatch(ctx, store.QuestionBatch{
		InterviewID:         id,
		UserID:              iv.UserID,
		Type:                iv.Type,
		ProgrammingLanguage: iv.ProgrammingLanguage,
		Questions:           res.Questions,
	})
	if err != nil {
		return apperr.Service("store", "SaveQuestionsBatch", err)
	}
	out.Questions = saved
	w.metrics.AddQuestions(saved, failed)
	w.step(ctx, log, id, out, types.StepQuestionsSaved)

	log.WithFields(logrus.Fields{
		"questions":      len(res.Questions),
		"saved":          saved,
		"failed_answers": failed,
		"ai_calls":       res.AICalls,
		"attempts":       out.Attempts,
		"duration_ms":    res.DurationMs,
	}).Info("processing metrics")

	if err := w.store.UpdateInterviewState(ctx, id, types.StateCompleted); err != nil {
		return apperr.Service("store", "UpdateInterviewState", err)
	}
	w.step(ctx, log, id, out, types.StepCompleted)
	return nil
}

func (w *Workflow) runWithRetry(ctx context.Context, log *logrus.Entry, id, videoPath string, out *Outcome) (*processor.Result, error) {
	var res *processor.Result
	opts := append([]retry.Option{
		retry.WithService("processor"),
		retry.WithLogger(log),
	}, w.cfg.RetryOptions...)

	err := retry.Do(ctx, w.cfg.Policy, func(ctx context.Context) error {
		out.Attempts++
		w.metrics.IncAttempts()
		r, err := w.runner.Run(ctx, processor.Request{
			VideoRef:     videoPath,
			LanguageCode: w.cfg.LanguageCode,
			OnStep:       func(s types.Step) { w.step(ctx, log, id, out, s) },
		})
		if err != nil {
			return err
		}
		if r == nil {
			return errors.New("processing produced no result")
		}
		res = r
		return nil
	}, opts...)
	return res, err
}

// fail records the failure and makes one attempt to persist the failed state.
// Errors from that attempt are logged and dropped.
func (w *Workflow) fail(ctx context.Context, log *logrus.Entry, id string, out *Outcome) {
	log.WithFields(logrus.Fields{
		"error":       out.Err.Error(),
		"kind":        out.Kind,
		"step":        out.Step,
		"attempts":    out.Attempts,
		"duration_ms": out.Duration.Milliseconds(),
	}).Error("interview processing failed")
	w.metrics.ObserveRun("failure", string(out.Kind), out.Duration)

	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("marking interview failed panicked")
		}
	}()
	if err := w.store.UpdateInterviewState(ctx, id, types.StateFailed); err != nil {
		log.WithField("error", err.Error()).Error("could not mark interview failed")
		return
	}
	if err := w.progress.SetStep(ctx, id, types.StepFailed); err != nil {
		log.WithField("error", err.Error()).Debug("progress update failed")
	}
}

func (w *Workflow) step(ctx context.Context, log *logrus.Entry, id string, out *Outcome, s types.Step) {
	out.Step = s
	if err := w.progress.SetStep(context.WithoutCancel(ctx), id, s); err != nil {
		log.WithFields(logrus.Fields{"step": s, "error": err.Error()}).Debug("progress update failed")
	}
}

var recordValidator = newRecordValidator()

type recordRules struct {
	ID        string `json:"id" validate:"required"`
	VideoPath string `json:"video_path" validate:"videoref"`
	UserID    string `json:"user_id" validate:"anyuuid"`
}

func newRecordValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	// video_path is either an s3:// URI or a key under videos/ in the configured bucket
	_ = v.RegisterValidation("videoref", func(fl validator.FieldLevel) bool {
		ref := fl.Field().String()
		return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "videos/")
	})
	// the builtin uuid tag rejects upper case hex
	_ = v.RegisterValidation("anyuuid", func(fl validator.FieldLevel) bool {
		_, err := uuid.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

func validateRecord(iv *types.Interview) error {
	if iv == nil {
		return apperr.Validation("id", "", "missing")
	}
	err := recordValidator.Struct(recordRules{ID: iv.ID, VideoPath: iv.VideoPath, UserID: iv.UserID})
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	return apperr.Validation(fe.Field(), fmt.Sprint(fe.Value()), "failed "+fe.Tag()+" check")
}
