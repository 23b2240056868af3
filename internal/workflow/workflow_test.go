package workflow_test

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/logger"
	"interview-processor-go/internal/processor"
	"interview-processor-go/internal/queue"
	"interview-processor-go/internal/retry"
	"interview-processor-go/internal/types"
	"interview-processor-go/internal/workflow"
)

const (
	interviewID = "11111111-1111-1111-1111-111111111111"
	userID      = "22222222-2222-2222-2222-222222222222"
)

var fastPolicy = retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func findEntry(hook *test.Hook, msg string) *logrus.Entry {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return e
		}
	}
	return nil
}

var _ = Describe("Workflow", func() {
	var (
		ctx      context.Context
		st       *fakeStore
		runner   *fakeRunner
		ext      *fakeExtender
		rec      *fakeRecorder
		tracker  *fakeTracker
		hook     *test.Hook
		wf       *workflow.Workflow
		msg      *queue.Message
		answered *processor.Result
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = newFakeStore()
		st.interviews[interviewID] = &types.Interview{
			ID:                  interviewID,
			UserID:              userID,
			VideoPath:           "videos/x/y/sample.mp4",
			Type:                "technical",
			ProgrammingLanguage: "go",
			State:               types.StatePending,
		}
		answered = &processor.Result{
			Questions: []types.ExtractedQuestion{
				{Question: "Tell me about yourself?", ProfessionalAnswer: "I build backend services."},
			},
			AICalls: 2,
		}
		runner = &fakeRunner{steps: []runStep{{res: answered}}}
		ext = &fakeExtender{}
		rec = &fakeRecorder{}
		tracker = &fakeTracker{}
		msg = &queue.Message{ID: "m-1", ReceiptHandle: "rh-1"}

		base, h := test.NewNullLogger()
		hook = h
		wf = workflow.New(st, ext, runner, rec, tracker, workflow.Config{
			Policy:       fastPolicy,
			LanguageCode: "en-US",
		}, &logger.Logger{Entry: logrus.NewEntry(base)})
	})

	Context("with a malformed interview id", func() {
		It("fails without touching the store or the queue", func() {
			out := wf.Run(ctx, "not-a-uuid", msg)

			Expect(out.Success).To(BeFalse())
			Expect(out.Kind).To(Equal(apperr.KindValidation))
			Expect(st.calls).To(BeZero())
			Expect(ext.extended).To(BeEmpty())
			Expect(runner.requests).To(BeEmpty())
			Expect(rec.runs).To(Equal([]observation{{"failure", "validation"}}))
		})
	})

	Context("with a valid pending interview", func() {
		It("persists the answered question and completes", func() {
			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeTrue())

			Expect(st.states).To(Equal([]types.InterviewState{types.StateProcessing, types.StateCompleted}))
			Expect(st.state(interviewID)).To(Equal(types.StateCompleted))
			Expect(st.batches).To(HaveLen(1))
			b := st.batches[0]
			Expect(b.InterviewID).To(Equal(interviewID))
			Expect(b.UserID).To(Equal(userID))
			Expect(b.Type).To(Equal("technical"))
			Expect(b.ProgrammingLanguage).To(Equal("go"))
			Expect(b.Questions).To(HaveLen(1))
			Expect(b.Questions[0].ProfessionalAnswer).NotTo(BeEmpty())

			Expect(ext.extended).To(Equal([]time.Duration{workflow.DefaultVisibility}))
			Expect(runner.requests).To(HaveLen(1))
			Expect(runner.requests[0].VideoRef).To(Equal("videos/x/y/sample.mp4"))
			Expect(runner.requests[0].LanguageCode).To(Equal("en-US"))
			Expect(rec.runs).To(Equal([]observation{{"success", ""}}))
			Expect(rec.saved).To(Equal(1))
		})

		It("publishes every step in order", func() {
			out := wf.Run(ctx, interviewID, msg)

			Expect(out.Step).To(Equal(types.StepCompleted))
			Expect(tracker.steps).To(Equal([]types.Step{
				types.StepLoaded,
				types.StepProcessing,
				types.StepMediaExtracted,
				types.StepTranscribed,
				types.StepQuestionsExtracted,
				types.StepQuestionsSaved,
				types.StepCompleted,
			}))
		})

		It("logs processing metrics", func() {
			wf.Run(ctx, interviewID, msg)

			e := findEntry(hook, "processing metrics")
			Expect(e).NotTo(BeNil())
			Expect(e.Data).To(HaveKeyWithValue("questions", 1))
			Expect(e.Data).To(HaveKeyWithValue("ai_calls", 2))
			Expect(e.Data).To(HaveKeyWithValue("interview_id", interviewID))
			Expect(e.Data).To(HaveKey("run_id"))
		})

		It("skips visibility extension without a message", func() {
			Expect(wf.ProcessInterview(ctx, interviewID, nil)).To(BeTrue())
			Expect(ext.extended).To(BeEmpty())
		})

		It("carries on when visibility extension fails", func() {
			ext.err = errors.New("receipt handle expired")
			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeTrue())
			Expect(findEntry(hook, "extend visibility failed")).NotTo(BeNil())
		})

		It("completes with zero questions when none were found", func() {
			runner.steps = []runStep{{res: &processor.Result{AICalls: 1}}}

			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeTrue())
			Expect(st.state(interviewID)).To(Equal(types.StateCompleted))
			Expect(st.batches).To(HaveLen(1))
			Expect(st.batches[0].Questions).To(BeEmpty())
		})

		It("keeps questions whose answer failed", func() {
			runner.steps = []runStep{{res: &processor.Result{Questions: []types.ExtractedQuestion{
				{Question: "Why Go?", ProfessionalAnswer: "Simplicity."},
				{Question: "What is a channel?", ProfessionalAnswer: types.AnswerFailedMarker + ": throttled"},
			}}}}

			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeTrue())
			Expect(st.batches[0].Questions).To(HaveLen(2))
			Expect(rec.saved).To(Equal(2))
			Expect(rec.failed).To(Equal(1))
		})

		It("writes a second independent batch when run twice", func() {
			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeTrue())
			st.interviews[interviewID].State = types.StatePending
			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeTrue())
			Expect(st.batches).To(HaveLen(2))
		})
	})

	Context("when the record is unusable", func() {
		It("treats a missing interview as a validation failure", func() {
			delete(st.interviews, interviewID)

			out := wf.Run(ctx, interviewID, msg)
			Expect(out.Success).To(BeFalse())
			Expect(out.Kind).To(Equal(apperr.KindValidation))
			Expect(runner.requests).To(BeEmpty())
		})

		DescribeTable("rejects invalid fields",
			func(mutate func(*types.Interview)) {
				mutate(st.interviews[interviewID])

				out := wf.Run(ctx, interviewID, msg)
				Expect(out.Success).To(BeFalse())
				Expect(out.Kind).To(Equal(apperr.KindValidation))
				Expect(runner.requests).To(BeEmpty())
				Expect(st.states).To(Equal([]types.InterviewState{types.StateFailed}))
			},
			Entry("empty id", func(iv *types.Interview) { iv.ID = "" }),
			Entry("bad user id", func(iv *types.Interview) { iv.UserID = "bob" }),
			Entry("unknown video prefix", func(iv *types.Interview) { iv.VideoPath = "/tmp/sample.mp4" }),
			Entry("empty video path", func(iv *types.Interview) { iv.VideoPath = "" }),
		)

		DescribeTable("accepts well-formed fields",
			func(mutate func(*types.Interview)) {
				mutate(st.interviews[interviewID])

				out := wf.Run(ctx, interviewID, msg)
				Expect(out.Err).NotTo(HaveOccurred())
				Expect(out.Success).To(BeTrue())
				Expect(st.state(interviewID)).To(Equal(types.StateCompleted))
			},
			Entry("upper case user id", func(iv *types.Interview) { iv.UserID = "ABCDEF12-3456-7890-ABCD-EF1234567890" }),
			Entry("s3 video uri", func(iv *types.Interview) { iv.VideoPath = "s3://uploads/videos/x/y/sample.mp4" }),
		)

		It("classifies a store read failure as a service error", func() {
			st.getErr = errors.New("throttled")

			out := wf.Run(ctx, interviewID, msg)
			Expect(out.Kind).To(Equal(apperr.KindService))
		})
	})

	Context("when marking processing fails", func() {
		It("stops before any later step", func() {
			st.updateErr[types.StateProcessing] = errors.New("conditional check failed")

			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeFalse())
			Expect(ext.extended).To(BeEmpty())
			Expect(runner.requests).To(BeEmpty())
			Expect(st.batches).To(BeEmpty())
			Expect(st.states).To(Equal([]types.InterviewState{types.StateFailed}))
		})
	})

	Context("when processing fails", func() {
		It("succeeds on the third attempt after two transient failures", func() {
			runner.steps = []runStep{
				{err: errors.New("connection reset")},
				{err: errors.New("connection reset")},
				{res: answered},
			}

			out := wf.Run(ctx, interviewID, msg)
			Expect(out.Success).To(BeTrue())
			Expect(out.Attempts).To(Equal(3))
			Expect(rec.attempts).To(Equal(3))
			Expect(st.state(interviewID)).To(Equal(types.StateCompleted))
		})

		It("marks the interview failed once retries are exhausted", func() {
			runner.steps = []runStep{{err: apperr.Service("transcribe", "Wait", errors.New("job FAILED: unsupported media"))}}

			out := wf.Run(ctx, interviewID, msg)
			Expect(out.Success).To(BeFalse())
			Expect(out.Attempts).To(Equal(3))
			Expect(out.Kind).To(Equal(apperr.KindService))
			Expect(st.state(interviewID)).To(Equal(types.StateFailed))
			Expect(st.batches).To(BeEmpty())
			Expect(rec.runs).To(Equal([]observation{{"failure", "service"}}))
			Expect(tracker.steps).To(HaveLen(3))
			Expect(tracker.steps[2]).To(Equal(types.StepFailed))
		})

		It("does not retry access denied", func() {
			runner.steps = []runStep{{err: &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}}}

			out := wf.Run(ctx, interviewID, msg)
			Expect(out.Success).To(BeFalse())
			Expect(out.Attempts).To(Equal(1))
			Expect(out.Kind).To(Equal(apperr.KindService))
			Expect(apperr.Code(out.Err)).To(Equal("AccessDeniedException"))
		})

		It("treats a nil result as a failure", func() {
			runner.steps = []runStep{{}}

			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeFalse())
			Expect(runner.requests).To(HaveLen(3))
		})

		It("recovers from a panic and marks the interview failed", func() {
			runner.steps = []runStep{{panic: "nil map"}}

			var out workflow.Outcome
			Expect(func() { out = wf.Run(ctx, interviewID, msg) }).NotTo(Panic())
			Expect(out.Success).To(BeFalse())
			Expect(out.Kind).To(Equal(apperr.KindUnexpected))
			Expect(st.state(interviewID)).To(Equal(types.StateFailed))
		})

		It("swallows a failure to persist the failed state", func() {
			runner.steps = []runStep{{err: &smithy.GenericAPIError{Code: "ValidationException"}}}
			st.updateErr[types.StateFailed] = errors.New("table unavailable")

			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeFalse())
			Expect(st.state(interviewID)).To(Equal(types.StateProcessing))
			Expect(findEntry(hook, "could not mark interview failed")).NotTo(BeNil())
		})
	})

	Context("when the worker is stopping", func() {
		It("marks the interview failed before starting the slow work", func() {
			stopped, cancel := context.WithCancel(ctx)
			cancel()

			out := wf.Run(stopped, interviewID, msg)
			Expect(out.Success).To(BeFalse())
			Expect(out.Err).To(MatchError(workflow.ErrStopped))
			Expect(out.Step).To(Equal(types.StepProcessing))
			Expect(runner.requests).To(BeEmpty())
			Expect(st.states).To(Equal([]types.InterviewState{types.StateProcessing, types.StateFailed}))
		})

		It("does not retry once the stop arrives mid-run", func() {
			stopped, cancel := context.WithCancel(ctx)
			defer cancel()
			runner.onRun = cancel
			runner.steps = []runStep{{err: context.Canceled}}

			out := wf.Run(stopped, interviewID, msg)
			Expect(out.Success).To(BeFalse())
			Expect(out.Err).To(MatchError(workflow.ErrStopped))
			Expect(out.Attempts).To(Equal(1))
			Expect(st.batches).To(BeEmpty())
			Expect(st.state(interviewID)).To(Equal(types.StateFailed))
			Expect(tracker.steps[len(tracker.steps)-1]).To(Equal(types.StepFailed))
		})
	})

	Context("when persisting fails", func() {
		It("marks failed if saving questions fails", func() {
			st.saveErr = errors.New("ProvisionedThroughputExceeded")

			Expect(wf.ProcessInterview(ctx, interviewID, msg)).To(BeFalse())
			Expect(st.state(interviewID)).To(Equal(types.StateFailed))
		})

		It("returns false if completed cannot be persisted", func() {
			st.updateErr[types.StateCompleted] = errors.New("timeout")

			out := wf.Run(ctx, interviewID, msg)
			Expect(out.Success).To(BeFalse())
			Expect(out.Step).To(Equal(types.StepQuestionsSaved))
			Expect(st.batches).To(HaveLen(1))
			Expect(st.state(interviewID)).To(Equal(types.StateFailed))
		})
	})
})
