package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/types"
)

// MinQuestionLength is the length a question must exceed to be kept.
const MinQuestionLength = 5

var ErrNoJSON = errors.New("no JSON array found in model output")

type QuestionExtractor interface {
	ExtractQuestions(ctx context.Context, transcript string) ([]types.ExtractedQuestion, error)
}

type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, q types.ExtractedQuestion) (string, error)
}

type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Completer sends one prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// LLM extracts interviewer questions and drafts answers with a language model.
type LLM struct {
	completer Completer
	role      string
	log       *logrus.Entry
}

// DefaultRole describes the interview to the model.
const DefaultRole = "a job interview for a software engineering position"

func NewLLM(c Completer, role string, log *logrus.Entry) *LLM {
	if role == "" {
		role = DefaultRole
	}
	return &LLM{completer: c, role: role, log: log.WithField("component", "extractor-llm")}
}

func buildExtractionPrompt(role, transcript string) string {
	return fmt.Sprintf(`I am going to provide you with an interview transcript.
This is %s.
Analyze the transcript and extract ONLY the questions asked by the interviewer.

Instructions:
- Extract complete questions asked by the interviewer
- Do not include answers or responses from the interviewee
- If a question is ambiguous, like "Do you have any questions about any of that?", add a short "question_context" that clarifies it
- Generalize confidential details of either party (names, locations, salaries, company names)
- Do not repeat questions
- Do NOT generate answers
- Return ONLY a JSON array of objects with "question" and optionally "question_context":
  [{"question": "question 1", "question_context": "optional context"}, {"question": "question 2"}]

Interview transcript:
%s

JSON array of interviewer questions:`, role, transcript)
}

func buildAnswerPrompt(role string, q types.ExtractedQuestion) string {
	extra := ""
	if q.QuestionContext != "" {
		extra = "\nQuestion context: " + q.QuestionContext
	}
	return fmt.Sprintf(`Provide a professional answer to an interview question.
This is %s; the answer should help a candidate prepare.

Question: %s%s

Instructions:
- Be professional, comprehensive and concise
- Use technical terms appropriately and structure the answer clearly
- Do not include personal information
- Return ONLY the answer text

Professional answer:`, role, q.Question, extra)
}

func (l *LLM) ExtractQuestions(ctx context.Context, transcript string) ([]types.ExtractedQuestion, error) {
	out, err := l.completer.Complete(ctx, CompletionRequest{
		Prompt:      buildExtractionPrompt(l.role, transcript),
		MaxTokens:   10000,
		Temperature: 0.1,
		TopP:        0.9,
	})
	if err != nil {
		return nil, err
	}
	qs, err := parseQuestions(out)
	if err != nil {
		l.log.WithField("output", truncate(out, 500)).Warn("could not parse questions from model output")
		return nil, apperr.Service("llm", "ExtractQuestions", err)
	}
	l.log.WithField("questions", len(qs)).Info("questions extracted")
	return qs, nil
}

func (l *LLM) GenerateAnswer(ctx context.Context, q types.ExtractedQuestion) (string, error) {
	out, err := l.completer.Complete(ctx, CompletionRequest{
		Prompt:      buildAnswerPrompt(l.role, q),
		MaxTokens:   2000,
		Temperature: 0.2,
		TopP:        0.9,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

type rawQuestion struct {
	Question        string `json:"question"`
	QuestionContext string `json:"question_context"`
}

// parseQuestions reads the first JSON array in s. Items without a usable question are skipped.
func parseQuestions(s string) ([]types.ExtractedQuestion, error) {
	arr := extractJSONArray(s)
	if arr == "" {
		return nil, ErrNoJSON
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	var raw []types.ExtractedQuestion
	for _, it := range items {
		var q rawQuestion
		if json.Unmarshal(it, &q) != nil {
			continue
		}
		raw = append(raw, types.ExtractedQuestion{Question: q.Question, QuestionContext: q.QuestionContext})
	}
	return Normalize(raw), nil
}

// Normalize trims questions, drops those of MinQuestionLength characters or fewer and
// drops case-insensitive duplicates, keeping first occurrences in order.
func Normalize(in []types.ExtractedQuestion) []types.ExtractedQuestion {
	out := make([]types.ExtractedQuestion, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, q := range in {
		q.Question = strings.TrimSpace(q.Question)
		q.QuestionContext = strings.TrimSpace(q.QuestionContext)
		if len([]rune(q.Question)) <= MinQuestionLength {
			continue
		}
		key := strings.ToLower(q.Question)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
