package extractor

import (
	"context"
	"regexp"
	"strings"

	"interview-processor-go/internal/types"
)

var (
	questionSentence = regexp.MustCompile(`[^.!?]*\?`)
	whitespace       = regexp.MustCompile(`\s+`)
	questionOpener   = regexp.MustCompile(`(?i)^(?:` +
		`(?:what|where|when|why|how|who|which)\b|` +
		`(?:do|did|will|can|could|would)\s+you\b|` +
		`does\s+(?:he|she|it|this|that)\b|` +
		`should\s+(?:i|we)\b|` +
		`is\s+(?:it|this|that|there)\b|` +
		`are\s+(?:you|they|there)\b|` +
		`tell\s+me\b)`)
)

// Heuristic finds question sentences with regular expressions. It needs no model and
// cannot tell interviewer questions from candidate questions.
type Heuristic struct{}

func (Heuristic) ExtractQuestions(_ context.Context, transcript string) ([]types.ExtractedQuestion, error) {
	var out []types.ExtractedQuestion
	for _, m := range questionSentence.FindAllString(transcript, -1) {
		s := strings.TrimSpace(whitespace.ReplaceAllString(m, " "))
		if !questionOpener.MatchString(s) {
			continue
		}
		out = append(out, types.ExtractedQuestion{Question: s})
	}
	return Normalize(out), nil
}
