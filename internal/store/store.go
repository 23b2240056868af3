// Package store persists interview records and the questions extracted from them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"interview-processor-go/internal/types"
)

// MaxBatchSize is the number of question records written per batch call.
const MaxBatchSize = 25

var ErrRecordNotFound = errors.New("record not found")

type Store interface {
	GetInterview(ctx context.Context, id string) (*types.Interview, error)
	// UpdateInterviewState sets the state and updated_at of an existing interview.
	UpdateInterviewState(ctx context.Context, id string, state types.InterviewState) error
	// SaveQuestionsBatch writes one record per question and returns how many were stored.
	SaveQuestionsBatch(ctx context.Context, batch QuestionBatch) (int, error)
}

type QuestionBatch struct {
	InterviewID         string
	UserID              string
	Type                string
	ProgrammingLanguage string
	Questions           []types.ExtractedQuestion
}

// QuestionRecord is the persisted form of one extracted question.
type QuestionRecord struct {
	ID                  string `dynamodbav:"id" gorm:"primaryKey;size:36"`
	InterviewID         string `dynamodbav:"interview_id" gorm:"index;size:36;not null"`
	UserID              string `dynamodbav:"user_id" gorm:"index;size:36;not null"`
	Question            string `dynamodbav:"question" gorm:"not null"`
	QuestionContext     string `dynamodbav:"question_context,omitempty"`
	Answer              string `dynamodbav:"answer,omitempty"`
	Type                string `dynamodbav:"type,omitempty"`
	ProgrammingLanguage string `dynamodbav:"programming_language,omitempty"`
	Global              bool   `dynamodbav:"global" gorm:"not null;default:false"`
	CreatedAt           string `dynamodbav:"created_at"`
	UpdatedAt           string `dynamodbav:"updated_at"`
}

func (QuestionRecord) TableName() string { return "questions" }

// Records expands a batch into question records stamped with now.
func (b QuestionBatch) Records(now time.Time) []QuestionRecord {
	ts := Timestamp(now)
	out := make([]QuestionRecord, 0, len(b.Questions))
	for _, q := range b.Questions {
		out = append(out, QuestionRecord{
			ID:                  uuid.NewString(),
			InterviewID:         b.InterviewID,
			UserID:              b.UserID,
			Question:            q.Question,
			QuestionContext:     q.QuestionContext,
			Answer:              q.ProfessionalAnswer,
			Type:                b.Type,
			ProgrammingLanguage: b.ProgrammingLanguage,
			Global:              false,
			CreatedAt:           ts,
			UpdatedAt:           ts,
		})
	}
	return out
}

// Timestamp formats t as the ISO-8601 string stored in created_at/updated_at.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
