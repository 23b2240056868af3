package types

import "strings"

// InterviewState is the lifecycle state persisted on an interview record.
type InterviewState string

const (
	StatePending    InterviewState = "pending"
	StateProcessing InterviewState = "processing"
	StateCompleted  InterviewState = "completed"
	StateFailed     InterviewState = "failed"
)

type Interview struct {
	ID                  string         `json:"id"`
	UserID              string         `json:"user_id"`
	VideoPath           string         `json:"video_path"`
	Type                string         `json:"type,omitempty"`
	ProgrammingLanguage string         `json:"programming_language,omitempty"`
	State               InterviewState `json:"state,omitempty"`
}

// AnswerFailedMarker replaces the answer of a question whose answer call failed.
const AnswerFailedMarker = "Answer generation failed"

type ExtractedQuestion struct {
	Question           string `json:"question"`
	QuestionContext    string `json:"question_context,omitempty"`
	ProfessionalAnswer string `json:"professional_answer,omitempty"`
}

func (q ExtractedQuestion) AnswerFailed() bool {
	return strings.HasPrefix(q.ProfessionalAnswer, AnswerFailedMarker)
}

type SpeakerSegment struct {
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
}

type Transcript struct {
	JobName      string           `json:"job_name,omitempty"`
	LanguageCode string           `json:"language_code,omitempty"`
	Text         string           `json:"text"`
	Segments     []SpeakerSegment `json:"segments,omitempty"`
}

const (
	MediaStatusSuccess = "success"
	MediaStatusError   = "error"
)

type MediaResult struct {
	Status   string `json:"status"`
	VideoURI string `json:"video_uri"`
	AudioURI string `json:"audio_uri"`
	Message  string `json:"message,omitempty"`
}

// Step names a point in the processing state machine of one interview.
type Step string

const (
	StepReceived           Step = "received"
	StepLoaded             Step = "loaded"
	StepProcessing         Step = "processing"
	StepMediaExtracted     Step = "media_extracted"
	StepTranscribed        Step = "transcribed"
	StepQuestionsExtracted Step = "questions_extracted"
	StepQuestionsSaved     Step = "questions_saved"
	StepCompleted          Step = "completed"
	StepFailed             Step = "failed"
)
