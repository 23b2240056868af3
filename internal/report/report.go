// Package report writes the results of processing a single video to disk.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"interview-processor-go/internal/processor"
	"interview-processor-go/internal/types"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	questionsSheet = "Questions"
	summarySheet   = "Summary"
)

type Summary struct {
	TranscriptLength          int      `json:"transcript_length,omitempty"`
	TotalQuestions            int      `json:"total_questions_found"`
	FailedAnswers             int      `json:"failed_answers"`
	AICalls                   int      `json:"ai_calls_made,omitempty"`
	ProcessingDurationSeconds float64  `json:"processing_duration_seconds"`
	ServicesUsed              []string `json:"aws_services_used,omitempty"`
	ErrorMessage              string   `json:"error_message,omitempty"`
}

type Report struct {
	VideoPath string                    `json:"video_path"`
	Status    string                    `json:"status"`
	Summary   Summary                   `json:"summary"`
	Questions []types.ExtractedQuestion `json:"questions"`
}

// Summarize builds the report of one run. runErr, when set, wins over res.
func Summarize(videoPath string, res *processor.Result, runErr error, took time.Duration, services []string) Report {
	r := Report{
		VideoPath: videoPath,
		Summary:   Summary{ProcessingDurationSeconds: took.Seconds()},
		Questions: []types.ExtractedQuestion{},
	}
	if runErr != nil || res == nil {
		r.Status = StatusError
		if runErr != nil {
			r.Summary.ErrorMessage = runErr.Error()
		} else {
			r.Summary.ErrorMessage = "processing produced no result"
		}
		return r
	}

	r.Status = StatusSuccess
	r.Summary.ServicesUsed = services
	r.Summary.AICalls = res.AICalls
	if res.Transcript != nil {
		r.Summary.TranscriptLength = len(res.Transcript.Text)
	}
	for _, q := range res.Questions {
		if q.AnswerFailed() {
			r.Summary.FailedAnswers++
		}
	}
	r.Summary.TotalQuestions = len(res.Questions)
	if res.Questions != nil {
		r.Questions = res.Questions
	}
	return r
}

// BaseName is the file name stem used for the outputs of videoPath.
func BaseName(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_results"
}

// Write stores r as <stem>_results.json and <stem>_results.xlsx under dir.
func Write(dir string, r Report) (jsonPath, xlsxPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}
	name := BaseName(r.VideoPath)
	jsonPath = filepath.Join(dir, name+".json")
	xlsxPath = filepath.Join(dir, name+".xlsx")

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", jsonPath, err)
	}
	if err := writeWorkbook(xlsxPath, r); err != nil {
		return "", "", err
	}
	return jsonPath, xlsxPath, nil
}

func writeWorkbook(path string, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", questionsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetRow(questionsSheet, "A1", &[]interface{}{"#", "Question", "Context", "Answer"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, q := range r.Questions {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{i + 1, q.Question, q.QuestionContext, q.ProfessionalAnswer}
		if err := f.SetSheetRow(questionsSheet, cell, &row); err != nil {
			return fmt.Errorf("write question %d: %w", i+1, err)
		}
	}
	_ = f.SetRowStyle(questionsSheet, 1, 1, bold)
	_ = f.SetColWidth(questionsSheet, "B", "B", 60)
	_ = f.SetColWidth(questionsSheet, "C", "C", 30)
	_ = f.SetColWidth(questionsSheet, "D", "D", 80)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := [][]interface{}{
		{"Video", r.VideoPath},
		{"Status", r.Status},
		{"Questions", r.Summary.TotalQuestions},
		{"Failed answers", r.Summary.FailedAnswers},
		{"Transcript length", r.Summary.TranscriptLength},
		{"Processing seconds", fmt.Sprintf("%.1f", r.Summary.ProcessingDurationSeconds)},
	}
	if r.Summary.ErrorMessage != "" {
		rows = append(rows, []interface{}{"Error", r.Summary.ErrorMessage})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	_ = f.SetColStyle(summarySheet, "A", bold)
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 60)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
