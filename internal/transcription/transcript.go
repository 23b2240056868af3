package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/types"
)

type transcriptDocument struct {
	JobName string `json:"jobName"`
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
		Items []struct {
			Type         string `json:"type"`
			StartTime    string `json:"start_time"`
			EndTime      string `json:"end_time"`
			SpeakerLabel string `json:"speaker_label"`
			Alternatives []struct {
				Content    string `json:"content"`
				Confidence string `json:"confidence"`
			} `json:"alternatives"`
		} `json:"items"`
		SpeakerLabels struct {
			Segments []struct {
				SpeakerLabel string `json:"speaker_label"`
				StartTime    string `json:"start_time"`
				EndTime      string `json:"end_time"`
			} `json:"segments"`
		} `json:"speaker_labels"`
	} `json:"results"`
}

// Fetch downloads the transcript document and parses it.
func (c *Client) Fetch(ctx context.Context, uri string) (*types.Transcript, error) {
	if uri == "" {
		return nil, apperr.Service("transcribe", "Fetch", fmt.Errorf("job completed without transcript uri"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}
	var doc transcriptDocument
	if err := c.doJSON(ctx, req, &doc); err != nil {
		return nil, apperr.Service("transcribe", "Fetch", err)
	}
	return parseTranscript(doc), nil
}

func (c *Client) doJSON(ctx context.Context, req *http.Request, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * c.cfg.DownloadTimeout
	var lastErr error
	op := func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
			return lastErr
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("download failed %d: %s", resp.StatusCode, string(body))
			return backoff.Permanent(lastErr)
		}
		if len(body) == 0 {
			lastErr = fmt.Errorf("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v", err)
			return backoff.Permanent(lastErr)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			return err
		}
		return lastErr
	}
	return nil
}

// parseTranscript extracts the full text and groups pronunciation items into speaker turns.
func parseTranscript(doc transcriptDocument) *types.Transcript {
	tr := &types.Transcript{JobName: doc.JobName}
	if len(doc.Results.Transcripts) > 0 {
		tr.Text = strings.TrimSpace(doc.Results.Transcripts[0].Transcript)
	}

	type span struct {
		speaker    string
		start, end float64
	}
	var spans []span
	for _, s := range doc.Results.SpeakerLabels.Segments {
		spans = append(spans, span{s.SpeakerLabel, parseSeconds(s.StartTime), parseSeconds(s.EndTime)})
	}
	speakerAt := func(t float64) string {
		for _, s := range spans {
			if t >= s.start && t <= s.end {
				return s.speaker
			}
		}
		return ""
	}

	var cur *types.SpeakerSegment
	var words []string
	flush := func() {
		if cur != nil && len(words) > 0 {
			cur.Text = strings.Join(words, "")
			tr.Segments = append(tr.Segments, *cur)
		}
		cur, words = nil, nil
	}
	for _, item := range doc.Results.Items {
		if len(item.Alternatives) == 0 {
			continue
		}
		content := item.Alternatives[0].Content
		if item.Type == "punctuation" {
			if cur != nil {
				words = append(words, content)
			}
			continue
		}
		start := parseSeconds(item.StartTime)
		speaker := item.SpeakerLabel
		if speaker == "" {
			speaker = speakerAt(start)
		}
		if cur == nil || cur.Speaker != speaker {
			flush()
			cur = &types.SpeakerSegment{Speaker: speaker, StartTime: start}
		}
		if len(words) > 0 {
			words = append(words, " ")
		}
		words = append(words, content)
	}
	flush()
	return tr
}

func parseSeconds(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
