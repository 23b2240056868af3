package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"interview-processor-go/internal/apperr"
)

const DefaultBedrockModel = "us.anthropic.claude-sonnet-4-20250514-v1:0"

// BedrockAPI is the subset of the Bedrock runtime client used here.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock completes prompts with an Anthropic model hosted on Amazon Bedrock.
type Bedrock struct {
	api     BedrockAPI
	modelID string
}

func NewBedrock(api BedrockAPI, modelID string) *Bedrock {
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	return &Bedrock{api: api, modelID: modelID}
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature"`
	TopP             float64          `json:"top_p,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (b *Bedrock) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        req.MaxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: req.Prompt}},
		Temperature:      req.Temperature,
		TopP:             req.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("encode bedrock request: %w", err)
	}

	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", apperr.Service("bedrock", "InvokeModel", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", apperr.Service("bedrock", "InvokeModel", fmt.Errorf("decode response: %w", err))
	}
	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "" || c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", apperr.Service("bedrock", "InvokeModel", fmt.Errorf("no content in response"))
	}
	return sb.String(), nil
}
