package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// InvokeModelAPI is the subset of the Bedrock runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock invokes Anthropic models hosted on AWS Bedrock. Statements never
// leave the AWS account.
type Bedrock struct {
	client  InvokeModelAPI
	modelID string
}

// NewBedrock creates a Bedrock provider.
func NewBedrock(client InvokeModelAPI, modelID string) *Bedrock {
	return &Bedrock{client: client, modelID: modelID}
}

func (b *Bedrock) Name() string  { return "bedrock" }
func (b *Bedrock) Model() string { return b.modelID }

type bedrockRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      float64            `json:"temperature"`
}

// Retryable Bedrock error codes.
var bedrockRetryable = map[string]bool{
	"ThrottlingException":         true,
	"ServiceUnavailableException": true,
	"ModelTimeoutException":       true,
	"InternalServerException":     true,
	"ModelNotReadyException":      true,
}

func (b *Bedrock) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        req.MaxTokens,
		System:           req.System,
		Messages:         []anthropicMessage{{Role: "user", Content: req.User}},
		Temperature:      req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bedrock request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		var apiErr smithy.APIError
		retryable := errors.As(err, &apiErr) && bedrockRetryable[apiErr.ErrorCode()]
		if !retryable && errors.Is(err, context.DeadlineExceeded) {
			retryable = true
		}
		return nil, &Error{Provider: b.Name(), Retryable: retryable, Err: err}
	}

	var out anthropicResponse
	if err := json.Unmarshal(output.Body, &out); err != nil {
		return nil, &Error{Provider: b.Name(), Err: fmt.Errorf("parse response: %w", err)}
	}
	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, &Error{Provider: b.Name(), Retryable: true, Err: ErrEmptyResponse}
	}
	return &Response{
		Text:         text.String(),
		Provider:     b.Name(),
		Model:        b.modelID,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}
