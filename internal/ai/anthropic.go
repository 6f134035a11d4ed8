package ai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sirupsen/logrus"

	"github.com/DomeenoH/dual/internal/logging"
)

const (
	defaultAnthropicMaxTokens int64 = 8192
	// thinkingHeadroom is reserved on top of the thinking budget for the visible reply
	thinkingHeadroom int64 = 4096
	// minThinkingBudget is the smallest budget the Messages API accepts
	minThinkingBudget = 1024
)

// AnthropicTransport streams turns through the Anthropic Messages API
type AnthropicTransport struct {
	client anthropic.Client
	log    *logrus.Entry
}

func NewAnthropicTransport(client anthropic.Client) *AnthropicTransport {
	return &AnthropicTransport{
		client: client,
		log:    logging.NewLogger("ai.anthropic"),
	}
}

func (t *AnthropicTransport) Generate(ctx context.Context, call Call, onDelta func(Delta)) (*Result, error) {
	params := anthropicParams(call)
	acc := newAccumulator(onDelta)

	stream := t.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	response := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := response.Accumulate(event); err != nil {
			return nil, fmt.Errorf("failed to accumulate response content stream: %w", err)
		}
		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				acc.add(Delta{Text: delta.Text})
			case anthropic.ThinkingDelta:
				acc.add(Delta{Thoughts: delta.Thinking})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("failed to stream response: %w", err)
	}

	var errorTag string
	switch response.StopReason {
	case "":
		errorTag = "malformed_message"
		t.log.WithField("model", call.Model).Warn("Stream ended without a stop reason")
	case "refusal":
		errorTag = string(response.StopReason)
	}
	return acc.result(errorTag), nil
}

func anthropicParams(call Call) anthropic.MessageNewParams {
	maxTokens := call.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	blocks := []anthropic.ContentBlockParamUnion{}
	if call.Image != nil {
		blocks = append(blocks, anthropic.NewImageBlockBase64(call.Image.MediaType, base64.StdEncoding.EncodeToString(call.Image.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(call.Prompt))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(call.Model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if call.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: call.SystemInstruction}}
	}
	if call.Reasoning != nil {
		budget := int64(max(call.Reasoning.TokenBudget(), minThinkingBudget))
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		params.MaxTokens = max(maxTokens, budget+thinkingHeadroom)
	}
	return params
}
