package ai

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/DomeenoH/dual/internal/logging"
)

// GeminiTransport streams turns through the Gemini API
type GeminiTransport struct {
	client *genai.Client
	log    *logrus.Entry
}

// NewGeminiTransport creates a Gemini API client. baseURL may be empty to use the public endpoint.
func NewGeminiTransport(ctx context.Context, apiKey, baseURL string) (*GeminiTransport, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiTransport{client: client, log: logging.NewLogger("ai.gemini")}, nil
}

func (t *GeminiTransport) Generate(ctx context.Context, call Call, onDelta func(Delta)) (*Result, error) {
	parts := []*genai.Part{}
	if call.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(call.Image.Data, call.Image.MediaType))
	}
	parts = append(parts, genai.NewPartFromText(call.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	stream := t.client.Models.GenerateContentStream(ctx, call.Model, contents, geminiConfig(call))
	result, err := consumeGeminiStream(stream, newAccumulator(onDelta))
	if err != nil {
		return nil, err
	}
	if result.ErrorTag != "" {
		t.log.WithFields(logrus.Fields{"model": call.Model, "tag": result.ErrorTag}).Warn("Stream finished abnormally")
	}
	return result, nil
}

func geminiConfig(call Call) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if call.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(call.SystemInstruction, genai.RoleUser)
	}
	if call.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(call.MaxOutputTokens)
	}
	if r := call.Reasoning; r != nil {
		tc := &genai.ThinkingConfig{IncludeThoughts: true}
		if r.Level != "" {
			tc.ThinkingLevel = genai.ThinkingLevel(strings.ToUpper(string(r.Level)))
		} else {
			tc.ThinkingBudget = genai.Ptr(int32(r.Budget))
		}
		cfg.ThinkingConfig = tc
	}
	return cfg
}

// consumeGeminiStream drains the response iterator into acc, splitting thought parts from reply text
func consumeGeminiStream(stream iter.Seq2[*genai.GenerateContentResponse, error], acc *accumulator) (*Result, error) {
	var errorTag string
	for resp, err := range stream {
		if err != nil {
			return nil, fmt.Errorf("failed to stream response: %w", err)
		}
		if resp == nil {
			continue
		}
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			errorTag = string(fb.BlockReason)
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil {
				continue
			}
			if isAbnormalFinish(candidate.FinishReason) {
				errorTag = string(candidate.FinishReason)
			}
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil || part.Text == "" {
					continue
				}
				if part.Thought {
					acc.add(Delta{Thoughts: part.Text})
				} else {
					acc.add(Delta{Text: part.Text})
				}
			}
		}
	}
	return acc.result(errorTag), nil
}

func isAbnormalFinish(reason genai.FinishReason) bool {
	switch reason {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop, genai.FinishReasonMaxTokens:
		return false
	default:
		return true
	}
}
