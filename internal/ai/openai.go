package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/DomeenoH/dual/internal/logging"
	"github.com/DomeenoH/dual/internal/transport"
)

const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// APIError is a non-success HTTP response from a provider endpoint
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// OpenAITransport streams turns from any OpenAI-compatible chat completions endpoint
type OpenAITransport struct {
	baseURL string
	client  *http.Client
	log     *logrus.Entry
}

// NewOpenAITransport authenticates with a bearer token and retries rate-limited requests
func NewOpenAITransport(baseURL, apiKey string) *OpenAITransport {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	var rt http.RoundTripper = transport.WithRateLimiting(nil)
	if apiKey != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey}),
			Base:   rt,
		}
	}
	return NewOpenAITransportWithClient(baseURL, &http.Client{Transport: rt})
}

func NewOpenAITransportWithClient(baseURL string, client *http.Client) *OpenAITransport {
	return &OpenAITransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     logging.NewLogger("ai.openai"),
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	MaxTokens int64         `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Reasoning        string `json:"reasoning"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func chatRequestFor(call Call) chatRequest {
	messages := []chatMessage{}
	if call.SystemInstruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: call.SystemInstruction})
	}
	if call.Image != nil {
		dataURL := fmt.Sprintf("data:%s;base64,%s", call.Image.MediaType, base64.StdEncoding.EncodeToString(call.Image.Data))
		messages = append(messages, chatMessage{Role: "user", Content: []chatPart{
			{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
			{Type: "text", Text: call.Prompt},
		}})
	} else {
		messages = append(messages, chatMessage{Role: "user", Content: call.Prompt})
	}
	return chatRequest{Model: call.Model, Messages: messages, Stream: true, MaxTokens: call.MaxOutputTokens}
}

// Generate ignores call.Reasoning: OpenAI-compatible endpoints disagree on how reasoning is configured
func (t *OpenAITransport) Generate(ctx context.Context, call Call, onDelta func(Delta)) (*Result, error) {
	body, err := json.Marshal(chatRequestFor(call))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	acc := newAccumulator(onDelta)
	var finishReason string
	done, err := readEvents(resp.Body, func(payload []byte) error {
		var chunk chatChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			t.log.WithError(err).Debug("Skipping undecodable stream frame")
			return nil
		}
		if chunk.Error != nil {
			return &APIError{StatusCode: http.StatusOK, Message: chunk.Error.Message}
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		choice := chunk.Choices[0]
		thoughts := choice.Delta.ReasoningContent
		if thoughts == "" {
			thoughts = choice.Delta.Reasoning
		}
		acc.add(Delta{Text: choice.Delta.Content, Thoughts: thoughts})
		if choice.FinishReason != nil {
			finishReason = *choice.FinishReason
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	var errorTag string
	switch {
	case finishReason == "content_filter":
		errorTag = finishReason
	case !done && finishReason == "":
		errorTag = "stream_truncated"
	}
	if errorTag != "" {
		t.log.WithFields(logrus.Fields{"model": call.Model, "tag": errorTag}).Warn("Stream finished abnormally")
	}
	return acc.result(errorTag), nil
}
