package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/health-insight/internal/domain/ai"
	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/infra/ai/prompt"
)

const (
	maxTokens    = 2048
	defaultModel = "gpt-4o-mini"
)

var _ exams.MarkerExtractor = (*Extractor)(nil)

// Extractor asks a chat model for the marker set of an exam
type Extractor struct {
	*openai.Client
	Model string
}

// NewExtractor builds a client; baseURL is optional and points at any
// OpenAI-compatible endpoint.
func NewExtractor(apiKey, model, baseURL string) *Extractor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Extractor{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Extractor) Extract(ctx context.Context, req exams.ExtractRequest) (*exams.Analysis, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	chat := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(req.Type, req.RawResults, req.FileRef)},
		},
	}
	// reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		chat.MaxCompletionTokens = maxTokens
	} else {
		chat.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, chat)
	if err != nil {
		if isQuota(err) {
			return nil, fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ai.ErrMalformedResponse)
	}
	return toAnalysis(resp.Choices[0].Message.Content)
}

func isQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests
}

// toAnalysis validates the model output. Unknown marker keys are dropped;
// a reply with no usable marker is rejected.
func toAnalysis(content string) (*exams.Analysis, error) {
	var r prompt.Response
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrMalformedResponse, err)
	}

	a := &exams.Analysis{
		Markers:         make(map[exams.MarkerKey]exams.Marker, len(r.Markers)),
		Summary:         strings.TrimSpace(r.Summary),
		Recommendations: []string{},
	}
	for k, m := range r.Markers {
		key := exams.MarkerKey(strings.ToLower(strings.TrimSpace(k)))
		if !exams.IsKnownMarker(key) {
			continue
		}
		if m.Value == nil && strings.TrimSpace(m.Text) == "" {
			continue
		}
		status, ok := normalizeStatus(m.Status)
		if !ok {
			return nil, fmt.Errorf("%w: marker %s has status %q", ai.ErrMalformedResponse, key, m.Status)
		}
		a.Markers[key] = exams.Marker{
			Value:     m.Value,
			Text:      strings.TrimSpace(m.Text),
			Unit:      m.Unit,
			Status:    status,
			Reference: m.Reference,
		}
	}
	if len(a.Markers) == 0 {
		return nil, fmt.Errorf("%w: no known markers", ai.ErrMalformedResponse)
	}
	for _, rec := range r.Recommendations {
		if rec = strings.TrimSpace(rec); rec != "" {
			a.Recommendations = append(a.Recommendations, rec)
		}
	}
	return a, nil
}

func normalizeStatus(s string) (exams.MarkerStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return exams.MarkerNormal, true
	case "attention", "abnormal", "high", "low":
		return exams.MarkerAttention, true
	}
	return "", false
}
