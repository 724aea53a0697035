// Package llm provides agent.Invoker implementations backed by generative models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/foundersync/internal/agent"
	"google.golang.org/genai"
)

// Fixed generation parameters for every agent call.
const (
	Temperature     float32 = 0.7
	TopK            float32 = 40
	TopP            float32 = 0.95
	MaxOutputTokens int32   = 1024
)

// DefaultModel is used when GeminiConfig.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// GeminiConfig configures a Gemini client.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // empty = public endpoint
	HTTPClient *http.Client
}

// Gemini invokes the Gemini generateContent API.
type Gemini struct {
	client *genai.Client
	model  string
	cfg    *genai.GenerateContentConfig
}

var _ agent.Invoker = (*Gemini)(nil)

// NewGemini creates a Gemini invoker. An empty API key is an error.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	temp, topK, topP := Temperature, TopK, TopP
	return &Gemini{
		client: client,
		model:  cfg.Model,
		cfg: &genai.GenerateContentConfig{
			Temperature:     &temp,
			TopK:            &topK,
			TopP:            &topP,
			MaxOutputTokens: MaxOutputTokens,
		},
	}, nil
}

// Invoke sends prompt as a single user turn and returns the first candidate's text.
func (g *Gemini) Invoke(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &agent.UpstreamRequestError{StatusCode: statusCode(err), Err: err}
	}

	return firstText(res)
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

func firstText(res *genai.GenerateContentResponse) (string, error) {
	switch {
	case res == nil || len(res.Candidates) == 0:
		return "", &agent.UpstreamFormatError{Reason: "no candidates"}
	case res.Candidates[0] == nil || res.Candidates[0].Content == nil:
		return "", &agent.UpstreamFormatError{Reason: "candidate has no content"}
	case len(res.Candidates[0].Content.Parts) == 0 || res.Candidates[0].Content.Parts[0] == nil:
		return "", &agent.UpstreamFormatError{Reason: "content has no parts"}
	case res.Candidates[0].Content.Parts[0].Text == "":
		return "", &agent.UpstreamFormatError{Reason: "first part has no text"}
	}
	return res.Candidates[0].Content.Parts[0].Text, nil
}
