package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/carewire/hospital-router/internal/config"
	"github.com/carewire/hospital-router/internal/oracle"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) defaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) ClassifyQuery(ctx context.Context, query string, candidates []string) (*oracle.Result, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := p.defaultModel()
	generativeModel := client.GenerativeModel(model)
	// Deterministic, single-token-ish output
	var temperature float32 = 0.0
	generativeModel.Temperature = &temperature
	var maxTokens int32 = 16
	generativeModel.MaxOutputTokens = &maxTokens

	prompt := oracle.BuildPrompt(query, candidates)

	start := time.Now()
	resp, err := generativeModel.GenerateContent(ctx, genai.Text(prompt))
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from gemini")
	}

	var output string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output += string(text)
		}
	}

	label, confidence, err := oracle.ParseReply(output, candidates)
	if err != nil {
		return nil, err
	}

	return &oracle.Result{
		Domain:     label,
		Confidence: confidence,
		Model:      model,
		LatencyMs:  latency,
	}, nil
}
