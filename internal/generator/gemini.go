package generator

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type geminiBackend struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func newGeminiBackend(ctx context.Context, cfg Config) (*geminiBackend, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiBackend{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

func (b *geminiBackend) Name() string {
	return ProviderGemini + "/" + b.model
}

func (b *geminiBackend) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(b.temperature),
		MaxOutputTokens:   b.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
