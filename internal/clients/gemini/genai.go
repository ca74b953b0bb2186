package gemini

import (
	"context"

	"google.golang.org/genai"
)

// Model is the transport behind Client. The production implementation calls
// the Gemini API through genai; tests substitute fakes.
type Model interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

type genaiModel struct {
	client *genai.Client
	cfg    *genai.GenerateContentConfig
}

func newGenaiModel(ctx context.Context, cfg Config) (Model, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	threshold := genai.HarmBlockThresholdBlockMediumAndAbove
	return &genaiModel{
		client: client,
		cfg: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(cfg.Temperature),
			TopP:            genai.Ptr(cfg.TopP),
			TopK:            genai.Ptr(cfg.TopK),
			MaxOutputTokens: cfg.MaxOutputTokens,
			SafetySettings: []*genai.SafetySetting{
				{Category: genai.HarmCategoryHarassment, Threshold: threshold},
				{Category: genai.HarmCategoryHateSpeech, Threshold: threshold},
				{Category: genai.HarmCategorySexuallyExplicit, Threshold: threshold},
				{Category: genai.HarmCategoryDangerousContent, Threshold: threshold},
			},
		},
	}, nil
}

func (m *genaiModel) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	resp, err := m.client.Models.GenerateContent(ctx, model, genai.Text(prompt), m.cfg)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}
