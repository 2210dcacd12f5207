package ollama

import (
	"context"
)

// Provider binds a Client to configured model names, exposing the narrow
// generation and embedding interfaces the core packages consume.
type Provider struct {
	client         *Client
	generateModel  string
	embeddingModel string
}

// NewProvider creates a provider around an Ollama client.
func NewProvider(client *Client, generateModel, embeddingModel string) *Provider {
	return &Provider{
		client:         client,
		generateModel:  generateModel,
		embeddingModel: embeddingModel,
	}
}

// Generate runs the configured generation model over the prompt.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.client.Generate(ctx, p.generateModel, prompt, nil)
}

// Embed vectorizes text with the configured embedding model.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	return p.client.GetEmbedding(ctx, p.embeddingModel, text)
}
