package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rpattn/importflow/internal/domain"
)

const defaultModel = openai.GPT4oMini

// OpenAIProvider asks a chat completion model to pair source columns with
// target schema fields. The model's confidence is trusted as given.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. Model falls back to a small
// default when empty.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

type suggestionPayload struct {
	SourceColumn string  `json:"sourceColumn"`
	TargetField  string  `json:"targetField"`
	Confidence   float64 `json:"confidence"`
}

// Suggest delegates to the model. Errors and timeouts surface to the
// adapter, which falls back without retrying.
func (p *OpenAIProvider) Suggest(ctx context.Context, columns []string) ([]domain.FieldMapping, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt(columns),
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", domain.ErrProviderUnavailable)
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)
	var payload []suggestionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed suggestion payload: %v", domain.ErrProviderUnavailable, err)
	}

	mappings := make([]domain.FieldMapping, 0, len(payload))
	for _, item := range payload {
		mappings = append(mappings, domain.FieldMapping{
			SourceColumn: item.SourceColumn,
			TargetField:  item.TargetField,
			Confidence:   item.Confidence,
			Provenance:   domain.ProvenanceLLM,
		})
	}
	return mappings, nil
}

func systemPrompt() string {
	var fields []string
	for _, spec := range domain.ProductSchema() {
		fields = append(fields, spec.Name)
	}
	return fmt.Sprintf(
		"You map spreadsheet columns to product catalog fields. "+
			"Target fields: %s. "+
			"Reply with a JSON array of {sourceColumn, targetField, confidence} objects, "+
			"confidence between 0 and 1. Omit columns with no sensible target. "+
			"Reply with JSON only.",
		strings.Join(fields, ", "),
	)
}

func userPrompt(columns []string) string {
	return fmt.Sprintf("Source columns: %s", strings.Join(columns, ", "))
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
