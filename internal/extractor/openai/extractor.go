// Package openaiextractor implements pipeline.Extractor against the OpenAI
// chat completion API.
package openaiextractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/pagestash/pagestash/internal/pipeline"
)

// Config controls the completion request.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	Instruction string
	MaxChars    int
}

const defaultInstruction = `Extract the main title and create a concise summary from this web page content.
For the title: Use the main page heading, document title, or prominent header text.
For the summary: Write a 3-4 sentence description of what this page is about and its main purpose.
If you cannot find a clear title, extract the most prominent heading or use the page's main topic.`

const defaultMaxChars = 16000

// completionClient is the slice of the OpenAI client the extractor needs.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor asks the model for a JSON object matching the record schema. The
// response is returned raw; validation happens downstream.
type Extractor struct {
	client completionClient
	cfg    Config
}

// New builds an Extractor from config.
func New(cfg Config) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newWithClient(openai.NewClientWithConfig(clientCfg), cfg)
}

func newWithClient(client completionClient, cfg Config) *Extractor {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Instruction == "" {
		cfg.Instruction = defaultInstruction
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	return &Extractor{client: client, cfg: cfg}
}

// Extract sends the page text and schema to the model and returns the raw
// JSON bytes of its answer.
func (e *Extractor) Extract(ctx context.Context, page pipeline.PageText, schema pipeline.Schema) ([]byte, error) {
	req := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: e.systemPrompt(schema),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: e.userPrompt(page),
			},
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}
	return []byte(stripFences(resp.Choices[0].Message.Content)), nil
}

func (e *Extractor) systemPrompt(schema pipeline.Schema) string {
	var b strings.Builder
	b.WriteString(e.cfg.Instruction)
	b.WriteString("\n\nRespond with a single JSON object containing exactly these fields:\n")
	for _, f := range schema.Fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "- %q (%s, %s)\n", f.Name, f.Type, req)
	}
	b.WriteString("Do not include any other fields and do not wrap the object in markdown.")
	return b.String()
}

func (e *Extractor) userPrompt(page pipeline.PageText) string {
	text := truncateRunes(page.Text, e.cfg.MaxChars)
	return fmt.Sprintf("URL: %s\nPage title: %s\n\nPage content:\n%s", page.URL, page.Title, text)
}

// truncateRunes cuts s to at most limit runes. Cutting on a rune boundary
// keeps the prompt valid UTF-8 for non-ASCII pages.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

// stripFences removes a markdown code fence if the model ignored the
// instruction and wrapped its answer anyway.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
