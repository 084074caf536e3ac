package ai

import (
	"context"
	"errors"
	"fmt"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"facilityai/internal/config"
)

// Role identifies the author of a chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one ordered turn handed to the generation backend.
type Message struct {
	Role    Role
	Content string
}

// ErrNoEmbedder is returned by Embed when no embedding backend is configured.
var ErrNoEmbedder = errors.New("embedding backend not configured")

// Client talks to the configured chat-completion provider and, when an
// OpenAI key is present, the embedding endpoint used for retrieval.
type Client struct {
	chatModel model.ToolCallingChatModel
	embedder  embedding.Embedder
}

// NewClient builds the provider-specific chat model named in the config.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	provider := cfg.BasicConfig.Provider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s has no api key", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	client := &Client{chatModel: chatModel}

	if cfg.Embedding.APIKey != "" {
		embModel := cfg.Embedding.Model
		if embModel == "" {
			embModel = "text-embedding-3-small"
		}
		emb, err := openaiembed.NewEmbedder(ctx, &openaiembed.EmbeddingConfig{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   embModel,
		})
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
		client.embedder = emb
	}

	return client, nil
}

// Complete runs one generation over the ordered message sequence and returns
// the reply text plus the total token count the provider reported. A missing
// usage block counts as zero tokens, never an error.
func (c *Client) Complete(ctx context.Context, msgs []Message) (string, int, error) {
	schemaMessages := make([]*schema.Message, 0, len(msgs))
	for _, msg := range msgs {
		var role schema.RoleType
		switch msg.Role {
		case RoleSystem:
			role = schema.System
		case RoleAssistant:
			role = schema.Assistant
		default:
			role = schema.User
		}
		schemaMessages = append(schemaMessages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}

	resp, err := c.chatModel.Generate(ctx, schemaMessages)
	if err != nil {
		return "", 0, fmt.Errorf("generate completion: %w", err)
	}
	if resp == nil {
		return "", 0, nil
	}

	tokens := 0
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		tokens = resp.ResponseMeta.Usage.TotalTokens
	}
	return resp.Content, tokens, nil
}

// Embed computes the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil {
		return nil, ErrNoEmbedder
	}
	vectors, err := c.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedding response was empty")
	}
	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}
