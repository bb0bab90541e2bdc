package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/choraleia/parlance/pkg/config"
	"github.com/choraleia/parlance/pkg/models"
	"github.com/choraleia/parlance/pkg/utils"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// CompletionOptions tunes one completion call. Zero MaxTokens leaves the provider default.
type CompletionOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// CompletionProvider generates text and images.
type CompletionProvider interface {
	Complete(ctx context.Context, msgs []models.PromptMessage, opts CompletionOptions) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// ModelService is the CompletionProvider backed by eino chat models for text
// and the OpenAI images API for pictures.
type ModelService struct {
	cfg    config.LLMConfig
	logger *slog.Logger

	mu     sync.Mutex
	models map[string]einoModel.BaseChatModel

	images *openaisdk.Client
}

func NewModelService(cfg config.LLMConfig) *ModelService {
	s := &ModelService{
		cfg:    cfg,
		logger: utils.GetLogger(),
		models: make(map[string]einoModel.BaseChatModel),
	}

	imageKey := cfg.ImageAPIKey
	if imageKey == "" && (cfg.Provider == "" || cfg.Provider == "openai") {
		imageKey = cfg.APIKey
	}
	if imageKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(imageKey)}
		if cfg.BaseURL != "" && cfg.Provider == "openai" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		client := openaisdk.NewClient(opts...)
		s.images = &client
	}
	return s
}

// Complete sends msgs to the configured provider and returns the reply text.
func (s *ModelService) Complete(ctx context.Context, msgs []models.PromptMessage, opts CompletionOptions) (string, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = s.cfg.DefaultModel
	}
	chatModel, err := s.getChatModel(ctx, modelName)
	if err != nil {
		return "", err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	callOpts := []einoModel.Option{einoModel.WithTemperature(float32(opts.Temperature))}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, einoModel.WithMaxTokens(opts.MaxTokens))
	}

	start := time.Now()
	resp, err := chatModel.Generate(ctx, toSchemaMessages(msgs), callOpts...)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	s.logger.Debug("Completion finished", "model", modelName, "messages", len(msgs), "duration", time.Since(start))
	return resp.Content, nil
}

// GenerateImage returns the URL of one generated image.
func (s *ModelService) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if s.images == nil {
		return "", errors.New("image generation is not configured")
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	resp, err := s.images.Images.Generate(ctx, openaisdk.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openaisdk.ImageModel(s.cfg.ImageModel),
		N:              openaisdk.Int(1),
		Size:           openaisdk.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openaisdk.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("image generation returned no url")
	}
	return resp.Data[0].URL, nil
}

// getChatModel returns a cached chat model for modelName, creating it on first use.
func (s *ModelService) getChatModel(ctx context.Context, modelName string) (einoModel.BaseChatModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.models[modelName]; ok {
		return m, nil
	}
	m, err := s.CreateChatModel(ctx, &models.ModelConfig{
		Provider: s.cfg.Provider,
		Model:    modelName,
		BaseUrl:  s.cfg.BaseURL,
		ApiKey:   s.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	s.models[modelName] = m
	return m, nil
}

// CreateChatModel creates an eino chat model from config
func (s *ModelService) CreateChatModel(ctx context.Context, cfg *models.ModelConfig) (einoModel.BaseChatModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = "openai"
	}
	if _, ok := models.SupportedModelProviders[provider]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}

	switch provider {
	case "openai", "custom":
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseUrl,
			APIKey:  cfg.ApiKey,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return chatModel, nil

	case "deepseek":
		chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			BaseURL: cfg.BaseUrl,
			APIKey:  cfg.ApiKey,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		return chatModel, nil

	case "anthropic":
		var baseURL *string
		if cfg.BaseUrl != "" {
			baseURL = &cfg.BaseUrl
		}
		chatModel, err := claude.NewChatModel(ctx, &claude.Config{
			BaseURL:   baseURL,
			APIKey:    cfg.ApiKey,
			Model:     cfg.Model,
			MaxTokens: 8192,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude model: %w", err)
		}
		return chatModel, nil

	case "ollama":
		chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseUrl,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama model: %w", err)
		}
		return chatModel, nil

	case "google":
		genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.ApiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini model: %w", err)
		}
		return chatModel, nil

	case "qwen":
		chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL: cfg.BaseUrl,
			APIKey:  cfg.ApiKey,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qwen model: %w", err)
		}
		return chatModel, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

func toSchemaMessages(msgs []models.PromptMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}
