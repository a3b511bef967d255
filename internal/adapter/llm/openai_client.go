package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/plastinin/pagesolver/internal/config"
	"github.com/plastinin/pagesolver/internal/domain"
	"github.com/plastinin/pagesolver/internal/usecase"
	"go.uber.org/zap"
)

// OpenAIClient клиент для OpenAI-совместимых chat completions с изображениями
type OpenAIClient struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient создаёт новый экземпляр OpenAIClient.
// Повторы SDK отключены: паузы и повторы задаёт конвейер.
func NewOpenAIClient(cfg config.OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

// TransformPage решает одну страницу
func (c *OpenAIClient) TransformPage(ctx context.Context, req usecase.PageRequest) (string, error) {
	c.logger.Debug("Transforming page",
		zap.String("model", c.model),
		zap.Int("page", req.PageNumber),
		zap.Int("total", req.TotalPages),
	)

	prompt := buildPagePrompt(req.PageNumber, req.TotalPages, req.DetailLevel)
	return c.complete(ctx, prompt, [][]byte{req.Image})
}

// TransformDocument решает документ целиком
func (c *OpenAIClient) TransformDocument(ctx context.Context, req usecase.DocumentRequest) (string, error) {
	if len(req.Pages) == 0 {
		return "", domain.NewTransformError(domain.TransformFatal, errors.New("document has no rendered pages"))
	}

	c.logger.Debug("Transforming document",
		zap.String("model", c.model),
		zap.Int("pages", len(req.Pages)),
	)

	prompt := buildDocumentPrompt(len(req.Pages), req.DetailLevel)
	return c.complete(ctx, prompt, req.Pages)
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string, images [][]byte) (string, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
	parts = append(parts, openai.TextContentPart(prompt))
	for _, img := range images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
		}))
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(0.1),
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", &domain.TransformError{Kind: domain.TransformTransient, Message: "empty choices in response"}
	}

	text := cleanResponse(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &domain.TransformError{Kind: domain.TransformTransient, Message: "empty completion"}
	}

	return text, nil
}

// classifyOpenAIError классифицирует ошибку SDK по HTTP статусу
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("openai returned status %d: %s", apiErr.StatusCode, apiErr.Message)
		return &domain.TransformError{
			Kind:    classifyResponse(apiErr.StatusCode, msg+" "+apiErr.RawJSON()),
			Message: msg,
			Err:     err,
		}
	}
	return domain.NewTransformError(domain.TransformTransient, fmt.Errorf("openai request failed: %w", err))
}
