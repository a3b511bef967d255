package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/plastinin/pagesolver/internal/config"
	"github.com/plastinin/pagesolver/internal/domain"
	"github.com/plastinin/pagesolver/internal/usecase"
	"go.uber.org/zap"
)

// OllamaClient клиент для работы с Ollama API
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *zap.Logger
}

// NewOllamaClient создаёт новый экземпляр OllamaClient
func NewOllamaClient(cfg config.OllamaConfig, logger *zap.Logger) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL: strings.TrimRight(cfg.Host, "/"),
		model:   cfg.Model,
		logger:  logger,
	}
}

// ollamaMessage сообщение /api/chat
type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // Base64 encoded images
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatRequest структура запроса к /api/chat
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

// ollamaChatResponse структура ответа /api/chat
type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// TransformPage решает одну страницу
func (c *OllamaClient) TransformPage(ctx context.Context, req usecase.PageRequest) (string, error) {
	c.logger.Debug("Transforming page",
		zap.String("model", c.model),
		zap.Int("page", req.PageNumber),
		zap.Int("total", req.TotalPages),
		zap.Int("image_size", len(req.Image)),
	)

	prompt := buildPagePrompt(req.PageNumber, req.TotalPages, req.DetailLevel)
	return c.chat(ctx, prompt, [][]byte{req.Image}, 4096)
}

// TransformDocument решает документ целиком, страницы передаются изображениями в одном сообщении
func (c *OllamaClient) TransformDocument(ctx context.Context, req usecase.DocumentRequest) (string, error) {
	if len(req.Pages) == 0 {
		return "", domain.NewTransformError(domain.TransformFatal, errors.New("document has no rendered pages"))
	}

	c.logger.Debug("Transforming document",
		zap.String("model", c.model),
		zap.Int("pages", len(req.Pages)),
	)

	prompt := buildDocumentPrompt(len(req.Pages), req.DetailLevel)
	return c.chat(ctx, prompt, req.Pages, 4096*len(req.Pages))
}

// chat отправляет запрос к /api/chat и классифицирует ошибки
func (c *OllamaClient) chat(ctx context.Context, prompt string, images [][]byte, numPredict int) (string, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}

	reqBody := ollamaChatRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{
				Role:    "user",
				Content: prompt,
				Images:  encoded,
			},
		},
		Stream: false,
		Options: &ollamaOptions{
			Temperature: 0.1,
			NumPredict:  numPredict,
		},
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.NewTransformError(domain.TransformFatal, fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/api/chat", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return "", domain.NewTransformError(domain.TransformFatal, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewTransformError(domain.TransformTransient, fmt.Errorf("failed to send request to Ollama: %w", err))
	}
	defer resp.Body.Close()

	c.logger.Debug("Ollama request completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("status_code", resp.StatusCode),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return "", &domain.TransformError{Kind: classifyResponse(resp.StatusCode, msg), Message: msg}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", domain.NewTransformError(domain.TransformTransient, fmt.Errorf("failed to decode response: %w", err))
	}

	if chatResp.Error != "" {
		msg := fmt.Sprintf("ollama error: %s", chatResp.Error)
		return "", &domain.TransformError{Kind: domain.ClassifyMessage(msg), Message: msg}
	}

	text := cleanResponse(chatResp.Message.Content)
	if text == "" {
		return "", &domain.TransformError{Kind: domain.TransformTransient, Message: "ollama returned empty response"}
	}

	return text, nil
}

// CheckHealth проверяет доступность Ollama
func (c *OllamaClient) CheckHealth(ctx context.Context) error {
	_, err := c.listModels(ctx)
	return err
}

// CheckModel проверяет, что модель загружена
func (c *OllamaClient) CheckModel(ctx context.Context) error {
	models, err := c.listModels(ctx)
	if err != nil {
		return err
	}

	base := strings.Split(c.model, ":")[0]
	for _, name := range models {
		if strings.HasPrefix(name, base) {
			c.logger.Info("Model found", zap.String("model", name))
			return nil
		}
	}

	return fmt.Errorf("model %s not found, please run: ollama pull %s", c.model, c.model)
}

// listModels возвращает имена моделей из /api/tags
func (c *OllamaClient) listModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/api/tags", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama health check failed with status: %d", resp.StatusCode)
	}

	var tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	names := make([]string, len(tagsResp.Models))
	for i, m := range tagsResp.Models {
		names[i] = m.Name
	}
	return names, nil
}
