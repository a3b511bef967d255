package llm

import (
	"fmt"

	"github.com/plastinin/pagesolver/internal/config"
	"github.com/plastinin/pagesolver/internal/usecase"
	"go.uber.org/zap"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// NewTransformer создаёт клиента удалённых преобразований по LLM_PROVIDER
func NewTransformer(cfg *config.Config, logger *zap.Logger) (usecase.DocumentTransformer, error) {
	switch cfg.LLM.Provider {
	case "", ProviderOllama:
		return NewOllamaClient(cfg.Ollama, logger.Named("ollama")), nil
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider %q", ProviderOpenAI)
		}
		return NewOpenAIClient(cfg.OpenAI, logger.Named("openai")), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}
