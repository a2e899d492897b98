package app

import (
	"fmt"
	"time"

	"chimera/internal/adapters/filesystem"
	"chimera/internal/adapters/notion"
	"chimera/internal/adapters/openai"
	"chimera/internal/config"
	"chimera/internal/logger"
	"chimera/internal/ports"
	"chimera/internal/retry"
)

func retryPolicy(cfg *config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.LLM.MaxRetries > 0 {
		p.MaxTries = cfg.LLM.MaxRetries
	}
	return p
}

func wireSource(cfg *config.Config, log *logger.Logger) (ports.DocumentSource, error) {
	log = log.With("component", "source")
	switch cfg.Source.Kind {
	case "filesystem":
		return filesystem.NewSource(cfg.Source.Root, cfg.Source.MaxContentChars, log), nil
	case "notion":
		src, err := notion.New(notion.Options{
			Token:           cfg.Source.NotionToken,
			BaseURL:         cfg.Source.NotionBaseURL,
			Version:         cfg.Source.NotionVersion,
			RateLimit:       cfg.Source.RateLimit,
			MaxContentChars: cfg.Source.MaxContentChars,
			Timeout:         30 * time.Second,
			Retry:           retryPolicy(cfg),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("notion source: %w", err)
		}
		return src, nil
	default:
		return nil, unknownBackend("CHIMERA_SOURCE_KIND", cfg.Source.Kind, "filesystem", "notion")
	}
}

func wireLLM(cfg *config.Config, log *logger.Logger) (ports.LanguageModel, error) {
	client, err := openai.New(openai.Options{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		EmbedModel: cfg.LLM.EmbedModel,
		Dimensions: cfg.Graph.VectorDims,
		Timeout:    cfg.LLM.Timeout,
		RateLimit:  cfg.LLM.RateLimit,
		Retry:      retryPolicy(cfg),
	}, log.With("component", "llm"))
	if err != nil {
		return nil, fmt.Errorf("language model: %w", err)
	}
	return client, nil
}
