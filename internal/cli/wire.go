package cli

import (
	"fmt"
	"log/slog"
	"os"

	"formless/internal/config"
	"formless/internal/matching"
	"formless/internal/store"
	"formless/pkg/formless"
	"formless/pkg/llm"
	"formless/pkg/llm/providers/gemini"
	"formless/pkg/llm/providers/openai"
)

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

func openStore(cfg config.Config) (store.Store, error) {
	return store.Open(cfg.Storage.Backend, cfg.Storage.Path)
}

func buildRegistry(cfg config.Config) (*llm.Registry, error) {
	providers := make(map[string]formless.LLMProvider, len(cfg.Providers))
	for key, profile := range cfg.Providers {
		provider, err := buildProvider(profile)
		if err != nil {
			return nil, fmt.Errorf("build provider %s: %w", key, err)
		}
		providers[key] = provider
	}

	return llm.NewRegistry(providers)
}

func buildProvider(profile config.ProviderProfile) (formless.LLMProvider, error) {
	switch profile.Type {
	case "openai":
		providerConfig := openai.ProviderConfig{
			APIKey:  profile.APIKey,
			BaseURL: profile.BaseURL,
		}
		if profile.OpenAI != nil {
			providerConfig.Organization = profile.OpenAI.Organization
			providerConfig.Project = profile.OpenAI.Project
			providerConfig.MaxRetries = profile.OpenAI.MaxRetries
		}
		return openai.New(providerConfig)
	case "gemini":
		providerConfig := gemini.ProviderConfig{
			APIKey:  profile.APIKey,
			BaseURL: profile.BaseURL,
		}
		if profile.Gemini != nil {
			providerConfig.APIVersion = profile.Gemini.APIVersion
		}
		return gemini.New(providerConfig)
	default:
		return nil, fmt.Errorf("unsupported provider type %q", profile.Type)
	}
}

func buildOrchestrator(
	cfg config.Config,
	registry *llm.Registry,
	memoryStore formless.MemoryStore,
	logger *slog.Logger,
) (*matching.Orchestrator, error) {
	matchProvider, err := registry.Resolve(cfg.Matching.Provider)
	if err != nil {
		return nil, fmt.Errorf("bind matching oracle: %w", err)
	}
	resolver, err := matching.NewResolver(matchProvider, oracleParams(cfg.Matching))
	if err != nil {
		return nil, fmt.Errorf("bind matching oracle: %w", err)
	}

	generateProvider, err := registry.Resolve(cfg.Generation.Provider)
	if err != nil {
		return nil, fmt.Errorf("bind generation oracle: %w", err)
	}
	composer, err := matching.NewComposer(generateProvider, oracleParams(cfg.Generation))
	if err != nil {
		return nil, fmt.Errorf("bind generation oracle: %w", err)
	}

	return matching.NewOrchestrator(matching.OrchestratorConfig{
		Store:          memoryStore,
		Resolver:       resolver,
		Composer:       composer,
		Logger:         logger,
		MaxConcurrency: cfg.MatchConcurrency,
	})
}

func oracleParams(binding config.OracleBinding) matching.OracleParams {
	return matching.OracleParams{
		Model:           binding.Model,
		Temperature:     binding.Temperature,
		MaxOutputTokens: binding.MaxOutputTokens,
		RequestTimeout:  binding.RequestTimeout,
	}
}
