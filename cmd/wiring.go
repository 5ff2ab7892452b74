package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/agents"
	"github.com/spigell/job-agent/internal/document"
	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/llm/gemini"
	"github.com/spigell/job-agent/internal/llm/openai"
	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/metrics"
	"github.com/spigell/job-agent/internal/pipeline"
	"github.com/spigell/job-agent/internal/secrets"
)

var apiKeyEnv = map[string][]string{
	openai.ProviderDeepSeek: {"DEEPSEEK_API_KEY"},
	openai.ProviderOpenAI:   {"OPENAI_API_KEY"},
	gemini.Provider:         {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

func newBackend(ctx context.Context, cfg *LLMConfig) (llm.Backend, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = openai.ProviderDeepSeek
	}

	env, ok := apiKeyEnv[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  provider + " api key",
		File:  cfg.APIKeyFile,
		Value: cfg.APIKey,
		Env:   env,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set llm.api-key-file or %s, a .env file works too)", err, env[0])
	}

	if provider == gemini.Provider {
		return gemini.New(ctx, apiKey, cfg.Model)
	}
	return openai.New(openai.Config{
		APIKey:   apiKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Provider: provider,
	})
}

func newInvoker(ctx context.Context, cfg *LLMConfig, m *metrics.Metrics, l *zap.Logger) (*llm.Invoker, error) {
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	llmLogger := logger.WithCommonFields(logger.Component(l, "llm"), backend.Provider(), backend.Model())
	llmLogger.Info("llm backend ready",
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Int("requests_per_minute", cfg.RequestsPerMinute),
	)

	return llm.NewInvoker(backend,
		llm.WithPolicy(cfg.Policy),
		llm.WithLimiter(llm.LimiterPerMinute(cfg.RequestsPerMinute)),
		llm.WithLogger(llmLogger, cfg.MaxLogLength),
		llm.WithObserver(llm.NewLogObserver(llmLogger, cfg.MaxLogLength)),
		llm.WithObserver(m.LLMObserver()),
	), nil
}

// newMetrics registers the collectors on a fresh registry.
func newMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.New(reg), reg
}

func newStages(inv *llm.Invoker, config *Config, gate pipeline.Gate, disabled map[string]string, l *zap.Logger) []pipeline.Stage {
	return pipeline.Stages(pipeline.Config{
		Analyzer:   agents.NewAnalyzer(inv, l),
		Customizer: agents.NewCustomizer(inv, l),
		Writer:     agents.NewCoverLetterWriter(inv, l),
		Builder:    document.NewBuilder(l),
		TopK:       config.TopK,
		MinScore:   config.MinMatchScore,
		Gate:       gate,
		DisabledBy: disabled,
	})
}
