package ai

import (
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

func createOpenRouterFactory(args interface{}) (IGenerateProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	provider, err := newOpenAICompatible("openrouter", defaultOpenRouterBaseURL, openAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	provider.headers = map[string]string{}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		provider.headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		provider.headers["X-Title"] = v
	}
	return provider, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
