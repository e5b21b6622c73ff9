package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/recordings"
)

// Default provider endpoints and models. The .env file or process
// environment overrides any of them.
const (
	defaultDashScopeBaseURL = "https://dashscope.aliyuncs.com/api/v1"
	defaultASRModel         = "qwen3-asr-flash"
	defaultLLMModel         = "gpt-4o-mini"
)

// Secrets carries provider credentials and endpoints. They load from
// <workspace_root>/radio_recordings/.env, with process environment
// variables taking precedence, so the same workspace tree moves between
// machines without re-entering keys.
type Secrets struct {
	DashScopeAPIKey  string
	DashScopeBaseURL string
	ASRModel         string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMModel      string
}

var secretKeys = []string{
	"DASHSCOPE_API_KEY",
	"DASHSCOPE_BASE_URL",
	"ASR_MODEL",
	"OPENAI_API_KEY",
	"OPENAI_BASE_URL",
	"LLM_MODEL",
}

// LoadSecrets reads the workspace .env file, if present, and applies
// environment overrides.
func LoadSecrets(workspaceRoot string) (*Secrets, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(workspaceRoot, recordings.RadioRootDir, ".env"))
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.CodeInvalidArgs, "failed to read workspace .env")
		}
	}
	for _, key := range secretKeys {
		if env := strings.TrimSpace(os.Getenv(key)); env != "" {
			v.Set(key, env)
		}
	}

	s := &Secrets{
		DashScopeAPIKey:  strings.TrimSpace(v.GetString("DASHSCOPE_API_KEY")),
		DashScopeBaseURL: strings.TrimSpace(v.GetString("DASHSCOPE_BASE_URL")),
		ASRModel:         strings.TrimSpace(v.GetString("ASR_MODEL")),
		OpenAIAPIKey:     strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		OpenAIBaseURL:    strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),
		LLMModel:         strings.TrimSpace(v.GetString("LLM_MODEL")),
	}
	if s.DashScopeBaseURL == "" {
		s.DashScopeBaseURL = defaultDashScopeBaseURL
	}
	if s.ASRModel == "" {
		s.ASRModel = defaultASRModel
	}
	if s.LLMModel == "" {
		s.LLMModel = defaultLLMModel
	}
	return s, nil
}

// RequireASR fails when the transcription provider is not configured.
func (s *Secrets) RequireASR() error {
	if s.DashScopeAPIKey == "" {
		return errors.New(errors.CodeInvalidArgs, "missing DASHSCOPE_API_KEY (edit radio_recordings/.env)")
	}
	return nil
}

// RequireTranslation fails when the translation provider is not
// configured.
func (s *Secrets) RequireTranslation() error {
	if s.OpenAIAPIKey == "" {
		return errors.New(errors.CodeInvalidArgs, "missing OPENAI_API_KEY (edit radio_recordings/.env)")
	}
	return nil
}
