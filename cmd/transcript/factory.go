package transcript

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lemonhall/radioscribe/internal/asr"
	"github.com/lemonhall/radioscribe/internal/config"
	"github.com/lemonhall/radioscribe/internal/recordings"
	transcriptsvc "github.com/lemonhall/radioscribe/internal/transcript"
	"github.com/lemonhall/radioscribe/internal/translation"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

// ServiceFactory creates transcript manager instances
type ServiceFactory struct{}

// NewServiceFactory creates a new service factory
func NewServiceFactory() *ServiceFactory {
	return &ServiceFactory{}
}

// CreateManager creates a transcript manager with all dependencies
func (f *ServiceFactory) CreateManager() (*transcriptsvc.Manager, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	ws, err := workspace.NewDir(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}

	secrets, err := config.LoadSecrets(cfg.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	asrClient := asr.NewDashScopeClient(secrets.DashScopeBaseURL, secrets.DashScopeAPIKey, secrets.ASRModel)
	translator := translation.NewOpenAIClient(secrets.OpenAIBaseURL, secrets.OpenAIAPIKey, secrets.LLMModel)
	resolver := recordings.NewResolver(ws)
	store := transcriptsvc.NewStore(ws)
	processor := transcriptsvc.NewProcessor(ws, asrClient, translator, log.Logger)

	return transcriptsvc.NewManager(ws, resolver, store, processor, secrets, log.Logger), nil
}
