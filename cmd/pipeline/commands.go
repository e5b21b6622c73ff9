package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lemonhall/radioscribe/internal/asr"
	"github.com/lemonhall/radioscribe/internal/config"
	pipelinesvc "github.com/lemonhall/radioscribe/internal/pipeline"
	"github.com/lemonhall/radioscribe/internal/recordings"
	"github.com/lemonhall/radioscribe/internal/transcript"
	"github.com/lemonhall/radioscribe/internal/translation"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

// NewPipelineCmd creates and returns the pipeline command
func NewPipelineCmd() *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Transcribe and translate a whole session",
		Long: `Run the chunk pipeline over a session: each chunk is transcribed and
then translated before moving to the next, so partial results are
usable immediately. Failed chunks are skipped and retried on the next
run.`,
	}

	pipelineCmd.AddCommand(newRunCmd())

	return pipelineCmd
}

// newRunCmd creates the pipeline run command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the transcribe and translate pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			dir, _ := cmd.Flags().GetString("dir")
			sourceLang, _ := cmd.Flags().GetString("source-lang")
			targetLang, _ := cmd.Flags().GetString("target-lang")

			runner, err := createRunner()
			if err != nil {
				return err
			}

			result, err := runner.Run(cmd.Context(), pipelinesvc.RunRequest{
				SessionID:      sessionID,
				Dir:            dir,
				SourceLanguage: sourceLang,
				TargetLanguage: targetLang,
			})
			if err != nil {
				return err
			}

			jsonBytes, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Println(string(jsonBytes))
			return nil
		},
	}

	runCmd.Flags().String("session", "", "session id to process")
	runCmd.Flags().String("dir", "", "session directory (<root>/<sessionId>), overrides --session")
	runCmd.Flags().String("source-lang", "", "source language hint, or auto")
	runCmd.Flags().String("target-lang", "", "target language for translation")

	return runCmd
}

// createRunner builds the pipeline runner with all dependencies
func createRunner() (*pipelinesvc.Runner, error) {
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
	processor := transcript.NewProcessor(ws, asrClient, translator, log.Logger)

	return pipelinesvc.NewRunner(ws, resolver, processor, secrets, log.Logger), nil
}
