package transcript

import (
	"github.com/spf13/cobra"

	transcriptsvc "github.com/lemonhall/radioscribe/internal/transcript"
)

// NewTranscriptCmd creates and returns the transcript command
func NewTranscriptCmd() *cobra.Command {
	transcriptCmd := &cobra.Command{
		Use:   "transcript",
		Short: "Transcript task operations for recording sessions",
		Long: `Create and drive resumable transcription tasks over a recording
session's audio chunks. Each task keeps its outputs in its own
directory under the session's transcripts/ tree.`,
	}

	// Add subcommands
	transcriptCmd.AddCommand(newStartCmd())
	transcriptCmd.AddCommand(newRunCmd())
	transcriptCmd.AddCommand(newCancelCmd())
	transcriptCmd.AddCommand(newRetryCmd())
	transcriptCmd.AddCommand(newListCmd())
	transcriptCmd.AddCommand(newStatusCmd())

	return transcriptCmd
}

// newStartCmd creates the transcript start command
func newStartCmd() *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Create a transcription task for a session",
		Long: `Create a transcription task after validating the session is stopped
and has audio chunks. The task then runs immediately unless --no-run
is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			dir, _ := cmd.Flags().GetString("dir")
			sourceLang, _ := cmd.Flags().GetString("source-lang")
			targetLang, _ := cmd.Flags().GetString("target-lang")
			force, _ := cmd.Flags().GetBool("force")
			noRun, _ := cmd.Flags().GetBool("no-run")

			manager, err := NewServiceFactory().CreateManager()
			if err != nil {
				return err
			}

			task, err := manager.Start(cmd.Context(), transcriptsvc.StartRequest{
				SessionID:      sessionID,
				Dir:            dir,
				SourceLanguage: sourceLang,
				TargetLanguage: targetLang,
				Force:          force,
			})
			if err != nil {
				return err
			}
			if noRun {
				return printTask(task)
			}

			task, err = manager.Run(cmd.Context(), sessionID, dir, task.TaskID)
			if perr := printTask(task); perr != nil {
				return perr
			}
			return err
		},
	}

	startCmd.Flags().String("session", "", "session id to transcribe")
	startCmd.Flags().String("dir", "", "session directory (<root>/<sessionId>), overrides --session")
	startCmd.Flags().String("source-lang", "", "source language hint, or auto")
	startCmd.Flags().String("target-lang", "", "translate each chunk to this language as well")
	startCmd.Flags().Bool("force", false, "reuse and restart an existing same-language task")
	startCmd.Flags().Bool("no-run", false, "only create the task, do not run it")

	return startCmd
}

// newRunCmd creates the transcript run command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run or resume a transcription task",
		Long: `Run a task's chunk loop. Chunks whose transcript file already exists
are skipped, so an interrupted run picks up where it stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			dir, _ := cmd.Flags().GetString("dir")
			taskID, _ := cmd.Flags().GetString("task")

			manager, err := NewServiceFactory().CreateManager()
			if err != nil {
				return err
			}

			task, err := manager.Run(cmd.Context(), sessionID, dir, taskID)
			if task != nil {
				if perr := printTask(task); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	runCmd.Flags().String("session", "", "session id")
	runCmd.Flags().String("dir", "", "session directory (<root>/<sessionId>), overrides --session")
	runCmd.Flags().String("task", "", "task id to run")

	return runCmd
}

// newCancelCmd creates the transcript cancel command
func newCancelCmd() *cobra.Command {
	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a transcription task",
		Long: `Mark a task cancelled. Chunk transcripts already written stay on
disk; a later run resumes past them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetString("task")

			manager, err := NewServiceFactory().CreateManager()
			if err != nil {
				return err
			}

			task, err := manager.Cancel(taskID)
			if err != nil {
				return err
			}
			return printTask(task)
		},
	}

	cancelCmd.Flags().String("task", "", "task id to cancel")

	return cancelCmd
}

// newRetryCmd creates the transcript retry command
func newRetryCmd() *cobra.Command {
	retryCmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry a failed or cancelled task",
		Long:  `Rewind a task to pending and run it again, keeping finished chunks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetString("task")
			noRun, _ := cmd.Flags().GetBool("no-run")

			manager, err := NewServiceFactory().CreateManager()
			if err != nil {
				return err
			}

			ref, _, err := manager.FindTaskByID(taskID)
			if err != nil {
				return err
			}
			task, err := manager.Retry(ref, taskID)
			if err != nil {
				return err
			}
			if noRun {
				return printTask(task)
			}

			task, err = manager.RunTask(cmd.Context(), ref, taskID)
			if task != nil {
				if perr := printTask(task); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	retryCmd.Flags().String("task", "", "task id to retry")
	retryCmd.Flags().Bool("no-run", false, "only rewind the task, do not run it")

	return retryCmd
}

// newListCmd creates the transcript list command
func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List transcription tasks for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			dir, _ := cmd.Flags().GetString("dir")

			manager, err := NewServiceFactory().CreateManager()
			if err != nil {
				return err
			}

			idx, err := manager.List(sessionID, dir)
			if err != nil {
				return err
			}
			return printTasksIndex(idx)
		},
	}

	listCmd.Flags().String("session", "", "session id")
	listCmd.Flags().String("dir", "", "session directory (<root>/<sessionId>), overrides --session")

	return listCmd
}

// newStatusCmd creates the transcript status command
func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show a task's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetString("task")

			manager, err := NewServiceFactory().CreateManager()
			if err != nil {
				return err
			}

			_, task, err := manager.FindTaskByID(taskID)
			if err != nil {
				return err
			}
			return printTask(task)
		},
	}

	statusCmd.Flags().String("task", "", "task id")

	return statusCmd
}
