package transcript

import (
	"encoding/json"
	"fmt"

	"github.com/lemonhall/radioscribe/internal/model"
)

// printTask writes the task detail document to stdout as JSON.
func printTask(task *model.TranscriptTask) error {
	if task == nil {
		return nil
	}
	jsonBytes, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}

// printTasksIndex writes the session task registry to stdout as JSON.
func printTasksIndex(idx *model.TasksIndex) error {
	jsonBytes, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}
