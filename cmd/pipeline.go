package cmd

import (
	pipelinecmd "github.com/lemonhall/radioscribe/cmd/pipeline"
)

func init() {
	rootCmd.AddCommand(pipelinecmd.NewPipelineCmd())
}
