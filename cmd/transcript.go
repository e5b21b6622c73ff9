package cmd

import (
	transcriptcmd "github.com/lemonhall/radioscribe/cmd/transcript"
)

func init() {
	rootCmd.AddCommand(transcriptcmd.NewTranscriptCmd())
}
