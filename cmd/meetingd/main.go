// meetingd records live meetings: it captures microphone audio, streams it
// through external transcription and diarization engines, and persists
// attributed transcripts with post-meeting summaries.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "meetingd",
		Short:        "Live meeting transcription daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newImportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
