package main

import (
	"github.com/spf13/cobra"

	"github.com/fentz26/tripassist/internal/client"
)

var (
	watchFollow string
	watchTUI    bool
	watchJSON   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Wait for a session's itinerary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchFollow == followNone {
			watchFollow = followStream
		}
		return follow(cmd.Context(), cmd.OutOrStdout(), client.New(apiAddr), args[0], watchFollow, watchTUI, watchJSON)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchFollow, "follow", followStream, "How to wait for the result: stream or poll")
	watchCmd.Flags().BoolVar(&watchTUI, "tui", false, "Wait in the interactive terminal UI")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print JSON")
}
