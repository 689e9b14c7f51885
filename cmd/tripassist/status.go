package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/tripassist/internal/client"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := client.New(apiAddr).Result(cmd.Context(), args[0])
		if err != nil {
			return describe(err)
		}
		return printResult(cmd.OutOrStdout(), r, statusJSON)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := client.New(apiAddr).Health(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statusJSON {
			return printJSON(out, h)
		}
		mark := "✓"
		if !h.OK {
			mark = "✗"
		}
		fmt.Fprintf(out, "%s %s  store=%s (%s)  version=%s\n", mark, apiAddr, h.Store, h.Backend, h.Version)
		if !h.OK {
			return fmt.Errorf("server unhealthy: %s", h.Store)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print JSON")
	healthCmd.Flags().BoolVar(&statusJSON, "json", false, "Print JSON")
}
