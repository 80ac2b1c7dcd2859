package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var guestCmd = &cobra.Command{
	Use:   "guest",
	Short: "Inspect the local guest analysis allowance",
}

var guestStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show used and remaining guest analyses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "guest", envNeeds{state: true})
		if err != nil {
			return err
		}
		defer env.Close()

		usage, err := env.Guest.Usage(ctx)
		if err != nil {
			return err
		}
		remaining, err := env.Guest.Remaining(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "used=%d\nremaining=%d\nlimit=%d\n", usage.Count, remaining, env.Guest.Limit())
		if !usage.LastReset.IsZero() {
			fmt.Fprintf(out, "since=%s\n", usage.LastReset.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	guestCmd.AddCommand(guestStatusCmd)
	rootCmd.AddCommand(guestCmd)
}
