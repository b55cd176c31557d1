package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/beatstore-api/internal/rpchealth"
)

func newRPCCheckCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration
	var retries int

	cmd := &cobra.Command{
		Use:   "rpc-check <endpoint>...",
		Short: "Race JSON-RPC endpoints once and report the fastest healthy one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := rpchealth.NewHTTPChecker(rpchealth.WithMaxRetries(retries))
			monitor, err := rpchealth.NewMonitor(rpchealth.Config{
				Endpoints:        args,
				Timeout:          timeout,
				FailureThreshold: 1,
			}, checker, root.logger(cmd))
			if err != nil {
				return err
			}

			endpoint, err := monitor.Check(cmd.Context())
			if err != nil {
				return err
			}

			status := monitor.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "healthy: %s (%s)\n", endpoint, status.LastLatency.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", rpchealth.DefaultTimeout, "deadline for the whole check")
	cmd.Flags().IntVar(&retries, "retries", 1, "retries per endpoint on transient errors")
	return cmd
}
