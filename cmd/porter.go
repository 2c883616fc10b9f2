package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stephnangue/porter/cmd/server"
)

var porterCmd = &cobra.Command{
	Use:   "porter",
	Short: "Porter aggregates developer accounts across source-code providers",
	Long: `Porter is an account aggregation gateway. It fetches short-lived provider
tokens from a token-issuing backend, caches them with expiry-aware eviction,
and exposes a unified API over the accounts a user holds on GitHub and GitLab.`,
}

func Execute() {
	if err := porterCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	porterCmd.AddCommand(server.ServerCmd)
}
