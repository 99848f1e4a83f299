package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "tigerctl",
		Short:   "Operator tasks for the Tiger Life backend",
		Version: Version,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd("grant-admin", "Give a member the admin capability", true))
	rootCmd.AddCommand(adminCmd("revoke-admin", "Take the admin capability away from a member", false))
	rootCmd.AddCommand(sweepOrdersCmd())
	rootCmd.AddCommand(relayOutboxCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
