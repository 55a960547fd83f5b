package main

import (
	"github.com/geochat/tokenauth/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the tokenauthd command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokenauthd",
		Short: "Token authentication service",
		Long: `tokenauthd issues and checks access and refresh tokens, runs the password
reset flow, and guards an upstream API at the edge.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default $TOKENAUTH_CONFIG)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewGatewayCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashCmd())

	return cmd
}
