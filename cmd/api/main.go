package main

import (
	"os"

	_ "procurement/api/swagger" // swagger docs
	"procurement/internal/config"

	"github.com/spf13/cobra"
)

// @title           Purchase Request API
// @version         1.0
// @description     Two-level approval workflow for purchase requests, with proforma extraction and receipt validation.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "procurement",
		Short:         "Purchase request approval service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "configs/.env", "dotenv file loaded before the environment")

	load := func() (*config.Config, error) {
		return config.Load(envFile)
	}
	cmd.AddCommand(newServeCmd(load), newMigrateCmd(load), newTokenCmd(load))
	return cmd
}
