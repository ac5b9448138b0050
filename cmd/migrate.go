package cmd

import (
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/chatapp/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := bootstrap()
		if err != nil {
			return err
		}
		logging.For("migrate").WithField("driver", cfg.DBDriver).Info("schema up to date")
		return nil
	},
}
