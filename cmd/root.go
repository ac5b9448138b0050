package cmd

import (
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/chatapp/internal/config"
	"github.com/suPer8Hu/chatapp/internal/db"
	"github.com/suPer8Hu/chatapp/internal/logging"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "chatapp",
	Short:         "Chat API: sessions, message history and streamed inference",
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
}

// bootstrap loads config, sets up logging and opens the migrated database.
func bootstrap() (config.Config, *gorm.DB, error) {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.AppEnv)

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return cfg, nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return cfg, nil, err
	}
	return cfg, gdb, nil
}
