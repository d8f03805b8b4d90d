package cmd

import (
	"log"
	"log/slog"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"sharhbot/sharhbot"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database and run schema migrations",
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.Database == "" {
			log.Fatal("Environment variable SHARH_DATABASE not set (must be a sqlite file path)")
		}

		_, err := sharhbot.CreateDB(
			cfg.Database,
			tint.NewHandler(
				cmd.OutOrStdout(),
				&tint.Options{Level: slog.LevelInfo},
			),
			cfg.DatabaseSlowThreshold,
		)
		if err != nil {
			log.Fatalf("Error creating database: %v", err)
		}
		log.Printf("Database initialized: %s", cfg.Database)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
