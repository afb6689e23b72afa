package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/quantsource/pkg/config"
	"github.com/wonny/quantsource/pkg/database"
)

// migrateCmd applies the embedded schema migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 스키마 마이그레이션",
	Long: `내장된 SQL 마이그레이션을 적용합니다.

Example:
  go run ./cmd/quant migrate
  go run ./cmd/quant migrate --down 1`,
	RunE: runMigrate,
}

var migrateDownSteps int

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().IntVar(&migrateDownSteps, "down", 0, "되돌릴 마이그레이션 수")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if migrateDownSteps > 0 {
		if err := database.MigrateDown(cfg.Database.URL, migrateDownSteps); err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("Rolled back %d migration(s)", migrateDownSteps))
		return nil
	}

	version, err := database.Migrate(cfg.Database.URL)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Schema at version %d", version))
	return nil
}
