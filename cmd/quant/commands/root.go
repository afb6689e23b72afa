package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	profilePath string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Quant Source - 수정주가 / 주봉·월봉 롤업 / 연속선물 엔진",
	Long: `Quant Source Unified CLI

일봉 적재 → 권리락 감지 → 수정계수 → 주봉/월봉 증분 롤업,
연속선물 롤 차익 누적 계산.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant migrate
  go run ./cmd/quant adjust run --date 2024-01-04
  go run ./cmd/quant splice run
  go run ./cmd/quant api
  go run ./cmd/quant scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "연속선물 프로파일 YAML (default is ADJUST_PROFILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}
