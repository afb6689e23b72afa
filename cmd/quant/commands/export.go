package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// exportCmd writes aggregates, factors and splice series downstream
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "주봉·월봉 / 수정계수 / splice 내보내기",
	Long: `저장된 주봉/월봉, 수정계수, splice 시계열을 parquet 파일 또는 ClickHouse 로 내보냅니다.

Example:
  go run ./cmd/quant export --out data/export
  go run ./cmd/quant export --clickhouse --instrument 600000.SH`,
	RunE: runExport,
}

var (
	exportOut         string
	exportClickHouse  bool
	exportInstruments []string
	exportSymbols     []string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportOut, "out", "", "parquet 출력 디렉토리 (default is EXPORT_DIR)")
	exportCmd.Flags().BoolVar(&exportClickHouse, "clickhouse", false, "ClickHouse 에 적재")
	exportCmd.Flags().StringSliceVar(&exportInstruments, "instrument", nil, "대상 종목 (기본: 전체)")
	exportCmd.Flags().StringSliceVar(&exportSymbols, "symbol", nil, "대상 연속선물 (기본: 전체)")
}

func runExport(cmd *cobra.Command, args []string) error {
	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out := exportOut
	if out == "" && !exportClickHouse {
		out = d.cfg.Export.Dir
	}

	exporter, err := d.exporter(ctx, out, exportClickHouse)
	if err != nil {
		return err
	}
	defer exporter.Close()

	PrintHeader("Export", [2]string{"Parquet", out}, [2]string{"ClickHouse", fmt.Sprint(exportClickHouse)})

	stats, err := exporter.Export(ctx, exportInstruments, exportSymbols)
	PrintKeyValue("Bars", fmt.Sprint(stats.Bars), 8)
	PrintKeyValue("Factors", fmt.Sprint(stats.Factors), 8)
	PrintKeyValue("Splice", fmt.Sprint(stats.Splice), 8)
	fmt.Println()
	if err != nil {
		return err
	}
	PrintSuccess("Export completed")
	return nil
}
