package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/quantsource/internal/ingest"
	"github.com/wonny/quantsource/pkg/redis"
)

// spliceCmd groups continuous-futures commands
var spliceCmd = &cobra.Command{
	Use:   "splice",
	Short: "연속선물 롤 차익 계산",
	Long: `연속선물의 롤 이력을 적재하고 누적 롤 차익(splice) 시계열을 계산합니다.

Subcommands:
  import-rolls  - 롤 이력 CSV 적재
  run           - splice 시계열 재계산

Example:
  go run ./cmd/quant splice import-rolls --file data/raw/cont_history.csv
  go run ./cmd/quant splice run
  go run ./cmd/quant splice run KQ.m@SHFE.rb KQ.m@DCE.c`,
}

var (
	spliceImportCmd = &cobra.Command{
		Use:   "import-rolls",
		Short: "롤 이력 CSV 적재",
		Long: `date 열 + 연속선물별 열 (셀 = 실제 월물) 형식의 CSV 를 읽어
심볼별 롤 이력을 통째로 교체합니다.`,
		RunE: runSpliceImport,
	}

	spliceRunCmd = &cobra.Command{
		Use:   "run [symbol...]",
		Short: "splice 시계열 재계산",
		Long: `심볼을 주지 않으면 프로파일의 추적 심볼 (없으면 저장된 모든 심볼) 을 계산합니다.
프로파일의 수동 롤 보정과 오프셋이 적용됩니다.`,
		RunE: runSplice,
	}
)

var (
	spliceFile   string
	spliceExport bool
)

func init() {
	rootCmd.AddCommand(spliceCmd)
	spliceCmd.AddCommand(spliceImportCmd)
	spliceCmd.AddCommand(spliceRunCmd)

	spliceImportCmd.Flags().StringVar(&spliceFile, "file", "", "롤 이력 CSV (.zst 지원)")
	_ = spliceImportCmd.MarkFlagRequired("file")
	spliceRunCmd.Flags().BoolVar(&spliceExport, "clickhouse", false, "결과를 ClickHouse 에 적재")
}

func runSpliceImport(cmd *cobra.Command, args []string) error {
	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	rolls, err := ingest.ReadRollFile(spliceFile)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(rolls))
	for sym := range rolls {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	PrintHeader("Splice Import", [2]string{"File", spliceFile}, [2]string{"Symbols", fmt.Sprint(len(symbols))})

	widths := []int{16, 8}
	PrintTableHeader([]string{"Symbol", "Records"}, widths)
	for _, sym := range symbols {
		if err := d.store.ReplaceRollRecords(ctx, sym, rolls[sym]); err != nil {
			return fmt.Errorf("store rolls %s: %w", sym, err)
		}
		PrintTableRow([]string{sym, fmt.Sprint(len(rolls[sym]))}, widths)
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("Imported roll history for %d symbol(s)", len(symbols)))
	return nil
}

func runSplice(cmd *cobra.Command, args []string) error {
	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runner, err := d.spliceRunner()
	if err != nil {
		return err
	}

	PrintHeader("Splice Run", [2]string{"Lookback", fmt.Sprintf("%d trading days", d.cfg.Splice.LookbackDays)})

	summary, err := runner.Run(ctx, args...)
	if err != nil {
		return err
	}
	PrintSpliceSummary(summary)

	var done []string
	for _, r := range summary.Results {
		if r.Error == "" {
			done = append(done, r.Symbol)
			_ = d.cache.Delete(ctx, redis.SpliceKey(r.Symbol))
		}
	}

	if spliceExport && len(done) > 0 {
		exporter, err := d.exporter(ctx, "", true)
		if err != nil {
			return err
		}
		defer exporter.Close()
		if _, err := exporter.Export(ctx, []string{}, done); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	fmt.Println()
	if n := summary.Failed(); n > 0 {
		return fmt.Errorf("%d symbol(s) failed", n)
	}
	PrintSuccess(fmt.Sprintf("Spliced %d symbol(s)", len(done)))
	return nil
}
